package trip

import (
	"encoding/json"
	"errors"
	"time"

	"tripplanner/internal/cache"
	"tripplanner/internal/route"
)

var (
	ErrTripNotFound     = errors.New("trip not found")
	ErrLocationNotFound = errors.New("location not found")
)

// Trip is a destination with an ordered list of stops.
type Trip struct {
	ID          int64            `json:"id"`
	Destination string           `json:"destination"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Locations   []route.Location `json:"locations"`
}

// tripCodec stores trips with RFC 3339 timestamps and inline locations.
func tripCodec() cache.Codec[Trip] {
	return cache.Codec[Trip]{
		Serialize: func(t Trip) (json.RawMessage, error) {
			if t.Locations == nil {
				t.Locations = []route.Location{}
			}
			return json.Marshal(t)
		},
		Deserialize: func(data json.RawMessage) (Trip, error) {
			var t Trip
			if err := json.Unmarshal(data, &t); err != nil {
				return Trip{}, err
			}
			if t.Destination == "" {
				return Trip{}, errors.New("trip without destination")
			}
			return t, nil
		},
	}
}

func locationCodec() cache.Codec[route.Location] {
	return cache.JSONCodec[route.Location]()
}
