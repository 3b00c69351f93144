package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

var errMalformedSnapshot = errors.New("malformed cache snapshot")

// encodeSnapshot renders entries as {"key": [value, unixSeconds], ...}.
// Object members are written in the order given (least recently used first)
// because the loader rebuilds recency from document order.
//
// Timestamps are float64 Unix seconds, which hold roughly microsecond
// precision for current dates. Sub-microsecond detail is lost on a round
// trip; recency order is unaffected because it comes from document order.
func encodeSnapshot[V any](entries []Entry[V], codec Codec[V]) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range entries {
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to encode key %q: %w", e.Key, err)
		}
		value, err := codec.Serialize(e.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize %q: %w", e.Key, err)
		}
		if !json.Valid(value) {
			return nil, fmt.Errorf("serializer produced invalid JSON for %q", e.Key)
		}

		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(key)
		buf.WriteString(":[")
		buf.Write(value)
		buf.WriteByte(',')
		buf.WriteString(strconv.FormatFloat(toUnixSeconds(e.AccessedAt), 'f', -1, 64))
		buf.WriteByte(']')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeSnapshot parses a snapshot in document order. Any structural problem
// or value that fails to deserialize invalidates the whole snapshot.
func decodeSnapshot[V any](data []byte, codec Codec[V]) ([]Entry[V], error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", errMalformedSnapshot)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: top level is not an object", errMalformedSnapshot)
	}

	var (
		entries []Entry[V]
		err     error
	)
	root.ForEach(func(key, pair gjson.Result) bool {
		fields := pair.Array()
		if !pair.IsArray() || len(fields) != 2 || fields[1].Type != gjson.Number {
			err = fmt.Errorf("%w: entry %q is not a [value, timestamp] pair", errMalformedSnapshot, key.String())
			return false
		}

		value, decodeErr := codec.Deserialize(json.RawMessage(fields[0].Raw))
		if decodeErr != nil {
			err = fmt.Errorf("failed to deserialize %q: %w", key.String(), decodeErr)
			return false
		}

		entries = append(entries, Entry[V]{
			Key:        key.String(),
			Value:      value,
			AccessedAt: fromUnixSeconds(fields[1].Float()),
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func toUnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnixSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}
