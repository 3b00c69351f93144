package trip

import (
	"context"
	"slices"
	"sync"
	"time"

	"tripplanner/internal/route"
)

// TripRecord is a trip as held by the backing store, with stops referenced
// by location ID.
type TripRecord struct {
	ID          int64
	Destination string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LocationIDs []int64
}

// Store is the authoritative backing store behind the trip and location caches.
type Store interface {
	CreateTrip(ctx context.Context, destination string, now time.Time) (TripRecord, error)
	Trip(ctx context.Context, id int64) (TripRecord, error)
	TripIDs(ctx context.Context) ([]int64, error)
	UpdateTrip(ctx context.Context, id int64, destination string, now time.Time) error
	DeleteTrip(ctx context.Context, id int64) error

	CreateLocation(ctx context.Context, loc route.Location) (route.Location, error)
	Location(ctx context.Context, id int64) (route.Location, error)
	Locations(ctx context.Context) ([]route.Location, error)

	// AddTripLocation inserts locationID at position, or appends it when
	// position is negative or past the end. A location already on the trip
	// is moved.
	AddTripLocation(ctx context.Context, tripID, locationID int64, position int, now time.Time) error
	RemoveTripLocation(ctx context.Context, tripID, locationID int64, now time.Time) error
	// SetTripLocations replaces the stop order of a trip.
	SetTripLocations(ctx context.Context, tripID int64, locationIDs []int64, now time.Time) error
}

// MemoryStore is a Store kept in process memory. It is created once by the
// caller and handed to whatever needs it.
type MemoryStore struct {
	mu             sync.RWMutex
	nextTripID     int64
	nextLocationID int64
	trips          map[int64]*TripRecord
	locations      map[int64]route.Location
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trips:     make(map[int64]*TripRecord),
		locations: make(map[int64]route.Location),
	}
}

func (s *MemoryStore) CreateTrip(ctx context.Context, destination string, now time.Time) (TripRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTripID++
	rec := &TripRecord{
		ID:          s.nextTripID,
		Destination: destination,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.trips[rec.ID] = rec
	return copyRecord(rec), nil
}

func (s *MemoryStore) Trip(ctx context.Context, id int64) (TripRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.trips[id]
	if !ok {
		return TripRecord{}, ErrTripNotFound
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) TripIDs(ctx context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.trips))
	for id := range s.trips {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *MemoryStore) UpdateTrip(ctx context.Context, id int64, destination string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.trips[id]
	if !ok {
		return ErrTripNotFound
	}
	rec.Destination = destination
	rec.UpdatedAt = now
	return nil
}

func (s *MemoryStore) DeleteTrip(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trips[id]; !ok {
		return ErrTripNotFound
	}
	delete(s.trips, id)
	return nil
}

func (s *MemoryStore) CreateLocation(ctx context.Context, loc route.Location) (route.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLocationID++
	loc.ID = s.nextLocationID
	s.locations[loc.ID] = loc
	return loc, nil
}

func (s *MemoryStore) Location(ctx context.Context, id int64) (route.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.locations[id]
	if !ok {
		return route.Location{}, ErrLocationNotFound
	}
	return loc, nil
}

func (s *MemoryStore) Locations(ctx context.Context) ([]route.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	locs := make([]route.Location, 0, len(s.locations))
	for _, loc := range s.locations {
		locs = append(locs, loc)
	}
	slices.SortFunc(locs, func(a, b route.Location) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return locs, nil
}

func (s *MemoryStore) AddTripLocation(ctx context.Context, tripID, locationID int64, position int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.trips[tripID]
	if !ok {
		return ErrTripNotFound
	}
	if _, ok := s.locations[locationID]; !ok {
		return ErrLocationNotFound
	}

	ids := slices.DeleteFunc(rec.LocationIDs, func(id int64) bool { return id == locationID })
	if position < 0 || position > len(ids) {
		position = len(ids)
	}
	rec.LocationIDs = slices.Insert(ids, position, locationID)
	rec.UpdatedAt = now
	return nil
}

func (s *MemoryStore) RemoveTripLocation(ctx context.Context, tripID, locationID int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.trips[tripID]
	if !ok {
		return ErrTripNotFound
	}
	if !slices.Contains(rec.LocationIDs, locationID) {
		return ErrLocationNotFound
	}
	rec.LocationIDs = slices.DeleteFunc(rec.LocationIDs, func(id int64) bool { return id == locationID })
	rec.UpdatedAt = now
	return nil
}

func (s *MemoryStore) SetTripLocations(ctx context.Context, tripID int64, locationIDs []int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.trips[tripID]
	if !ok {
		return ErrTripNotFound
	}
	for _, id := range locationIDs {
		if _, ok := s.locations[id]; !ok {
			return ErrLocationNotFound
		}
	}
	rec.LocationIDs = slices.Clone(locationIDs)
	rec.UpdatedAt = now
	return nil
}

func copyRecord(rec *TripRecord) TripRecord {
	out := *rec
	out.LocationIDs = slices.Clone(rec.LocationIDs)
	return out
}
