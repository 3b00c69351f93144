package trip

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"tripplanner/internal/cache"
	"tripplanner/internal/route"
)

var (
	ErrEmptyDestination = errors.New("destination must not be empty")
	ErrInvalidLocation  = errors.New("invalid location")
)

// Observer is notified about finished route optimizations.
type Observer interface {
	OptimizationDone(duration time.Duration, stops int, err error)
}

type noopObserver struct{}

func (noopObserver) OptimizationDone(time.Duration, int, error) {}

// Model coordinates the backing store with the trip and location caches.
// Reads go through the caches; every store mutation is followed by the
// matching cache update or invalidation.
type Model struct {
	store     Store
	trips     cache.Cache[Trip]
	locations cache.Cache[route.Location]
	finder    *route.PathFinder
	optimizer *route.Optimizer
	observer  Observer
	logger    *zap.Logger
	now       func() time.Time

	// graphStale is set whenever the location set changes; the path finder
	// is rebuilt before the next search. graphMu serializes the check with
	// the rebuild.
	graphStale atomic.Bool
	graphMu    sync.Mutex
	optimizing singleflight.Group

	// Every trip cache fill and every trip store mutation followed by its
	// cache invalidation runs under the trip's lock.
	tripLocks    tripLocks
	readTrip     cache.Loader[int64, Trip]
	loadTrip     cache.Loader[int64, Trip]
	loadLocation cache.Loader[int64, route.Location]
}

type ModelOption func(*Model)

func WithObserver(o Observer) ModelOption {
	return func(m *Model) {
		if o != nil {
			m.observer = o
		}
	}
}

func WithClock(now func() time.Time) ModelOption {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

func NewModel(store Store, trips cache.Cache[Trip], locations cache.Cache[route.Location], logger *zap.Logger, opts ...ModelOption) *Model {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Model{
		store:     store,
		trips:     trips,
		locations: locations,
		finder:    route.NewPathFinder(nil),
		optimizer: route.NewOptimizer(),
		observer:  noopObserver{},
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.graphStale.Store(true)

	m.loadLocation = cache.ReadThrough(locations, cacheKey, m.store.Location)
	m.readTrip = cache.ReadThrough(trips, cacheKey, m.fetchTrip)
	m.loadTrip = func(ctx context.Context, id int64) (Trip, error) {
		defer m.tripLocks.lock(id)()
		return m.readTrip(ctx, id)
	}
	return m
}

// mutateTrip applies a store mutation and drops the cached trip while no
// fill of the same trip is in flight.
func (m *Model) mutateTrip(id int64, mutate func() error) error {
	defer m.tripLocks.lock(id)()
	if err := mutate(); err != nil {
		return err
	}
	m.trips.Remove(cacheKey(id))
	return nil
}

// TripCodec is the snapshot codec for the trip cache.
func TripCodec() cache.Codec[Trip] {
	return tripCodec()
}

// LocationCodec is the snapshot codec for the location cache.
func LocationCodec() cache.Codec[route.Location] {
	return locationCodec()
}

func cacheKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (m *Model) fetchTrip(ctx context.Context, id int64) (Trip, error) {
	rec, err := m.store.Trip(ctx, id)
	if err != nil {
		return Trip{}, err
	}

	t := Trip{
		ID:          rec.ID,
		Destination: rec.Destination,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		Locations:   make([]route.Location, 0, len(rec.LocationIDs)),
	}
	for _, locID := range rec.LocationIDs {
		loc, err := m.loadLocation(ctx, locID)
		if err != nil {
			return Trip{}, fmt.Errorf("failed to load location %d of trip %d: %w", locID, id, err)
		}
		t.Locations = append(t.Locations, loc)
	}
	return t, nil
}

func (m *Model) AddTrip(ctx context.Context, destination string) (Trip, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return Trip{}, ErrEmptyDestination
	}

	rec, err := m.store.CreateTrip(ctx, destination, m.now())
	if err != nil {
		return Trip{}, fmt.Errorf("failed to add trip: %w", err)
	}
	// A restored snapshot may still hold an entry under a reused ID.
	unlock := m.tripLocks.lock(rec.ID)
	m.trips.Remove(cacheKey(rec.ID))
	unlock()
	return m.loadTrip(ctx, rec.ID)
}

func (m *Model) Trip(ctx context.Context, id int64) (Trip, error) {
	return m.loadTrip(ctx, id)
}

func (m *Model) Trips(ctx context.Context) ([]Trip, error) {
	ids, err := m.store.TripIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}

	trips := make([]Trip, 0, len(ids))
	for _, id := range ids {
		t, err := m.loadTrip(ctx, id)
		if errors.Is(err, ErrTripNotFound) {
			// Deleted between listing and loading.
			continue
		}
		if err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, nil
}

func (m *Model) UpdateTrip(ctx context.Context, id int64, destination string) (Trip, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return Trip{}, ErrEmptyDestination
	}

	err := m.mutateTrip(id, func() error {
		return m.store.UpdateTrip(ctx, id, destination, m.now())
	})
	if err != nil {
		return Trip{}, fmt.Errorf("failed to update trip %d: %w", id, err)
	}
	return m.loadTrip(ctx, id)
}

func (m *Model) DeleteTrip(ctx context.Context, id int64) error {
	err := m.mutateTrip(id, func() error {
		return m.store.DeleteTrip(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("failed to delete trip %d: %w", id, err)
	}
	return nil
}

func (m *Model) AddLocation(ctx context.Context, loc route.Location) (route.Location, error) {
	loc.Name = strings.TrimSpace(loc.Name)
	if err := validateLocation(loc); err != nil {
		return route.Location{}, err
	}

	created, err := m.store.CreateLocation(ctx, loc)
	if err != nil {
		return route.Location{}, fmt.Errorf("failed to add location: %w", err)
	}
	m.locations.Put(cacheKey(created.ID), created)
	m.graphStale.Store(true)
	return created, nil
}

func (m *Model) Location(ctx context.Context, id int64) (route.Location, error) {
	return m.loadLocation(ctx, id)
}

func (m *Model) Locations(ctx context.Context) ([]route.Location, error) {
	return m.store.Locations(ctx)
}

func (m *Model) AddLocationToTrip(ctx context.Context, tripID, locationID int64, position int) error {
	err := m.mutateTrip(tripID, func() error {
		return m.store.AddTripLocation(ctx, tripID, locationID, position, m.now())
	})
	if err != nil {
		return fmt.Errorf("failed to add location %d to trip %d: %w", locationID, tripID, err)
	}
	return nil
}

func (m *Model) RemoveLocationFromTrip(ctx context.Context, tripID, locationID int64) error {
	err := m.mutateTrip(tripID, func() error {
		return m.store.RemoveTripLocation(ctx, tripID, locationID, m.now())
	})
	if err != nil {
		return fmt.Errorf("failed to remove location %d from trip %d: %w", locationID, tripID, err)
	}
	return nil
}

// OptimizeRoute reorders the stops of a trip with the nearest-neighbour
// heuristic and stores the new order. Concurrent calls for the same trip
// share one optimization, which is not cancelled when the caller that
// started it goes away. Trips with fewer than two stops return
// route.ErrTooFewLocations.
func (m *Model) OptimizeRoute(ctx context.Context, tripID int64) ([]route.Location, error) {
	shared := context.WithoutCancel(ctx)
	v, err, joined := m.optimizing.Do(cacheKey(tripID), func() (any, error) {
		return m.optimizeRoute(shared, tripID)
	})
	if err != nil {
		return nil, err
	}
	if joined {
		m.logger.Debug("Joined in-flight optimization", zap.Int64("trip_id", tripID))
	}
	return v.([]route.Location), nil
}

func (m *Model) optimizeRoute(ctx context.Context, tripID int64) (result []route.Location, err error) {
	t, err := m.loadTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	start := m.now()
	defer func() {
		m.observer.OptimizationDone(m.now().Sub(start), len(t.Locations), err)
	}()

	optimized, err := m.optimizer.Optimize(t.Locations)
	if err != nil {
		return nil, fmt.Errorf("trip %d: %w", tripID, err)
	}

	ids := make([]int64, len(optimized))
	for i, loc := range optimized {
		ids[i] = loc.ID
	}
	err = m.mutateTrip(tripID, func() error {
		return m.store.SetTripLocations(ctx, tripID, ids, m.now())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store optimized route of trip %d: %w", tripID, err)
	}

	m.logger.Info("Optimized trip route",
		zap.Int64("trip_id", tripID),
		zap.Int("stops", len(optimized)),
		zap.Float64("distance", route.TotalDistance(optimized)),
	)
	return optimized, nil
}

// FindPath searches the shortest path between two known locations. Unknown
// IDs yield an empty path.
func (m *Model) FindPath(ctx context.Context, fromID, toID int64) ([]route.Location, error) {
	if err := m.refreshGraph(ctx); err != nil {
		return nil, err
	}
	return m.finder.FindPath(fromID, toID), nil
}

// refreshGraph rebuilds the path finder when locations were added since the
// last rebuild. AddLocation marks the graph stale only after the store
// write, so a rebuild that clears the mark always reads that location.
func (m *Model) refreshGraph(ctx context.Context) error {
	m.graphMu.Lock()
	defer m.graphMu.Unlock()

	if !m.graphStale.Swap(false) {
		return nil
	}
	locs, err := m.store.Locations(ctx)
	if err != nil {
		m.graphStale.Store(true)
		return fmt.Errorf("failed to load locations: %w", err)
	}
	m.finder.Rebuild(locs)
	m.logger.Debug("Rebuilt route graph", zap.Int("locations", len(locs)))
	return nil
}

// CacheStats reports the occupancy of the trip and location caches.
func (m *Model) CacheStats() map[string]cache.Stats {
	return map[string]cache.Stats{
		"trips":     m.trips.Stats(),
		"locations": m.locations.Stats(),
	}
}

// Warmup loads every trip through the caches using at most workers
// concurrent loads. Individual failures are logged and skipped.
func (m *Model) Warmup(ctx context.Context, workers int) error {
	ids, err := m.store.TripIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list trips: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	// Worker pool size configured via env (defaults to 1)
	if workers <= 0 {
		workers = 1
	}
	m.logger.Info("Starting cache warmup", zap.Int("trips", len(ids)), zap.Int("workers", workers))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := m.loadTrip(ctx, id); err != nil {
				m.logger.Debug("Warmup trip failed", zap.Int64("trip_id", id), zap.Error(err))
			}
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.logger.Info("Cache warmup completed")
	return nil
}

type keyLister interface {
	Keys() []string
}

// Reconcile drops cached trips and locations the store does not know, as
// left behind by a snapshot that outlived its store. Caches that cannot list
// their keys are skipped. It returns the number of dropped entries.
func (m *Model) Reconcile(ctx context.Context) (int, error) {
	dropped := 0

	if lister, ok := m.trips.(keyLister); ok {
		for _, key := range lister.Keys() {
			n, err := m.dropStale(ctx, key, m.trips.Remove, func(id int64) error {
				_, err := m.store.Trip(ctx, id)
				return err
			}, ErrTripNotFound)
			if err != nil {
				return dropped, err
			}
			dropped += n
		}
	}

	if lister, ok := m.locations.(keyLister); ok {
		for _, key := range lister.Keys() {
			n, err := m.dropStale(ctx, key, m.locations.Remove, func(id int64) error {
				_, err := m.store.Location(ctx, id)
				return err
			}, ErrLocationNotFound)
			if err != nil {
				return dropped, err
			}
			dropped += n
		}
	}

	if dropped > 0 {
		m.logger.Info("Dropped stale cache entries", zap.Int("entries", dropped))
	}
	return dropped, nil
}

func (m *Model) dropStale(ctx context.Context, key string, remove func(string) bool, lookup func(int64) error, notFound error) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(key, 10, 64)
	if err == nil {
		err = lookup(id)
	}
	switch {
	case err == nil:
		return 0, nil
	case errors.Is(err, notFound), errors.Is(err, strconv.ErrSyntax), errors.Is(err, strconv.ErrRange):
		if remove(key) {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("failed to check cached key %s: %w", key, err)
	}
}

func validateLocation(loc route.Location) error {
	switch {
	case loc.Name == "":
		return fmt.Errorf("%w: name must not be empty", ErrInvalidLocation)
	case loc.Latitude < -90 || loc.Latitude > 90:
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidLocation, loc.Latitude)
	case loc.Longitude < -180 || loc.Longitude > 180:
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidLocation, loc.Longitude)
	}
	return nil
}
