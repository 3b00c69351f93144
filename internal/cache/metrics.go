package cache

// Metrics receives cache lifecycle events.
type Metrics interface {
	// Hit is called when Get finds the key.
	Hit()

	// Miss is called when Get does not find the key.
	Miss()

	// Eviction is called when a put on a full cache drops the least recently used entry.
	Eviction()

	// PersistFailure is called when a snapshot cannot be read or written.
	PersistFailure()
}

// NoopMetrics ignores every event.
type NoopMetrics struct{}

func (NoopMetrics) Hit()            {}
func (NoopMetrics) Miss()           {}
func (NoopMetrics) Eviction()       {}
func (NoopMetrics) PersistFailure() {}
