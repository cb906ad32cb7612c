package location

import (
	"context"
	"sync"

	"github.com/ironsheep/pothole-cam/internal/logger"
	"github.com/ironsheep/pothole-cam/internal/metrics"
)

// Status is the resolution state of an Enrichment.
type Status int

const (
	Pending Status = iota
	Resolved
	Failed
)

func (s Status) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Enrichment is the location context attached to a capture.
type Enrichment struct {
	Status Status

	// Position is nil unless the position was obtained. A Failed
	// enrichment still carries it when only reverse geocoding failed.
	Position *Position

	// PlaceName is empty when reverse geocoding did not succeed.
	PlaceName string

	// Err is the failure that stopped resolution, if any.
	Err error
}

// HasPosition reports whether coordinates are available.
func (e Enrichment) HasPosition() bool {
	return e.Position != nil
}

// Enricher resolves location once per screen session.
type Enricher struct {
	positioner Positioner
	geocoder   Geocoder

	// Metrics is optional.
	Metrics *metrics.Metrics

	once sync.Once
	done chan struct{}

	mu     sync.RWMutex
	result Enrichment
}

// NewEnricher creates an Enricher. A nil positioner behaves like
// Unsupported; a nil geocoder skips place names.
func NewEnricher(p Positioner, g Geocoder) *Enricher {
	if p == nil {
		p = Unsupported{}
	}
	return &Enricher{
		positioner: p,
		geocoder:   g,
		done:       make(chan struct{}),
	}
}

// Resolve queries the position, then reverse geocodes it. Only the first
// call does any work; later calls return immediately.
func (e *Enricher) Resolve(ctx context.Context) {
	e.once.Do(func() {
		defer close(e.done)
		e.resolve(ctx)
	})
}

func (e *Enricher) resolve(ctx context.Context) {
	pos, err := e.positioner.CurrentPosition(ctx)
	if err != nil {
		lerr := &LocationError{Op: "position", Err: err}
		logger.Warn("Location", "%v", lerr)
		e.Metrics.Inc(metrics.LocationFailures)
		e.set(Enrichment{Status: Failed, Err: lerr})
		return
	}

	// Publish coordinates before geocoding so a capture taken meanwhile
	// still gets them.
	e.set(Enrichment{Status: Pending, Position: &pos})

	if e.geocoder == nil {
		e.set(Enrichment{Status: Resolved, Position: &pos})
		return
	}

	name, err := e.geocoder.Reverse(ctx, pos)
	if err != nil {
		lerr := &LocationError{Op: "geocode", Err: err}
		logger.Warn("Location", "%v", lerr)
		e.Metrics.Inc(metrics.LocationFailures)
		e.set(Enrichment{Status: Failed, Position: &pos, Err: lerr})
		return
	}

	logger.Info("Location", "resolved %.5f,%.5f to %q", pos.Latitude, pos.Longitude, name)
	e.set(Enrichment{Status: Resolved, Position: &pos, PlaceName: name})
}

func (e *Enricher) set(r Enrichment) {
	e.mu.Lock()
	e.result = r
	e.mu.Unlock()
}

// Snapshot returns the current enrichment without blocking.
func (e *Enricher) Snapshot() Enrichment {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r := e.result
	if r.Position != nil {
		p := *r.Position
		r.Position = &p
	}
	return r
}

// Wait blocks until Resolve has finished or ctx is done.
func (e *Enricher) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
