// Package location resolves the device position and a human-readable place
// name for it. Resolution is best effort: every failure degrades to "no
// location" and never blocks capture.
package location

import (
	"context"
	"errors"
	"fmt"
)

// Position is a geographic coordinate in decimal degrees.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Positioner reports the current device position.
type Positioner interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

// Geocoder converts a position into a place name.
type Geocoder interface {
	Reverse(ctx context.Context, p Position) (string, error)
}

var (
	// ErrUnsupported means the host has no positioning capability.
	ErrUnsupported = errors.New("geolocation not supported")

	// ErrPermissionDenied means the user refused location access.
	ErrPermissionDenied = errors.New("location permission denied")
)

// LocationError records which resolution step failed.
type LocationError struct {
	Op  string // "position" or "geocode"
	Err error
}

func (e *LocationError) Error() string {
	return fmt.Sprintf("location %s: %v", e.Op, e.Err)
}

func (e *LocationError) Unwrap() error {
	return e.Err
}

// FixedPositioner always reports the same position. It serves hosts
// without a positioning device whose location is configured.
type FixedPositioner Position

func (p FixedPositioner) CurrentPosition(ctx context.Context) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	return Position(p), nil
}

// Unsupported is a Positioner for hosts without positioning.
type Unsupported struct{}

func (Unsupported) CurrentPosition(context.Context) (Position, error) {
	return Position{}, ErrUnsupported
}
