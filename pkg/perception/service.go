package perception

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned after the service has been closed.
	ErrClosed = errors.New("perception: service closed")

	// ErrNoSnapshot is returned when the service has nothing to report yet.
	ErrNoSnapshot = errors.New("perception: no snapshot available")
)

// Service is the vision process as seen from the mission.
type Service interface {
	// Pull returns the current tick's snapshot.
	Pull(ctx context.Context, req Request) (Snapshot, error)

	ArrowDirection(ctx context.Context) (*Direction, error)
	DoorAlphabet(ctx context.Context) (*Letter, error)
	RoomAlphabetInfo(ctx context.Context, edge EdgeInfo) (*RoomAlphabet, error)
	BoxPosition(ctx context.Context, color Color, edge EdgeInfo) (*Point, error)
	CubePosition(ctx context.Context) (*Point, error)
	SaferoomPosition(ctx context.Context) (*Point, error)

	Close() error
}

// Enrich fills fields that req asks for but snap lacks by querying svc. A query
// that finds nothing leaves the field nil.
func Enrich(ctx context.Context, svc Service, req Request, snap Snapshot) (Snapshot, error) {
	if req.Arrow && snap.Arrow == nil {
		d, err := svc.ArrowDirection(ctx)
		if err != nil {
			return snap, fmt.Errorf("perception: arrow direction: %w", err)
		}
		snap.Arrow = d
	}

	if req.DoorAlphabet && snap.DoorAlphabet == nil {
		l, err := svc.DoorAlphabet(ctx)
		if err != nil {
			return snap, fmt.Errorf("perception: door alphabet: %w", err)
		}
		snap.DoorAlphabet = l
	}

	if req.RoomAlphabet && snap.RoomAlphabetColor == nil {
		ra, err := svc.RoomAlphabetInfo(ctx, snap.Edge)
		if err != nil {
			return snap, fmt.Errorf("perception: room alphabet: %w", err)
		}
		if ra != nil {
			c := ra.Color
			snap.RoomAlphabetColor = &c
		}
	}

	if req.Box && snap.Box == nil && req.BoxColor != "" {
		p, err := svc.BoxPosition(ctx, req.BoxColor, snap.Edge)
		if err != nil {
			return snap, fmt.Errorf("perception: box position: %w", err)
		}
		snap.Box = p
	}

	if req.Cube && snap.Cube == nil {
		p, err := svc.CubePosition(ctx)
		if err != nil {
			return snap, fmt.Errorf("perception: cube position: %w", err)
		}
		snap.Cube = p
	}

	if req.Saferoom && snap.Saferoom == nil {
		p, err := svc.SaferoomPosition(ctx)
		if err != nil {
			return snap, fmt.Errorf("perception: saferoom position: %w", err)
		}
		snap.Saferoom = p
	}

	return snap, nil
}
