package perception

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Replay is a Service that plays back recorded snapshots, one per Pull. Queries
// answer from the snapshot most recently pulled. Used for bench runs without a
// camera.
type Replay struct {
	mu      sync.Mutex
	snaps   []Snapshot
	next    int
	current Snapshot
	loop    bool
	closed  bool
}

// NewReplay creates a replay over snaps. With loop set, playback wraps around;
// otherwise the last snapshot repeats.
func NewReplay(snaps []Snapshot, loop bool) *Replay {
	return &Replay{snaps: snaps, loop: loop}
}

// LoadReplay reads snapshots from a JSON array or from JSON lines, the format
// the driver records.
func LoadReplay(path string, loop bool) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("perception: open replay: %w", err)
	}
	defer f.Close()

	snaps, err := DecodeSnapshots(f)
	if err != nil {
		return nil, fmt.Errorf("perception: %s: %w", path, err)
	}
	return NewReplay(snaps, loop), nil
}

// DecodeSnapshots parses a JSON array of snapshots or one snapshot per line.
func DecodeSnapshots(r io.Reader) ([]Snapshot, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if first == '[' {
		var snaps []Snapshot
		if err := json.NewDecoder(br).Decode(&snaps); err != nil {
			return nil, fmt.Errorf("decode snapshot array: %w", err)
		}
		return snaps, nil
	}

	var snaps []Snapshot
	dec := json.NewDecoder(br)
	for {
		var s Snapshot
		if err := dec.Decode(&s); err == io.EOF {
			return snaps, nil
		} else if err != nil {
			return nil, fmt.Errorf("decode snapshot %d: %w", len(snaps)+1, err)
		}
		snaps = append(snaps, s)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if !strings.ContainsRune(" \t\r\n", rune(b)) {
			return b, br.UnreadByte()
		}
	}
}

// Len returns the number of recorded snapshots.
func (r *Replay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

// Pull implements Service.
func (r *Replay) Pull(ctx context.Context, req Request) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Snapshot{}, ErrClosed
	}
	if len(r.snaps) == 0 {
		return Snapshot{}, ErrNoSnapshot
	}

	i := r.next
	switch {
	case i < len(r.snaps)-1:
		r.next++
	case r.loop:
		r.next = 0
	}
	r.current = r.snaps[i]
	if r.current.Seq == 0 {
		r.current.Seq = uint64(i + 1)
	}
	return r.current, nil
}

func (r *Replay) snapshot() (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Snapshot{}, ErrClosed
	}
	return r.current, nil
}

// ArrowDirection implements Service.
func (r *Replay) ArrowDirection(ctx context.Context) (*Direction, error) {
	s, err := r.snapshot()
	return s.Arrow, err
}

// DoorAlphabet implements Service.
func (r *Replay) DoorAlphabet(ctx context.Context) (*Letter, error) {
	s, err := r.snapshot()
	return s.DoorAlphabet, err
}

// RoomAlphabetInfo implements Service. Only the color is recorded.
func (r *Replay) RoomAlphabetInfo(ctx context.Context, edge EdgeInfo) (*RoomAlphabet, error) {
	s, err := r.snapshot()
	if err != nil || s.RoomAlphabetColor == nil {
		return nil, err
	}
	return &RoomAlphabet{Color: *s.RoomAlphabetColor}, nil
}

// BoxPosition implements Service.
func (r *Replay) BoxPosition(ctx context.Context, color Color, edge EdgeInfo) (*Point, error) {
	s, err := r.snapshot()
	return s.Box, err
}

// CubePosition implements Service.
func (r *Replay) CubePosition(ctx context.Context) (*Point, error) {
	s, err := r.snapshot()
	return s.Cube, err
}

// SaferoomPosition implements Service.
func (r *Replay) SaferoomPosition(ctx context.Context) (*Point, error) {
	s, err := r.snapshot()
	return s.Saferoom, err
}

// Close implements Service.
func (r *Replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
