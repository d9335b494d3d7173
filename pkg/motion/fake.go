package motion

import (
	"io"
	"sync"
	"time"
)

// FakeLink is an in-memory Link for tests and bench runs without hardware.
// Read behaves like a serial port with a read timeout: it returns (0, io.EOF)
// when nothing has been injected.
type FakeLink struct {
	mu       sync.Mutex
	rx       []byte
	tx       []byte
	writeErr error
	closed   bool

	autoAck  bool
	ackDelay time.Duration

	unacked    int
	maxUnacked int
}

// NewFakeLink creates an empty fake link.
func NewFakeLink() *FakeLink {
	return &FakeLink{}
}

// AutoAck makes the fake answer every written opcode with an Ack after delay.
func (f *FakeLink) AutoAck(delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoAck = true
	f.ackDelay = delay
}

// FailWrites makes every later Write return err. Pass nil to heal the link.
func (f *FakeLink) FailWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// Inject queues bytes for the listener to read.
func (f *FakeLink) Inject(b ...byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rx = append(f.rx, b...)
}

// Written returns a copy of every byte written so far.
func (f *FakeLink) Written() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, len(f.tx))
	copy(out, f.tx)
	return out
}

// MaxUnacked is the most writes ever outstanding without an Ack being read.
func (f *FakeLink) MaxUnacked() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxUnacked
}

// Read implements io.Reader.
func (f *FakeLink) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, io.ErrClosedPipe
	}
	if len(f.rx) == 0 {
		return 0, io.EOF
	}
	n := copy(p, f.rx)
	for _, b := range f.rx[:n] {
		if b == ByteAck && f.unacked > 0 {
			f.unacked--
		}
	}
	f.rx = f.rx[n:]
	return n, nil
}

// Write implements io.Writer.
func (f *FakeLink) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, io.ErrClosedPipe
	}
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.tx = append(f.tx, p...)
	f.unacked += len(p)
	if f.unacked > f.maxUnacked {
		f.maxUnacked = f.unacked
	}

	if f.autoAck {
		acks := len(p)
		if f.ackDelay <= 0 {
			for i := 0; i < acks; i++ {
				f.rx = append(f.rx, ByteAck)
			}
		} else {
			time.AfterFunc(f.ackDelay, func() {
				for i := 0; i < acks; i++ {
					f.Inject(ByteAck)
				}
			})
		}
	}
	return len(p), nil
}

// Close implements io.Closer.
func (f *FakeLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
