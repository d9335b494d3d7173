package motion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config tunes the link timing.
type Config struct {
	// AckTimeout bounds how long Send waits for the previous command's Ack.
	AckTimeout time.Duration
	// SettleDelay is slept after every successful write so the controller can latch the byte.
	SettleDelay time.Duration
	// PollInterval is the listener's read cadence.
	PollInterval time.Duration
	// ReadBufferSize is the listener's per-read buffer.
	ReadBufferSize int
}

// DefaultConfig returns timings that work with the stock controller firmware at 4800 baud.
func DefaultConfig() Config {
	return Config{
		AckTimeout:     2 * time.Second,
		SettleDelay:    20 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
		ReadBufferSize: 64,
	}
}

// Protocol owns the link, the in-flight slot and the telemetry listener.
//
// Flow control: a frame occupies the in-flight slot from the moment it is written
// until the listener reads an Ack. Send waits for the slot for at most AckTimeout.
// If the frame holding the slot has been outstanding longer than that, its Ack is
// considered lost and the slot is reclaimed so the next attempt can proceed.
type Protocol struct {
	link   Link
	cfg    Config
	logger *slog.Logger
	debug  bool

	// In-flight slot
	slotMu    sync.Mutex
	busy      bool
	busySince time.Time
	freed     chan struct{} // closed and replaced whenever the slot frees

	distance atomic.Uint32
	sent     atomic.Uint64
	acks     atomic.Uint64
	lost     atomic.Uint64
	spurious atomic.Uint64

	subMu  sync.RWMutex
	subs   map[int]func(TelemetryEvent)
	nextID int

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	closed    atomic.Bool
}

// New creates a protocol over link. A nil link puts the protocol in debug mode,
// where Send only logs the opcode.
func New(link Link, cfg Config, logger *slog.Logger) *Protocol {
	def := DefaultConfig()
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = def.AckTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = def.ReadBufferSize
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Protocol{
		link:   link,
		cfg:    cfg,
		logger: logger.With("component", "motion"),
		debug:  link == nil,
		freed:  make(chan struct{}),
		subs:   make(map[int]func(TelemetryEvent)),
		done:   make(chan struct{}),
	}
}

// NewDebug creates a protocol with no physical link.
func NewDebug(logger *slog.Logger) *Protocol {
	return New(nil, DefaultConfig(), logger)
}

// Debug reports whether sends are logged instead of written.
func (p *Protocol) Debug() bool {
	return p.debug
}

// Send writes one opcode. It first waits (bounded by AckTimeout and ctx) for the
// previous frame's Ack, then writes the byte and sleeps SettleDelay. Once the
// listener has stopped nothing more is written: no Ack could ever arrive.
func (p *Protocol) Send(ctx context.Context, op Opcode) error {
	if p.debug {
		p.logger.Info("tx (debug)", "opcode", int(op))
		p.sent.Add(1)
		return nil
	}
	if p.closed.Load() {
		return &LinkError{Op: "send", Opcode: op, Err: ErrLinkUnavailable}
	}
	if p.stopped() {
		return &LinkError{Op: "send", Opcode: op, Err: ErrListenerStopped}
	}

	if err := p.acquire(ctx); err != nil {
		return &LinkError{Op: "send", Opcode: op, Err: err}
	}
	if p.stopped() {
		p.free(false)
		return &LinkError{Op: "send", Opcode: op, Err: ErrListenerStopped}
	}

	if _, err := p.link.Write([]byte{byte(op)}); err != nil {
		p.free(false)
		return &LinkError{Op: "send", Opcode: op, Err: fmt.Errorf("%w: %v", ErrWriteFailed, err)}
	}
	p.sent.Add(1)
	p.logger.Debug("tx", "opcode", int(op))

	return sleepCtx(ctx, p.cfg.SettleDelay)
}

// SendFrame sends the frame's opcode Repeat times with Delay between repeats.
// It stops at the first failure.
func (p *Protocol) SendFrame(ctx context.Context, f CommandFrame) error {
	n := f.Repeat
	if n < 1 {
		n = 1
	}
	if !p.debug && p.stopped() {
		return &LinkError{Op: "send", Opcode: f.Opcode, Err: ErrListenerStopped}
	}
	for i := 0; i < n; i++ {
		if i > 0 && f.Delay > 0 {
			if err := sleepCtx(ctx, f.Delay); err != nil {
				return err
			}
		}
		if err := p.Send(ctx, f.Opcode); err != nil {
			return err
		}
	}
	return nil
}

// acquire takes the in-flight slot.
func (p *Protocol) acquire(ctx context.Context) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		p.slotMu.Lock()
		if !p.busy {
			p.busy = true
			p.busySince = time.Now()
			p.slotMu.Unlock()
			return nil
		}
		wait := p.freed
		p.slotMu.Unlock()

		if timer == nil {
			timer = time.NewTimer(p.cfg.AckTimeout)
		}

		select {
		case <-wait:
			// Someone else may grab it first; loop and check again.
		case <-timer.C:
			p.reclaimStale()
			return ErrAckTimeout
		case <-p.done:
			return ErrListenerStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// reclaimStale frees the slot if the frame holding it has waited at least
// AckTimeout. A younger frame keeps the slot.
func (p *Protocol) reclaimStale() {
	p.slotMu.Lock()
	defer p.slotMu.Unlock()

	if !p.busy {
		return
	}
	if time.Since(p.busySince) < p.cfg.AckTimeout {
		return
	}
	p.lost.Add(1)
	p.logger.Warn("ack lost, reclaiming in-flight slot", "waited", time.Since(p.busySince).Round(time.Millisecond))
	p.releaseLocked()
}

// free releases the slot. ack distinguishes an Ack from a failed write.
func (p *Protocol) free(ack bool) {
	p.slotMu.Lock()
	defer p.slotMu.Unlock()

	if !p.busy {
		if ack {
			p.spurious.Add(1)
			p.logger.Debug("spurious ack")
		}
		return
	}
	if ack {
		p.acks.Add(1)
	}
	p.releaseLocked()
}

func (p *Protocol) releaseLocked() {
	p.busy = false
	close(p.freed)
	p.freed = make(chan struct{})
}

// InFlight reports whether a frame is awaiting its Ack.
func (p *Protocol) InFlight() bool {
	p.slotMu.Lock()
	defer p.slotMu.Unlock()
	return p.busy
}

// Drain blocks until no frame is in flight or ctx is done.
func (p *Protocol) Drain(ctx context.Context) error {
	for {
		p.slotMu.Lock()
		if !p.busy {
			p.slotMu.Unlock()
			return nil
		}
		wait := p.freed
		p.slotMu.Unlock()

		select {
		case <-wait:
		case <-p.done:
			return ErrListenerStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Start launches the telemetry listener. It returns immediately; Done is closed
// when the listener stops (exit byte, read error, ctx cancelled or Close).
// In debug mode there is nothing to listen to and Start is a no-op.
func (p *Protocol) Start(ctx context.Context) {
	if p.debug {
		return
	}
	p.startOnce.Do(func() {
		go p.listen(ctx)
	})
}

// Done is closed once the listener has stopped.
func (p *Protocol) Done() <-chan struct{} {
	return p.done
}

func (p *Protocol) stopped() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Protocol) stop(reason string) {
	p.stopOnce.Do(func() {
		p.logger.Info("listener stopped", "reason", reason)
		close(p.done)
	})
}

func (p *Protocol) listen(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	buf := make([]byte, p.cfg.ReadBufferSize)
	p.logger.Info("listener started", "poll", p.cfg.PollInterval)

	for {
		select {
		case <-ctx.Done():
			p.stop("context cancelled")
			return
		case <-p.done:
			return
		case <-ticker.C:
		}

		// Drain everything buffered before sleeping again.
		for {
			n, err := p.link.Read(buf)
			for _, b := range buf[:n] {
				if p.handle(b) {
					p.stop("exit signal")
					return
				}
			}
			if err != nil {
				if isIdle(err) {
					break
				}
				if p.closed.Load() {
					p.stop("closed")
					return
				}
				p.logger.Error("read failed", "error", err)
				p.stop("read error")
				return
			}
			if n == 0 {
				break
			}
		}
	}
}

// handle processes one inbound byte and reports whether the listener must exit.
func (p *Protocol) handle(b byte) bool {
	ev := Decode(b)
	ev.At = time.Now()

	switch ev.Kind {
	case EventExit:
		p.publish(ev)
		return true
	case EventAck:
		p.free(true)
	case EventDistance:
		p.distance.Store(uint32(b))
	}
	p.publish(ev)
	return false
}

// isIdle reports whether a read error just means nothing was buffered.
func isIdle(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// Distance returns the latest IR sample, 0 if none has arrived.
func (p *Protocol) Distance() uint8 {
	return uint8(p.distance.Load())
}

// Subscribe registers fn for every decoded telemetry event and returns an
// unsubscribe function. fn runs on the listener goroutine and must not block.
func (p *Protocol) Subscribe(fn func(TelemetryEvent)) func() {
	p.subMu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.subMu.Unlock()

	return func() {
		p.subMu.Lock()
		delete(p.subs, id)
		p.subMu.Unlock()
	}
}

func (p *Protocol) publish(ev TelemetryEvent) {
	p.subMu.RLock()
	defer p.subMu.RUnlock()
	for _, fn := range p.subs {
		fn(ev)
	}
}

// Stats returns the link counters.
func (p *Protocol) Stats() Stats {
	return Stats{
		Sent:     p.sent.Load(),
		Acks:     p.acks.Load(),
		Lost:     p.lost.Load(),
		Spurious: p.spurious.Load(),
		Distance: p.Distance(),
		InFlight: p.InFlight(),
		Debug:    p.debug,
	}
}

// Close stops the listener and closes the link.
func (p *Protocol) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.stop("closed")
	if p.link == nil {
		return nil
	}
	return p.link.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
