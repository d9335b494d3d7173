// Motion-test sends opcodes to the actuator controller by hand and prints the
// telemetry it sends back.
//
//	motion-test -port /dev/ttyUSB0 29 29 0x1f
//	motion-test -listen 10s              (only print telemetry)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/teslashibe/go-mission/internal/config"
	"github.com/teslashibe/go-mission/internal/log"
	"github.com/teslashibe/go-mission/pkg/motion"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "motion-test: %v\n", err)
		os.Exit(1)
	}

	port := flag.String("port", cfg.SerialPort, "Serial port")
	baud := flag.Int("baud", cfg.BaudRate, "Baud rate")
	debug := flag.Bool("debug", cfg.Debug, "Log opcodes instead of writing them")
	repeat := flag.Int("repeat", 1, "Send each opcode this many times")
	delay := flag.Duration("delay", 0, "Pause between repeats")
	listen := flag.Duration("listen", 2*time.Second, "Keep printing telemetry this long after the last send")
	level := flag.String("log", cfg.LogLevel, "Log level")
	flag.Parse()

	log.Init(*level)

	ops, err := parseOpcodes(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "motion-test: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mcfg := motion.DefaultConfig()
	mcfg.AckTimeout = cfg.AckTimeout
	mcfg.SettleDelay = cfg.SettleDelay

	var link motion.Link
	if !*debug {
		link, err = motion.OpenSerial(*port, *baud, cfg.PollInterval)
		if err != nil {
			log.Error("open serial", "error", err)
			os.Exit(1)
		}
	}
	p := motion.New(link, mcfg, log.L())
	defer p.Close()

	p.Subscribe(func(ev motion.TelemetryEvent) {
		fmt.Printf("%s  rx %-8s %3d\n", ev.At.Format("15:04:05.000"), ev.Kind, ev.Value)
	})
	p.Start(ctx)

	for _, op := range ops {
		f := motion.CommandFrame{Opcode: op, Repeat: *repeat, Delay: *delay}
		start := time.Now()
		if err := p.SendFrame(ctx, f); err != nil {
			log.Error("send failed", "frame", f.String(), "error", err)
			break
		}
		fmt.Printf("%s  tx %s (%s)\n", time.Now().Format("15:04:05.000"), f, time.Since(start).Round(time.Millisecond))
	}

	select {
	case <-ctx.Done():
	case <-p.Done():
		fmt.Println("controller sent exit")
	case <-time.After(*listen):
	}

	s := p.Stats()
	fmt.Printf("sent=%d acks=%d lost=%d spurious=%d distance=%d\n", s.Sent, s.Acks, s.Lost, s.Spurious, s.Distance)
}

// parseOpcodes accepts decimal or 0x-prefixed bytes.
func parseOpcodes(args []string) ([]motion.Opcode, error) {
	ops := make([]motion.Opcode, 0, len(args))
	for _, a := range args {
		v, err := strconv.ParseUint(a, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("bad opcode %q: want 0-255", a)
		}
		ops = append(ops, motion.Opcode(v))
	}
	return ops, nil
}
