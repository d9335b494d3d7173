// Mission runs the box-transport course: it drives the actuator controller
// over the serial link from perception snapshots until the controller sends
// its exit byte or the process is interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-mission/internal/config"
	"github.com/teslashibe/go-mission/internal/log"
	"github.com/teslashibe/go-mission/pkg/actuator"
	"github.com/teslashibe/go-mission/pkg/driver"
	"github.com/teslashibe/go-mission/pkg/mission"
	"github.com/teslashibe/go-mission/pkg/motion"
	"github.com/teslashibe/go-mission/pkg/notify"
	"github.com/teslashibe/go-mission/pkg/perception"
	"github.com/teslashibe/go-mission/pkg/perception/remote"
	"github.com/teslashibe/go-mission/pkg/web"
)

type options struct {
	envFile  string
	replay   string
	record   string
	maxTicks uint64
	noPauses bool
}

func main() {
	opts := parseFlags()

	cfg, err := config.Load(envFiles(opts.envFile)...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mission: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, opts); err != nil {
		log.Error("mission failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.envFile, "env", "", "Env file to load (default .env when present)")
	flag.StringVar(&o.replay, "replay", "", "Play recorded snapshots instead of dialing PERCEPTION_URL")
	flag.StringVar(&o.record, "record", "", "Write every snapshot to this file as JSON lines")
	flag.Uint64Var(&o.maxTicks, "ticks", 0, "Stop after this many ticks (0 runs until stopped)")
	flag.BoolVar(&o.noPauses, "no-pauses", false, "Skip the settle pauses between looks")
	flag.Parse()
	return o
}

func envFiles(path string) []string {
	if path == "" {
		return nil
	}
	return []string{path}
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	initial, err := mission.ParseMode(cfg.InitialMode)
	if err != nil {
		return err
	}

	link, err := openLink(cfg)
	if err != nil {
		return err
	}
	defer link.Close()
	link.Start(ctx)

	svc, err := openPerception(ctx, cfg, opts.replay)
	if err != nil {
		return err
	}
	defer svc.Close()

	acfg := actuator.DefaultConfig()
	acfg.MaxAttempts = cfg.MaxAttempts
	facade := actuator.NewFacade(link, acfg, log.L())

	th := mission.DefaultThresholds()
	if opts.noPauses {
		th = th.NoPauses()
	}
	machine, err := mission.NewMachine(facade, initial, th, log.L())
	if err != nil {
		return err
	}

	dcfg := driver.DefaultConfig()
	dcfg.TickInterval = cfg.TickInterval
	dcfg.MaxTicks = opts.maxTicks
	loop := driver.New(machine, svc, dcfg, log.L())
	loop.StopOn(link.Done())

	if opts.record != "" {
		f, err := os.Create(opts.record)
		if err != nil {
			return fmt.Errorf("create recording: %w", err)
		}
		defer f.Close()
		loop.Record(f)
	}

	if cfg.DashboardPort != "" {
		dash := web.NewServer(web.Options{
			Mission: machine,
			Link:    link,
			Loop:    loop.Stats,
			RunID:   loop.RunID(),
			Logger:  log.L(),
		})
		machine.Subscribe(dash)
		unsubscribe := link.Subscribe(dash.OnTelemetry)
		defer unsubscribe()
		go func() {
			if err := dash.Start(ctx, ":"+cfg.DashboardPort); err != nil {
				log.Warn("dashboard stopped", "error", err)
			}
		}()
	}

	if cfg.MQTTBroker != "" {
		ncfg := notify.DefaultConfig()
		ncfg.Broker = cfg.MQTTBroker
		ncfg.ClientID = cfg.MQTTClientID
		ncfg.Username = cfg.MQTTUsername
		ncfg.Password = cfg.MQTTPassword
		ncfg.TopicPrefix = cfg.MQTTTopicPrefix

		client, err := notify.Connect(ncfg, log.L())
		if err != nil {
			// The run goes on without notifications.
			log.Warn("mqtt disabled", "error", err)
		} else {
			defer client.Close()
			n := notify.NewNotifier(client, ncfg.TopicPrefix, loop.RunID(), log.L())
			machine.Subscribe(n)
			nctx, stop := context.WithCancel(context.Background())
			flushed := make(chan struct{})
			go func() {
				n.Run(nctx)
				close(flushed)
			}()
			defer func() {
				stop()
				<-flushed
			}()
		}
	}

	log.Info("mission starting",
		"run_id", loop.RunID(),
		"initial_mode", initial,
		"debug", link.Debug(),
	)

	err = loop.Run(ctx)
	if errors.Is(err, driver.ErrExitSignal) {
		err = nil
	}

	c := machine.Context()
	log.Info("mission finished",
		"run_id", loop.RunID(),
		"mode", c.Mode,
		"missions", c.MissionCount,
		"history", c.History.Entries(),
		"link", link.Stats(),
	)
	return err
}

func openLink(cfg *config.Config) (*motion.Protocol, error) {
	mcfg := motion.DefaultConfig()
	mcfg.AckTimeout = cfg.AckTimeout
	mcfg.SettleDelay = cfg.SettleDelay
	mcfg.PollInterval = cfg.PollInterval

	if cfg.Debug {
		log.Warn("debug mode: opcodes are logged, not sent")
		return motion.New(nil, mcfg, log.L()), nil
	}

	l, err := motion.OpenSerial(cfg.SerialPort, cfg.BaudRate, cfg.PollInterval)
	if err != nil {
		return nil, err
	}
	log.Info("serial link open", "port", cfg.SerialPort, "baud", cfg.BaudRate)
	return motion.New(l, mcfg, log.L()), nil
}

func openPerception(ctx context.Context, cfg *config.Config, replay string) (perception.Service, error) {
	if replay != "" {
		r, err := perception.LoadReplay(replay, false)
		if err != nil {
			return nil, err
		}
		log.Info("replaying snapshots", "file", replay, "snapshots", r.Len())
		return r, nil
	}
	if cfg.PerceptionURL == "" {
		return nil, errors.New("PERCEPTION_URL or -replay is required")
	}
	c, err := remote.Dial(ctx, remote.DefaultConfig(cfg.PerceptionURL), log.L())
	if err != nil {
		return nil, err
	}
	log.Info("perception connected", "url", cfg.PerceptionURL)
	return c, nil
}
