// Perception-replay serves recorded snapshots over the perception wire
// protocol, so the mission binary can be run against a past run without the
// camera.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/teslashibe/go-mission/internal/log"
	"github.com/teslashibe/go-mission/pkg/perception"
	"github.com/teslashibe/go-mission/pkg/perception/server"
)

func main() {
	file := flag.String("file", "", "Recorded snapshots (JSON array or JSON lines)")
	addr := flag.String("addr", ":8765", "Listen address")
	loop := flag.Bool("loop", false, "Start over after the last snapshot")
	level := flag.String("log", "info", "Log level")
	flag.Parse()

	log.Init(*level)
	logger := log.Component("perception-replay")

	if *file == "" {
		logger.Error("-file is required")
		os.Exit(2)
	}
	replay, err := perception.LoadReplay(*file, *loop)
	if err != nil {
		logger.Error("load replay", "error", err)
		os.Exit(1)
	}
	defer replay.Close()

	srv := server.New(replay, log.L())

	app := fiber.New(fiber.Config{
		AppName:               "Perception Replay",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())
	srv.RegisterRoutes(app)
	srv.RegisterAPIRoutes(app.Group("/api"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		app.Shutdown()
	}()

	logger.Info("serving replay", "file", *file, "snapshots", replay.Len(), "addr", *addr, "path", "/ws/perception")
	if err := app.Listen(*addr); err != nil {
		logger.Error("listen", "error", err)
		os.Exit(1)
	}
}
