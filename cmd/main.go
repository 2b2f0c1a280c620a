package main

import (
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/victornm/codejudge/internal/config"
	"github.com/victornm/codejudge/internal/server"
	"github.com/victornm/codejudge/internal/telemetry"
)

func main() {
	c := server.DefaultConfig()
	if err := config.LoadFromEnv(&c); err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	logs, err := telemetry.SetupLogger(c.Log)
	if err != nil {
		log.Fatalf("Setup logger failed: %v", err)
	}
	defer logs.Close()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		slog.Error("main: init server failed", "error", err)
		os.Exit(1)
	}

	go s.Start()

	<-shutdown
	s.Shutdown()
}
