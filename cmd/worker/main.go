package main

import (
	"os"

	"github.com/DRSN-tech/kaspi-conveyor/internal/app"
	config "github.com/DRSN-tech/kaspi-conveyor/internal/cfg"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
)

func main() {
	boot := logger.NewDefault()

	cfg, err := config.Load(boot)
	if err != nil {
		boot.Errorf(err, "failed to load config")
		os.Exit(1)
	}

	zl, err := logger.NewZapLogger(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		boot.Errorf(err, "failed to initialize logger")
		os.Exit(1)
	}
	log := zl.With("service", "worker")

	application, err := app.NewApp(cfg, log)
	if err != nil {
		log.Errorf(err, "failed to initialize worker")
		os.Exit(1)
	}

	if err := application.RunWorker(); err != nil {
		os.Exit(1)
	}
}
