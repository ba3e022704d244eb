package main

import (
	"os"

	"github.com/DRSN-tech/kaspi-conveyor/internal/app"
	config "github.com/DRSN-tech/kaspi-conveyor/internal/cfg"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
)

func main() {
	log, cfg := bootstrap()

	application, err := app.NewApp(cfg, log)
	if err != nil {
		log.Errorf(err, "failed to initialize app")
		os.Exit(1)
	}

	if err := application.RunAPI(); err != nil {
		os.Exit(1)
	}
}

func bootstrap() (logger.Logger, *config.Config) {
	boot := logger.NewDefault()

	cfg, err := config.Load(boot)
	if err != nil {
		boot.Errorf(err, "failed to load config")
		os.Exit(1)
	}

	log, err := logger.NewZapLogger(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		boot.Errorf(err, "failed to initialize logger")
		os.Exit(1)
	}

	return log.With("service", "api"), cfg
}
