// Command exporter writes the persisted state of a simulation back to the
// tab-separated files accepted by the importer, optionally bundled as a zip
// archive.
//
// Flags:
//
//	--simulation  simulation id to export (required)
//	--zip         bundle the export into a zip archive
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/metrosim/metroweb-backend/internal/adapter/postgres"
	"github.com/metrosim/metroweb-backend/internal/adapter/postgres/demand"
	"github.com/metrosim/metroweb-backend/internal/adapter/postgres/network"
	"github.com/metrosim/metroweb-backend/internal/adapter/postgres/pricing"
	"github.com/metrosim/metroweb-backend/internal/adapter/postgres/scenario"
	"github.com/metrosim/metroweb-backend/internal/app"
	"github.com/metrosim/metroweb-backend/internal/config"
	"github.com/metrosim/metroweb-backend/internal/exporter"
)

// Compile-time interface assertions.
var (
	_ exporter.ScenarioStore = (*scenario.Repo)(nil)
	_ exporter.NetworkStore  = (*network.Repo)(nil)
	_ exporter.DemandStore   = (*demand.Repo)(nil)
	_ exporter.PricingStore  = (*pricing.Repo)(nil)
)

func main() {
	simulationFlag := flag.Int64("simulation", 0, "simulation id to export")
	zipFlag := flag.Bool("zip", false, "bundle the export into a zip archive")
	flag.Parse()

	if *simulationFlag == 0 {
		log.Fatal("pass --simulation")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := app.NewLogger(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	ex := exporter.New(
		logger, cfg.Import,
		scenario.New(pool),
		network.New(pool, cfg.Import.ObjectChunkSize),
		demand.New(pool, cfg.Import.CellChunkSize),
		pricing.New(pool),
	)

	var path string
	if *zipFlag {
		path, err = ex.ExportArchive(ctx, *simulationFlag)
	} else {
		path, err = ex.ExportScenario(ctx, *simulationFlag)
	}
	if err != nil {
		logger.Error("export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("export completed", slog.String("path", path))
}
