// Command importer loads scenario files into a simulation. It accepts
// either a single entity-kind file or a whole-scenario zip archive and
// reconciles it against the current database state.
//
// Flags:
//
//	--simulation      target simulation id (required unless --create is set)
//	--create          create a fresh scaffolded simulation with this name
//	--archive         path to a scenario zip archive
//	--file            path to a single entity file
//	--kind            entity kind of --file (zones, intersections, links,
//	                  functions, public_transit, traveler_types, pricings)
//	--traveler-type   traveler type external id, required for --kind matrix
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/metrosim/metroweb-backend/internal/adapter/postgres"
	"github.com/metrosim/metroweb-backend/internal/adapter/postgres/demand"
	"github.com/metrosim/metroweb-backend/internal/adapter/postgres/network"
	"github.com/metrosim/metroweb-backend/internal/adapter/postgres/pricing"
	"github.com/metrosim/metroweb-backend/internal/adapter/postgres/scenario"
	"github.com/metrosim/metroweb-backend/internal/app"
	"github.com/metrosim/metroweb-backend/internal/config"
	"github.com/metrosim/metroweb-backend/internal/importer"
)

// Compile-time interface assertions.
var (
	_ importer.ScenarioStore = (*scenario.Repo)(nil)
	_ importer.NetworkStore  = (*network.Repo)(nil)
	_ importer.DemandStore   = (*demand.Repo)(nil)
	_ importer.PricingStore  = (*pricing.Repo)(nil)
)

func main() {
	simulationFlag := flag.Int64("simulation", 0, "target simulation id")
	createFlag := flag.String("create", "", "create a fresh simulation with this name")
	archiveFlag := flag.String("archive", "", "path to a scenario zip archive")
	fileFlag := flag.String("file", "", "path to a single entity file")
	kindFlag := flag.String("kind", "", "entity kind of --file")
	travelerTypeFlag := flag.Int64("traveler-type", 0, "traveler type external id for --kind matrix")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := app.NewLogger(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)
	scenarios := scenario.New(pool)
	im := importer.New(
		logger, cfg.Import, txm,
		scenarios,
		network.New(pool, cfg.Import.ObjectChunkSize),
		demand.New(pool, cfg.Import.CellChunkSize),
		pricing.New(pool),
	)

	simulationID := *simulationFlag
	if *createFlag != "" {
		sctx, err := scenarios.Create(ctx, *createFlag, "")
		if err != nil {
			logger.Error("create simulation", slog.String("error", err.Error()))
			os.Exit(1)
		}
		simulationID = sctx.Simulation.ID
		logger.Info("simulation created",
			slog.Int64("simulation_id", simulationID),
			slog.String("name", *createFlag))
	}
	if simulationID == 0 {
		logger.Error("no target simulation: pass --simulation or --create")
		os.Exit(1)
	}

	switch {
	case *archiveFlag != "":
		report, err := im.ImportArchive(ctx, simulationID, *archiveFlag)
		if err != nil {
			logger.Error("import archive", slog.String("error", err.Error()))
			os.Exit(1)
		}
		for _, res := range report.Results {
			logger.Info("archive step", slog.String("result", res.String()))
		}
		if len(report.Failed()) > 0 {
			logger.Warn("archive import completed with failed kinds",
				slog.Int("failed", len(report.Failed())))
			os.Exit(1)
		}
	case *fileFlag != "":
		res := runFile(ctx, im, simulationID, *fileFlag, *kindFlag, *travelerTypeFlag, logger)
		if res.Err != nil {
			os.Exit(1)
		}
	default:
		logger.Error("nothing to do: pass --archive or --file")
		os.Exit(1)
	}

	logger.Info("import completed successfully")
}

func runFile(ctx context.Context, im *importer.Importer, simulationID int64, path, kind string, travelerType int64, logger *slog.Logger) importer.KindResult {
	f, err := os.Open(path)
	if err != nil {
		logger.Error("open file", slog.String("error", err.Error()))
		return importer.KindResult{Err: err}
	}
	defer f.Close()
	name := filepath.Base(path)

	switch importer.EntityKind(kind) {
	case importer.KindZones:
		return im.ImportZones(ctx, simulationID, f, name)
	case importer.KindIntersections:
		return im.ImportIntersections(ctx, simulationID, f, name)
	case importer.KindLinks:
		return im.ImportLinks(ctx, simulationID, f, name)
	case importer.KindFunctions:
		return im.ImportFunctions(ctx, simulationID, f, name)
	case importer.KindPublicTransit:
		return im.ImportPublicTransit(ctx, simulationID, f, name)
	case importer.KindTravelerTypes:
		return im.ImportTravelerTypes(ctx, simulationID, f, name)
	case importer.KindMatrix:
		if travelerType == 0 {
			logger.Error("--kind matrix requires --traveler-type")
			return importer.KindResult{Err: os.ErrInvalid}
		}
		return im.ImportMatrix(ctx, simulationID, travelerType, f, name)
	case importer.KindPricing:
		return im.ImportPricing(ctx, simulationID, f, name)
	default:
		logger.Error("unknown entity kind", slog.String("kind", kind))
		return importer.KindResult{Err: os.ErrInvalid}
	}
}
