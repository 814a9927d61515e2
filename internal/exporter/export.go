// Package exporter writes the persisted state of a simulation back to the
// tab-separated file layouts accepted by the importer, so users can edit
// offline and re-import.
package exporter

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/metrosim/metroweb-backend/internal/adapter/postgres/pricing"
	"github.com/metrosim/metroweb-backend/internal/config"
	"github.com/metrosim/metroweb-backend/internal/domain"
)

// ScenarioStore resolves the ownership chain of a simulation.
type ScenarioStore interface {
	Get(ctx context.Context, simulationID int64) (*domain.SimulationContext, error)
}

// NetworkStore reads the supply side of a simulation.
type NetworkStore interface {
	ListNodes(ctx context.Context, simulationID int64) ([]domain.Node, error)
	ListFunctions(ctx context.Context, simulationID int64) ([]domain.CongestionFunction, error)
	ListLinks(ctx context.Context, simulationID int64) ([]domain.Link, error)
}

// DemandStore reads the demand side of a simulation.
type DemandStore interface {
	ListTravelerTypes(ctx context.Context, simulationID int64) ([]domain.TravelerType, error)
	GetSegmentByTravelerType(ctx context.Context, demandID, travelerTypeID int64) (*domain.DemandSegment, error)
	ListCells(ctx context.Context, matrixID int64) ([]domain.OdCell, error)
}

// PricingStore reads the tolls of a scenario.
type PricingStore interface {
	ListPoliciesForExport(ctx context.Context, scenarioID int64) ([]pricing.PolicyExportRow, error)
}

// Exporter writes whole-scenario exports. Each export goes into a fresh
// directory under the configured export root; empty entity kinds produce no
// file, mirroring the sparse archives the importer accepts.
type Exporter struct {
	log       *slog.Logger
	cfg       config.ImportConfig
	scenarios ScenarioStore
	network   NetworkStore
	demand    DemandStore
	pricing   PricingStore
}

// New creates an Exporter.
func New(log *slog.Logger, cfg config.ImportConfig, scenarios ScenarioStore, network NetworkStore, demand DemandStore, pricing PricingStore) *Exporter {
	return &Exporter{
		log:       log,
		cfg:       cfg,
		scenarios: scenarios,
		network:   network,
		demand:    demand,
		pricing:   pricing,
	}
}

// ExportScenario writes every entity kind of the simulation as .tsv files
// into a fresh directory and returns its path.
func (e *Exporter) ExportScenario(ctx context.Context, simulationID int64) (string, error) {
	sctx, err := e.scenarios.Get(ctx, simulationID)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(e.cfg.ExportDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	nodes, err := e.network.ListNodes(ctx, simulationID)
	if err != nil {
		return "", err
	}
	if err := e.exportNodes(dir, nodes); err != nil {
		return "", err
	}

	functions, err := e.network.ListFunctions(ctx, simulationID)
	if err != nil {
		return "", err
	}
	if err := e.exportFunctions(dir, functions); err != nil {
		return "", err
	}

	if err := e.exportLinks(ctx, dir, simulationID, nodes, functions); err != nil {
		return "", err
	}

	types, err := e.demand.ListTravelerTypes(ctx, simulationID)
	if err != nil {
		return "", err
	}
	if err := e.exportTravelerTypes(dir, types); err != nil {
		return "", err
	}
	if err := e.exportMatrices(ctx, dir, sctx, types, nodes); err != nil {
		return "", err
	}
	if err := e.exportPublicTransit(ctx, dir, sctx, nodes); err != nil {
		return "", err
	}
	if err := e.exportPricings(ctx, dir, sctx); err != nil {
		return "", err
	}

	e.log.Info("scenario exported",
		slog.Int64("simulation_id", simulationID),
		slog.String("dir", dir))
	return dir, nil
}

// ExportArchive writes the scenario files and bundles them into a zip
// archive accepted by the archive importer. Returns the archive path.
func (e *Exporter) ExportArchive(ctx context.Context, simulationID int64) (string, error) {
	dir, err := e.ExportScenario(ctx, simulationID)
	if err != nil {
		return "", err
	}

	path := dir + ".zip"
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	w := zip.NewWriter(out)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read export dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		dst, err := w.Create(entry.Name())
		if err != nil {
			return "", fmt.Errorf("archive %s: %w", entry.Name(), err)
		}
		src, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			return "", fmt.Errorf("archive %s: %w", entry.Name(), err)
		}
		_, err = io.Copy(dst, src)
		src.Close()
		if err != nil {
			return "", fmt.Errorf("archive %s: %w", entry.Name(), err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finish archive: %w", err)
	}
	return path, nil
}

func (e *Exporter) exportNodes(dir string, nodes []domain.Node) error {
	byKind := map[domain.NodeKind][][]string{}
	for _, n := range nodes {
		byKind[n.Kind] = append(byKind[n.Kind], []string{
			formatInt(n.ExternalID), n.Name, formatFloat(n.X), formatFloat(n.Y),
			formatInt(n.ID),
		})
	}

	header := []string{"id", "name", "x", "y", "db_id"}
	if err := writeTSV(filepath.Join(dir, "zones.tsv"), header, byKind[domain.NodeZone]); err != nil {
		return err
	}
	return writeTSV(filepath.Join(dir, "intersections.tsv"), header, byKind[domain.NodeIntersection])
}

func (e *Exporter) exportFunctions(dir string, functions []domain.CongestionFunction) error {
	rows := make([][]string, 0, len(functions))
	for _, fn := range functions {
		rows = append(rows, []string{formatInt(fn.ExternalID), fn.Name, fn.Expression})
	}
	return writeTSV(filepath.Join(dir, "functions.tsv"),
		[]string{"id", "name", "expression"}, rows)
}

func (e *Exporter) exportLinks(ctx context.Context, dir string, simulationID int64, nodes []domain.Node, functions []domain.CongestionFunction) error {
	links, err := e.network.ListLinks(ctx, simulationID)
	if err != nil {
		return err
	}

	nodeExt := make(map[int64]int64, len(nodes))
	for _, n := range nodes {
		nodeExt[n.ID] = n.ExternalID
	}
	functionExt := make(map[int64]int64, len(functions))
	for _, fn := range functions {
		functionExt[fn.ID] = fn.ExternalID
	}

	rows := make([][]string, 0, len(links))
	for _, l := range links {
		rows = append(rows, []string{
			formatInt(l.ExternalID), l.Name, formatFloat(l.Lanes), formatFloat(l.Length),
			formatFloat(l.Speed), formatFloat(l.Capacity),
			formatInt(functionExt[l.FunctionID]),
			formatInt(nodeExt[l.OriginID]), formatInt(nodeExt[l.DestinationID]),
		})
	}
	return writeTSV(filepath.Join(dir, "links.tsv"),
		[]string{"id", "name", "lanes", "length", "speed", "capacity", "function", "origin", "destination"},
		rows)
}

func (e *Exporter) exportTravelerTypes(dir string, types []domain.TravelerType) error {
	header := []string{"id", "name", "comment"}
	for _, name := range domain.DistributionNames {
		header = append(header, name+"_mean", name+"_std", name+"_type")
	}
	header = append(header, "typeOfRouteChoice", "typeOfDepartureMu", "typeOfRouteMu",
		"typeOfModeMu", "localATIS", "modeChoice", "modeShortRun", "commuteType")

	rows := make([][]string, 0, len(types))
	for i := range types {
		tt := &types[i]
		row := []string{formatInt(tt.ExternalID), tt.Name, tt.Comment}
		for _, d := range tt.Distributions() {
			row = append(row, formatFloat(d.Mean), formatFloat(d.Std), string(d.Kind))
		}
		row = append(row, tt.TypeOfRouteChoice, tt.TypeOfDepartureMu, tt.TypeOfRouteMu,
			tt.TypeOfModeMu, tt.LocalATIS, tt.ModeChoice, tt.ModeShortRun, tt.CommuteType)
		rows = append(rows, row)
	}
	return writeTSV(filepath.Join(dir, "traveler_types.tsv"), header, rows)
}

func (e *Exporter) exportMatrices(ctx context.Context, dir string, sctx *domain.SimulationContext, types []domain.TravelerType, nodes []domain.Node) error {
	nodeExt := make(map[int64]int64, len(nodes))
	for _, n := range nodes {
		nodeExt[n.ID] = n.ExternalID
	}

	for i := range types {
		seg, err := e.demand.GetSegmentByTravelerType(ctx, sctx.Scenario.DemandID, types[i].ID)
		if err != nil {
			return err
		}
		cells, err := e.demand.ListCells(ctx, seg.MatrixID)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("matrix_%d.tsv", types[i].ExternalID)
		err = writeTSV(filepath.Join(dir, name),
			[]string{"origin", "destination", "population"}, cellRows(cells, nodeExt))
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) exportPublicTransit(ctx context.Context, dir string, sctx *domain.SimulationContext, nodes []domain.Node) error {
	if sctx.Supply.PTTimesID == nil {
		return nil
	}
	cells, err := e.demand.ListCells(ctx, *sctx.Supply.PTTimesID)
	if err != nil {
		return err
	}
	nodeExt := make(map[int64]int64, len(nodes))
	for _, n := range nodes {
		nodeExt[n.ID] = n.ExternalID
	}
	return writeTSV(filepath.Join(dir, "public_transit.tsv"),
		[]string{"origin", "destination", "travel time"}, cellRows(cells, nodeExt))
}

func (e *Exporter) exportPricings(ctx context.Context, dir string, sctx *domain.SimulationContext) error {
	tolls, err := e.pricing.ListPoliciesForExport(ctx, sctx.Scenario.ID)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(tolls))
	for _, toll := range tolls {
		values := formatFloat(toll.BaseValue)
		if toll.ValueVector != "" {
			values += "," + toll.ValueVector
		}
		travelerType := ""
		if toll.TravelerTypeExternalID != nil {
			travelerType = formatInt(*toll.TravelerTypeExternalID)
		}
		rows = append(rows, []string{
			formatInt(toll.LinkExternalID), values, toll.TimeVector, travelerType,
		})
	}
	return writeTSV(filepath.Join(dir, "pricings.tsv"),
		[]string{"link", "values", "times", "traveler_type"}, rows)
}

func cellRows(cells []domain.OdCell, nodeExt map[int64]int64) [][]string {
	rows := make([][]string, 0, len(cells))
	for _, c := range cells {
		rows = append(rows, []string{
			formatInt(nodeExt[c.OriginID]), formatInt(nodeExt[c.DestinationID]),
			formatFloat(c.Population),
		})
	}
	return rows
}

// writeTSV writes one export file, or nothing when there are no rows.
func writeTSV(path string, header []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
