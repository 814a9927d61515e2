package exporter

import (
	"archive/zip"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrosim/metroweb-backend/internal/adapter/postgres/pricing"
	"github.com/metrosim/metroweb-backend/internal/config"
	"github.com/metrosim/metroweb-backend/internal/domain"
	"github.com/metrosim/metroweb-backend/internal/tabular"
)

type fakeState struct {
	sctx  domain.SimulationContext
	nodes []domain.Node
	fns   []domain.CongestionFunction
	links []domain.Link
	types []domain.TravelerType
	seg   domain.DemandSegment
	cells map[int64][]domain.OdCell
	tolls []pricing.PolicyExportRow
}

func (f *fakeState) Get(context.Context, int64) (*domain.SimulationContext, error) {
	sctx := f.sctx
	return &sctx, nil
}

func (f *fakeState) ListNodes(context.Context, int64) ([]domain.Node, error) { return f.nodes, nil }

func (f *fakeState) ListFunctions(context.Context, int64) ([]domain.CongestionFunction, error) {
	return f.fns, nil
}

func (f *fakeState) ListLinks(context.Context, int64) ([]domain.Link, error) { return f.links, nil }

func (f *fakeState) ListTravelerTypes(context.Context, int64) ([]domain.TravelerType, error) {
	return f.types, nil
}

func (f *fakeState) GetSegmentByTravelerType(context.Context, int64, int64) (*domain.DemandSegment, error) {
	seg := f.seg
	return &seg, nil
}

func (f *fakeState) ListCells(_ context.Context, matrixID int64) ([]domain.OdCell, error) {
	return f.cells[matrixID], nil
}

func (f *fakeState) ListPoliciesForExport(context.Context, int64) ([]pricing.PolicyExportRow, error) {
	return f.tolls, nil
}

func newState() *fakeState {
	ptID := int64(31)
	tt := domain.TravelerType{ID: 50, ExternalID: 1, Name: "Cars"}
	for _, d := range tt.Distributions() {
		d.Kind = domain.DistUniform
		d.Mean = 2.5
	}
	ttExt := int64(1)
	return &fakeState{
		sctx: domain.SimulationContext{
			Simulation: domain.Simulation{ID: 1, ScenarioID: 2},
			Scenario:   domain.Scenario{ID: 2, SupplyID: 3, DemandID: 4},
			Supply:     domain.Supply{ID: 3, NetworkID: 5, FunctionSetID: 6, PTTimesID: &ptID},
		},
		nodes: []domain.Node{
			{ID: 10, Kind: domain.NodeZone, ExternalID: 1, Name: "A", X: 0, Y: 0},
			{ID: 11, Kind: domain.NodeZone, ExternalID: 2, Name: "B", X: 10.5, Y: 0},
			{ID: 12, Kind: domain.NodeIntersection, ExternalID: 3, X: 5, Y: 5},
		},
		fns: []domain.CongestionFunction{
			{ID: 40, ExternalID: 1, Name: "Free flow", Expression: domain.FreeFlowExpression},
		},
		links: []domain.Link{
			{ID: 70, ExternalID: 1, Name: "L1", OriginID: 10, DestinationID: 11,
				FunctionID: 40, Length: 5, Lanes: 2, Speed: 50, Capacity: 1000},
		},
		types: []domain.TravelerType{tt},
		seg:   domain.DemandSegment{ID: 60, DemandID: 4, TravelerTypeID: 50, MatrixID: 30, Scale: 1},
		cells: map[int64][]domain.OdCell{
			30: {{ID: 100, MatrixID: 30, OriginID: 10, DestinationID: 11, Population: 100}},
			31: {{ID: 101, MatrixID: 31, OriginID: 11, DestinationID: 10, Population: 600}},
		},
		tolls: []pricing.PolicyExportRow{
			{LinkExternalID: 1, TravelerTypeExternalID: &ttExt,
				BaseValue: 1.5, ValueVector: "2,3", TimeVector: "28800,32400"},
		},
	}
}

func newExporter(t *testing.T, f *fakeState) *Exporter {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.ImportConfig{ExportDir: t.TempDir()}
	return New(log, cfg, f, f, f, f)
}

func decodeFile(t *testing.T, path string) *tabular.Table {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	tbl, err := tabular.Decode(file, filepath.Base(path))
	require.NoError(t, err)
	return tbl
}

func TestExportScenario(t *testing.T) {
	f := newState()
	dir, err := newExporter(t, f).ExportScenario(context.Background(), 1)
	require.NoError(t, err)

	t.Run("zones round-trip", func(t *testing.T) {
		tbl := decodeFile(t, filepath.Join(dir, "zones.tsv"))
		require.Equal(t, 2, tbl.Len())
		assert.True(t, tbl.HasColumn("db_id"))
		assert.Equal(t, "A", tbl.Row(0).Field("name"))
		x, err := tbl.Row(1).Float("x")
		require.NoError(t, err)
		assert.Equal(t, 10.5, x)
	})

	t.Run("intersections are written separately", func(t *testing.T) {
		tbl := decodeFile(t, filepath.Join(dir, "intersections.tsv"))
		require.Equal(t, 1, tbl.Len())
		id, err := tbl.Row(0).Int("id")
		require.NoError(t, err)
		assert.Equal(t, int64(3), id)
	})

	t.Run("links resolve back to external ids", func(t *testing.T) {
		tbl := decodeFile(t, filepath.Join(dir, "links.tsv"))
		require.Equal(t, 1, tbl.Len())
		origin, err := tbl.Row(0).Int("origin")
		require.NoError(t, err)
		destination, err := tbl.Row(0).Int("destination")
		require.NoError(t, err)
		function, err := tbl.Row(0).Int("function")
		require.NoError(t, err)
		assert.Equal(t, int64(1), origin)
		assert.Equal(t, int64(2), destination)
		assert.Equal(t, int64(1), function)
	})

	t.Run("matrix file is named after the traveler type", func(t *testing.T) {
		tbl := decodeFile(t, filepath.Join(dir, "matrix_1.tsv"))
		require.Equal(t, 1, tbl.Len())
		pop, err := tbl.Row(0).Float("population")
		require.NoError(t, err)
		assert.Equal(t, 100.0, pop)
	})

	t.Run("public transit uses the travel time column", func(t *testing.T) {
		tbl := decodeFile(t, filepath.Join(dir, "public_transit.tsv"))
		require.Equal(t, 1, tbl.Len())
		tt, err := tbl.Row(0).Float("travel time")
		require.NoError(t, err)
		assert.Equal(t, 600.0, tt)
	})

	t.Run("pricing values rejoin base and vector", func(t *testing.T) {
		tbl := decodeFile(t, filepath.Join(dir, "pricings.tsv"))
		require.Equal(t, 1, tbl.Len())
		assert.Equal(t, "1.5,2,3", tbl.Row(0).Field("values"))
		assert.Equal(t, "28800,32400", tbl.Row(0).Field("times"))
		assert.Equal(t, "1", tbl.Row(0).Field("traveler_type"))
	})

	t.Run("traveler types carry all distribution columns", func(t *testing.T) {
		tbl := decodeFile(t, filepath.Join(dir, "traveler_types.tsv"))
		require.Equal(t, 1, tbl.Len())
		mean, err := tbl.Row(0).Float("tstar_mean")
		require.NoError(t, err)
		assert.Equal(t, 2.5, mean)
		assert.Equal(t, "UNIFORM", tbl.Row(0).Field("beta_type"))
	})
}

func TestExportScenario_emptyKindsWriteNoFile(t *testing.T) {
	f := newState()
	f.links = nil
	f.tolls = nil
	dir, err := newExporter(t, f).ExportScenario(context.Background(), 1)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "links.tsv"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "pricings.tsv"))
	assert.True(t, os.IsNotExist(err))
}

func TestExportArchive(t *testing.T) {
	f := newState()
	path, err := newExporter(t, f).ExportArchive(context.Background(), 1)
	require.NoError(t, err)

	archive, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer archive.Close()

	names := make(map[string]bool)
	for _, entry := range archive.File {
		names[entry.Name] = true
	}
	for _, want := range []string{
		"zones.tsv", "intersections.tsv", "links.tsv", "functions.tsv",
		"traveler_types.tsv", "matrix_1.tsv", "public_transit.tsv", "pricings.tsv",
	} {
		assert.True(t, names[want], "missing %s", want)
	}
}
