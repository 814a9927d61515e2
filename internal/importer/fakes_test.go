package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/metrosim/metroweb-backend/internal/adapter/postgres/pricing"
	"github.com/metrosim/metroweb-backend/internal/config"
	"github.com/metrosim/metroweb-backend/internal/domain"
)

// fakeStore is an in-memory implementation of the four store interfaces,
// backing whole-flow importer tests without a database.
type fakeStore struct {
	sctx domain.SimulationContext

	nodes     []domain.Node
	functions []domain.CongestionFunction
	links     []domain.Link

	travelerTypes []domain.TravelerType
	segments      []domain.DemandSegment
	matrices      map[int64]*domain.OdMatrix
	cells         map[int64][]domain.OdCell

	selections     []domain.LinkSelection
	selectionLinks map[int64]int64
	policies       []domain.PricingPolicy

	nextID      int64
	markChanged int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sctx: domain.SimulationContext{
			Simulation: domain.Simulation{ID: 1, ScenarioID: 2},
			Scenario:   domain.Scenario{ID: 2, SupplyID: 3, DemandID: 4},
			Supply:     domain.Supply{ID: 3, NetworkID: 5, FunctionSetID: 6},
			Demand:     domain.Demand{ID: 4, Scale: 1},
		},
		matrices:       map[int64]*domain.OdMatrix{},
		cells:          map[int64][]domain.OdCell{},
		selectionLinks: map[int64]int64{},
		nextID:         1000,
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

// passthroughTx satisfies TxRunner without transactional semantics.
type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestImporter(f *fakeStore) *Importer {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.ImportConfig{ObjectChunkSize: 10000, CellChunkSize: 20000}
	return New(log, cfg, passthroughTx{}, f, f, f, f)
}

// --- ScenarioStore ---

func (f *fakeStore) Get(_ context.Context, simulationID int64) (*domain.SimulationContext, error) {
	if simulationID != f.sctx.Simulation.ID {
		return nil, domain.ErrNotFound
	}
	sctx := f.sctx
	return &sctx, nil
}

func (f *fakeStore) MarkChanged(context.Context, int64) error {
	f.markChanged++
	return nil
}

func (f *fakeStore) AttachPTMatrix(_ context.Context, _, matrixID int64) error {
	f.sctx.Supply.PTTimesID = &matrixID
	return nil
}

// --- NetworkStore ---

func (f *fakeStore) ListNodes(context.Context, int64) ([]domain.Node, error) {
	return append([]domain.Node(nil), f.nodes...), nil
}

func (f *fakeStore) ListFunctions(context.Context, int64) ([]domain.CongestionFunction, error) {
	return append([]domain.CongestionFunction(nil), f.functions...), nil
}

func (f *fakeStore) ListLinks(context.Context, int64) ([]domain.Link, error) {
	return append([]domain.Link(nil), f.links...), nil
}

func (f *fakeStore) BulkInsertNodes(_ context.Context, kind domain.NodeKind, rows []domain.Node) ([]int64, error) {
	ids := make([]int64, 0, len(rows))
	for _, n := range rows {
		n.ID = f.id()
		n.Kind = kind
		f.nodes = append(f.nodes, n)
		ids = append(ids, n.ID)
	}
	return ids, nil
}

func (f *fakeStore) BulkInsertFunctions(_ context.Context, rows []domain.CongestionFunction) ([]int64, error) {
	ids := make([]int64, 0, len(rows))
	for _, fn := range rows {
		fn.ID = f.id()
		f.functions = append(f.functions, fn)
		ids = append(ids, fn.ID)
	}
	return ids, nil
}

func (f *fakeStore) BulkInsertLinks(_ context.Context, rows []domain.Link) ([]int64, error) {
	ids := make([]int64, 0, len(rows))
	for _, l := range rows {
		l.ID = f.id()
		f.links = append(f.links, l)
		ids = append(ids, l.ID)
	}
	return ids, nil
}

func (f *fakeStore) UpdateNodes(_ context.Context, rows []domain.Node) (int, error) {
	for _, upd := range rows {
		for i := range f.nodes {
			if f.nodes[i].ID == upd.ID {
				f.nodes[i].Name, f.nodes[i].X, f.nodes[i].Y = upd.Name, upd.X, upd.Y
			}
		}
	}
	return len(rows), nil
}

func (f *fakeStore) UpdateFunctions(_ context.Context, rows []domain.CongestionFunction) (int, error) {
	for _, upd := range rows {
		for i := range f.functions {
			if f.functions[i].ID == upd.ID {
				f.functions[i].Name, f.functions[i].Expression = upd.Name, upd.Expression
			}
		}
	}
	return len(rows), nil
}

func (f *fakeStore) DeleteLinksByIDs(_ context.Context, ids []int64) error {
	for _, id := range ids {
		for i := range f.links {
			if f.links[i].ID == id {
				f.links = append(f.links[:i], f.links[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (f *fakeStore) AddNodesToNetwork(context.Context, int64, []int64) error { return nil }
func (f *fakeStore) AddFunctionsToSet(context.Context, int64, []int64) error { return nil }
func (f *fakeStore) AddLinksToNetwork(context.Context, int64, []int64) error { return nil }

// --- DemandStore ---

func (f *fakeStore) ListTravelerTypes(context.Context, int64) ([]domain.TravelerType, error) {
	return append([]domain.TravelerType(nil), f.travelerTypes...), nil
}

func (f *fakeStore) CreateTravelerType(_ context.Context, tt *domain.TravelerType) error {
	for _, d := range tt.Distributions() {
		d.ID = f.id()
	}
	tt.ID = f.id()
	f.travelerTypes = append(f.travelerTypes, *tt)
	return nil
}

func (f *fakeStore) DeleteTravelerType(_ context.Context, tt domain.TravelerType) error {
	for i := range f.travelerTypes {
		if f.travelerTypes[i].ID == tt.ID {
			f.travelerTypes = append(f.travelerTypes[:i], f.travelerTypes[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeStore) NextExternalID(context.Context, int64) (int64, error) {
	var max int64
	for _, tt := range f.travelerTypes {
		if tt.ExternalID > max {
			max = tt.ExternalID
		}
	}
	return max + 1, nil
}

func (f *fakeStore) GetSegmentByTravelerType(_ context.Context, demandID, travelerTypeID int64) (*domain.DemandSegment, error) {
	for i := range f.segments {
		if f.segments[i].DemandID == demandID && f.segments[i].TravelerTypeID == travelerTypeID {
			seg := f.segments[i]
			return &seg, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeStore) CreateSegment(_ context.Context, demandID, travelerTypeID int64, matrixName string) (*domain.DemandSegment, error) {
	matrixID, _ := f.CreateMatrix(context.Background(), matrixName)
	seg := domain.DemandSegment{
		ID: f.id(), DemandID: demandID, TravelerTypeID: travelerTypeID,
		MatrixID: matrixID, Scale: 1,
	}
	f.segments = append(f.segments, seg)
	return &seg, nil
}

func (f *fakeStore) RepointSegment(_ context.Context, segmentID, travelerTypeID int64) error {
	for i := range f.segments {
		if f.segments[i].ID == segmentID {
			f.segments[i].TravelerTypeID = travelerTypeID
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeStore) CreateMatrix(_ context.Context, name string) (int64, error) {
	id := f.id()
	f.matrices[id] = &domain.OdMatrix{ID: id, Name: name}
	return id, nil
}

func (f *fakeStore) ListCells(_ context.Context, matrixID int64) ([]domain.OdCell, error) {
	return append([]domain.OdCell(nil), f.cells[matrixID]...), nil
}

func (f *fakeStore) BulkInsertCells(_ context.Context, matrixID int64, cells []domain.OdCell) error {
	for _, c := range cells {
		c.ID = f.id()
		c.MatrixID = matrixID
		f.cells[matrixID] = append(f.cells[matrixID], c)
	}
	return nil
}

func (f *fakeStore) DeleteCellsByIDs(_ context.Context, ids []int64) error {
	for _, id := range ids {
		for matrixID, cells := range f.cells {
			for i := range cells {
				if cells[i].ID == id {
					f.cells[matrixID] = append(cells[:i], cells[i+1:]...)
					break
				}
			}
		}
	}
	return nil
}

func (f *fakeStore) RecomputeTotal(_ context.Context, matrixID int64, scale float64) (float64, error) {
	m, ok := f.matrices[matrixID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	var sum float64
	for _, c := range f.cells[matrixID] {
		sum += c.Population
	}
	m.Total = scale * sum
	return m.Total, nil
}

// --- PricingStore ---

func (f *fakeStore) GetSelectionForLink(_ context.Context, networkID, linkID int64) (*domain.LinkSelection, error) {
	for i := range f.selections {
		if f.selections[i].NetworkID == networkID && f.selectionLinks[f.selections[i].ID] == linkID {
			sel := f.selections[i]
			return &sel, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeStore) CreateSelectionForLink(_ context.Context, networkID, linkID, externalID int64, name string) (*domain.LinkSelection, error) {
	sel := domain.LinkSelection{ID: f.id(), NetworkID: networkID, ExternalID: externalID, Name: name}
	f.selections = append(f.selections, sel)
	f.selectionLinks[sel.ID] = linkID
	return &sel, nil
}

func (f *fakeStore) GetPolicyByLocation(_ context.Context, scenarioID, locationID int64) (*domain.PricingPolicy, error) {
	for i := range f.policies {
		if f.policies[i].ScenarioID == scenarioID && f.policies[i].LocationID == locationID {
			p := f.policies[i]
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeStore) CreatePolicy(_ context.Context, p *domain.PricingPolicy) error {
	p.ID = f.id()
	f.policies = append(f.policies, *p)
	return nil
}

func (f *fakeStore) UpdatePolicy(_ context.Context, p *domain.PricingPolicy) error {
	for i := range f.policies {
		if f.policies[i].ID == p.ID {
			f.policies[i] = *p
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeStore) RepointPolicies(_ context.Context, oldTravelerTypeID, newTravelerTypeID int64) (int, error) {
	var n int
	for i := range f.policies {
		ttID := f.policies[i].TravelerTypeID
		if ttID != nil && *ttID == oldTravelerTypeID {
			id := newTravelerTypeID
			f.policies[i].TravelerTypeID = &id
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListPoliciesForExport(context.Context, int64) ([]pricing.PolicyExportRow, error) {
	var rows []pricing.PolicyExportRow
	for _, p := range f.policies {
		linkID := f.selectionLinks[p.LocationID]
		var linkExt int64
		for _, l := range f.links {
			if l.ID == linkID {
				linkExt = l.ExternalID
			}
		}
		var ttExt *int64
		if p.TravelerTypeID != nil {
			for _, tt := range f.travelerTypes {
				if tt.ID == *p.TravelerTypeID {
					ext := tt.ExternalID
					ttExt = &ext
				}
			}
		}
		rows = append(rows, pricing.PolicyExportRow{
			LinkExternalID:         linkExt,
			TravelerTypeExternalID: ttExt,
			BaseValue:              p.BaseValue,
			ValueVector:            p.ValueVector,
			TimeVector:             p.TimeVector,
		})
	}
	return rows, nil
}

// seedSupply installs the default scaffolding most tests start from: two
// zones and the pre-seeded free-flow function.
func (f *fakeStore) seedSupply(t *testing.T) {
	t.Helper()
	f.nodes = []domain.Node{
		{ID: f.id(), Kind: domain.NodeZone, ExternalID: 1, Name: "A", X: 0, Y: 0},
		{ID: f.id(), Kind: domain.NodeZone, ExternalID: 2, Name: "B", X: 10, Y: 0},
	}
	f.functions = []domain.CongestionFunction{
		{ID: f.id(), ExternalID: 1, Name: "Free flow", Expression: domain.FreeFlowExpression},
	}
}

// seedTravelerType installs one traveler type with its segment and matrix.
func (f *fakeStore) seedTravelerType(t *testing.T, externalID int64, name string) domain.TravelerType {
	t.Helper()
	tt := domain.TravelerType{ExternalID: externalID, Name: name}
	if err := f.CreateTravelerType(context.Background(), &tt); err != nil {
		t.Fatalf("seed traveler type: %v", err)
	}
	matrixName := fmt.Sprintf("OD matrix of %s", name)
	if _, err := f.CreateSegment(context.Background(), f.sctx.Scenario.DemandID, tt.ID, matrixName); err != nil {
		t.Fatalf("seed segment: %v", err)
	}
	return tt
}
