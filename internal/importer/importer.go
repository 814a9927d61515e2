package importer

import (
	"context"
	"log/slog"

	"github.com/metrosim/metroweb-backend/internal/adapter/postgres/pricing"
	"github.com/metrosim/metroweb-backend/internal/config"
	"github.com/metrosim/metroweb-backend/internal/domain"
)

// ScenarioStore resolves the ownership chain of a simulation and flips its
// dirty bit.
type ScenarioStore interface {
	Get(ctx context.Context, simulationID int64) (*domain.SimulationContext, error)
	MarkChanged(ctx context.Context, simulationID int64) error
	AttachPTMatrix(ctx context.Context, supplyID, matrixID int64) error
}

// NetworkStore persists nodes, congestion functions and links.
type NetworkStore interface {
	ListNodes(ctx context.Context, simulationID int64) ([]domain.Node, error)
	ListFunctions(ctx context.Context, simulationID int64) ([]domain.CongestionFunction, error)
	ListLinks(ctx context.Context, simulationID int64) ([]domain.Link, error)

	BulkInsertNodes(ctx context.Context, kind domain.NodeKind, rows []domain.Node) ([]int64, error)
	BulkInsertFunctions(ctx context.Context, rows []domain.CongestionFunction) ([]int64, error)
	BulkInsertLinks(ctx context.Context, rows []domain.Link) ([]int64, error)

	UpdateNodes(ctx context.Context, rows []domain.Node) (int, error)
	UpdateFunctions(ctx context.Context, rows []domain.CongestionFunction) (int, error)
	DeleteLinksByIDs(ctx context.Context, ids []int64) error

	AddNodesToNetwork(ctx context.Context, networkID int64, nodeIDs []int64) error
	AddFunctionsToSet(ctx context.Context, functionSetID int64, functionIDs []int64) error
	AddLinksToNetwork(ctx context.Context, networkID int64, linkIDs []int64) error
}

// DemandStore persists traveler types, demand segments and OD matrices.
type DemandStore interface {
	ListTravelerTypes(ctx context.Context, simulationID int64) ([]domain.TravelerType, error)
	CreateTravelerType(ctx context.Context, tt *domain.TravelerType) error
	DeleteTravelerType(ctx context.Context, tt domain.TravelerType) error
	NextExternalID(ctx context.Context, simulationID int64) (int64, error)

	GetSegmentByTravelerType(ctx context.Context, demandID, travelerTypeID int64) (*domain.DemandSegment, error)
	CreateSegment(ctx context.Context, demandID, travelerTypeID int64, matrixName string) (*domain.DemandSegment, error)
	RepointSegment(ctx context.Context, segmentID, travelerTypeID int64) error

	CreateMatrix(ctx context.Context, name string) (int64, error)
	ListCells(ctx context.Context, matrixID int64) ([]domain.OdCell, error)
	BulkInsertCells(ctx context.Context, matrixID int64, cells []domain.OdCell) error
	DeleteCellsByIDs(ctx context.Context, ids []int64) error
	RecomputeTotal(ctx context.Context, matrixID int64, scale float64) (float64, error)
}

// PricingStore persists policies and their single-link selections.
type PricingStore interface {
	GetSelectionForLink(ctx context.Context, networkID, linkID int64) (*domain.LinkSelection, error)
	CreateSelectionForLink(ctx context.Context, networkID, linkID, externalID int64, name string) (*domain.LinkSelection, error)
	GetPolicyByLocation(ctx context.Context, scenarioID, locationID int64) (*domain.PricingPolicy, error)
	CreatePolicy(ctx context.Context, p *domain.PricingPolicy) error
	UpdatePolicy(ctx context.Context, p *domain.PricingPolicy) error
	RepointPolicies(ctx context.Context, oldTravelerTypeID, newTravelerTypeID int64) (int, error)
	ListPoliciesForExport(ctx context.Context, scenarioID int64) ([]pricing.PolicyExportRow, error)
}

// TxRunner executes a function inside one storage transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Importer reconciles uploaded files against the persisted state of one
// simulation. Each entity kind runs in its own transaction; a whole-archive
// import is not atomic across kinds.
type Importer struct {
	log       *slog.Logger
	cfg       config.ImportConfig
	tx        TxRunner
	scenarios ScenarioStore
	network   NetworkStore
	demand    DemandStore
	pricing   PricingStore
}

// New creates an Importer.
func New(
	log *slog.Logger,
	cfg config.ImportConfig,
	tx TxRunner,
	scenarios ScenarioStore,
	network NetworkStore,
	demand DemandStore,
	pricing PricingStore,
) *Importer {
	return &Importer{
		log:       log,
		cfg:       cfg,
		tx:        tx,
		scenarios: scenarios,
		network:   network,
		demand:    demand,
		pricing:   pricing,
	}
}

func (im *Importer) logResult(simulationID int64, res KindResult) {
	if res.Err != nil {
		im.log.Error("import failed",
			slog.Int64("simulation_id", simulationID),
			slog.String("kind", string(res.Kind)),
			slog.String("error", res.Err.Error()))
		return
	}
	im.log.Info("import finished",
		slog.Int64("simulation_id", simulationID),
		slog.String("kind", string(res.Kind)),
		slog.Int("created", res.Created),
		slog.Int("updated", res.Updated),
		slog.Int("replaced", res.Replaced),
		slog.Int("unchanged", res.Unchanged),
		slog.Int("skipped", res.Skipped))
}
