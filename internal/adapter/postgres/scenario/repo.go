// Package scenario implements persistence for the simulation ownership chain:
// simulation → scenario → supply (network, function set, pt-times matrix) and
// demand. Importers resolve the chain once per call through Get.
package scenario

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	postgres "github.com/metrosim/metroweb-backend/internal/adapter/postgres"
	"github.com/metrosim/metroweb-backend/internal/domain"
)

// Repo provides simulation-chain persistence.
type Repo struct {
	q postgres.Querier
}

// New creates a new scenario repository.
func New(q postgres.Querier) *Repo {
	return &Repo{q: q}
}

// contextRow flattens the simulation chain join for scanning.
type contextRow struct {
	SimID         int64  `db:"sim_id"`
	SimName       string `db:"sim_name"`
	SimComment    string `db:"sim_comment"`
	SimHasChanged bool   `db:"sim_has_changed"`
	SimLocked     bool   `db:"sim_locked"`

	ScenarioID   int64  `db:"scenario_id"`
	ScenarioName string `db:"scenario_name"`

	SupplyID      int64  `db:"supply_id"`
	NetworkID     int64  `db:"network_id"`
	FunctionSetID int64  `db:"function_set_id"`
	PTTimesID     *int64 `db:"pt_times_id"`

	DemandID    int64   `db:"demand_id"`
	DemandScale float64 `db:"demand_scale"`
}

const getContextSQL = `
SELECT sim.id          AS sim_id,
       sim.name        AS sim_name,
       sim.comment     AS sim_comment,
       sim.has_changed AS sim_has_changed,
       sim.locked      AS sim_locked,
       sc.id           AS scenario_id,
       sc.name         AS scenario_name,
       sup.id          AS supply_id,
       sup.network_id  AS network_id,
       sup.function_set_id AS function_set_id,
       sup.pt_times_id AS pt_times_id,
       d.id            AS demand_id,
       d.scale         AS demand_scale
FROM simulations sim
JOIN scenarios sc ON sc.id = sim.scenario_id
JOIN supplies sup ON sup.id = sc.supply_id
JOIN demands d    ON d.id = sc.demand_id
WHERE sim.id = $1`

// Get resolves the full ownership chain of one simulation.
// Returns domain.ErrNotFound for an unknown simulation id.
func (r *Repo) Get(ctx context.Context, simulationID int64) (*domain.SimulationContext, error) {
	q := postgres.QuerierFromCtx(ctx, r.q)

	var row contextRow
	if err := pgxscan.Get(ctx, q, &row, getContextSQL, simulationID); err != nil {
		return nil, postgres.MapError(err, "simulation")
	}

	return &domain.SimulationContext{
		Simulation: domain.Simulation{
			ID:         row.SimID,
			Name:       row.SimName,
			Comment:    row.SimComment,
			HasChanged: row.SimHasChanged,
			Locked:     row.SimLocked,
			ScenarioID: row.ScenarioID,
		},
		Scenario: domain.Scenario{
			ID:       row.ScenarioID,
			Name:     row.ScenarioName,
			SupplyID: row.SupplyID,
			DemandID: row.DemandID,
		},
		Supply: domain.Supply{
			ID:            row.SupplyID,
			NetworkID:     row.NetworkID,
			FunctionSetID: row.FunctionSetID,
			PTTimesID:     row.PTTimesID,
		},
		Demand: domain.Demand{
			ID:    row.DemandID,
			Scale: row.DemandScale,
		},
	}, nil
}

// MarkChanged sets the dirty bit on the simulation. Every mutating import
// calls this; the visualization cache layer reads and clears it.
func (r *Repo) MarkChanged(ctx context.Context, simulationID int64) error {
	q := postgres.QuerierFromCtx(ctx, r.q)

	tag, err := q.Exec(ctx, `UPDATE simulations SET has_changed = TRUE WHERE id = $1`, simulationID)
	if err != nil {
		return postgres.MapError(err, "simulation")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("simulation %d: %w", simulationID, domain.ErrNotFound)
	}
	return nil
}

// AttachPTMatrix points the supply at a public-transit travel-time matrix.
func (r *Repo) AttachPTMatrix(ctx context.Context, supplyID, matrixID int64) error {
	q := postgres.QuerierFromCtx(ctx, r.q)

	_, err := q.Exec(ctx, `UPDATE supplies SET pt_times_id = $1 WHERE id = $2`, matrixID, supplyID)
	return postgres.MapError(err, "supply")
}

// Create scaffolds a complete simulation: network, function set with the two
// default congestion functions, public-transit matrix, supply, demand,
// scenario and the simulation row itself. Intended to run inside a
// transaction.
func (r *Repo) Create(ctx context.Context, name, comment string) (*domain.SimulationContext, error) {
	q := postgres.QuerierFromCtx(ctx, r.q)

	var networkID int64
	if err := q.QueryRow(ctx,
		`INSERT INTO networks (name) VALUES ($1) RETURNING id`, name).Scan(&networkID); err != nil {
		return nil, postgres.MapError(err, "network")
	}

	var functionSetID int64
	if err := q.QueryRow(ctx,
		`INSERT INTO function_sets (name) VALUES ($1) RETURNING id`, name).Scan(&functionSetID); err != nil {
		return nil, postgres.MapError(err, "function_set")
	}

	defaults := []domain.CongestionFunction{
		{ExternalID: 1, Name: "Free flow", Expression: domain.FreeFlowExpression},
		{ExternalID: 2, Name: "Bottleneck function", Expression: domain.BottleneckExpression},
	}
	for _, fn := range defaults {
		var fnID int64
		err := q.QueryRow(ctx,
			`INSERT INTO congestion_functions (external_id, name, expression)
			 VALUES ($1, $2, $3) RETURNING id`,
			fn.ExternalID, fn.Name, fn.Expression).Scan(&fnID)
		if err != nil {
			return nil, postgres.MapError(err, "congestion_function")
		}
		_, err = q.Exec(ctx,
			`INSERT INTO function_set_functions (function_set_id, function_id) VALUES ($1, $2)`,
			functionSetID, fnID)
		if err != nil {
			return nil, postgres.MapError(err, "function_set_functions")
		}
	}

	var ptTimesID int64
	if err := q.QueryRow(ctx,
		`INSERT INTO od_matrices (name) VALUES ('') RETURNING id`).Scan(&ptTimesID); err != nil {
		return nil, postgres.MapError(err, "od_matrix")
	}

	var supplyID int64
	if err := q.QueryRow(ctx,
		`INSERT INTO supplies (name, network_id, function_set_id, pt_times_id)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		name, networkID, functionSetID, ptTimesID).Scan(&supplyID); err != nil {
		return nil, postgres.MapError(err, "supply")
	}

	var demandID int64
	if err := q.QueryRow(ctx,
		`INSERT INTO demands (name) VALUES ($1) RETURNING id`, name).Scan(&demandID); err != nil {
		return nil, postgres.MapError(err, "demand")
	}

	var scenarioID int64
	if err := q.QueryRow(ctx,
		`INSERT INTO scenarios (name, supply_id, demand_id)
		 VALUES ($1, $2, $3) RETURNING id`,
		name, supplyID, demandID).Scan(&scenarioID); err != nil {
		return nil, postgres.MapError(err, "scenario")
	}

	var simulationID int64
	if err := q.QueryRow(ctx,
		`INSERT INTO simulations (name, comment, scenario_id)
		 VALUES ($1, $2, $3) RETURNING id`,
		name, comment, scenarioID).Scan(&simulationID); err != nil {
		return nil, postgres.MapError(err, "simulation")
	}

	return &domain.SimulationContext{
		Simulation: domain.Simulation{ID: simulationID, Name: name, Comment: comment, ScenarioID: scenarioID},
		Scenario:   domain.Scenario{ID: scenarioID, Name: name, SupplyID: supplyID, DemandID: demandID},
		Supply: domain.Supply{
			ID:            supplyID,
			Name:          name,
			NetworkID:     networkID,
			FunctionSetID: functionSetID,
			PTTimesID:     &ptTimesID,
		},
		Demand: domain.Demand{ID: demandID, Name: name, Scale: 1},
	}, nil
}
