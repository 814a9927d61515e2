package testhelper

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/metrosim/metroweb-backend/internal/domain"
)

// uniqueSuffix returns a short unique string for generating non-conflicting test data.
func uniqueSuffix() string {
	return uuid.New().String()[:8]
}

// SeedSimulation creates a full simulation ownership chain: network, function
// set, supply (no public-transit matrix), demand with scale 1, scenario and
// simulation. Returns the resolved chain.
func SeedSimulation(t *testing.T, pool *pgxpool.Pool) domain.SimulationContext {
	t.Helper()
	ctx := context.Background()

	name := "sim-" + uniqueSuffix()

	var networkID int64
	err := pool.QueryRow(ctx,
		`INSERT INTO networks (name) VALUES ($1) RETURNING id`, name).Scan(&networkID)
	if err != nil {
		t.Fatalf("testhelper: SeedSimulation insert network: %v", err)
	}

	var functionSetID int64
	err = pool.QueryRow(ctx,
		`INSERT INTO function_sets (name) VALUES ($1) RETURNING id`, name).Scan(&functionSetID)
	if err != nil {
		t.Fatalf("testhelper: SeedSimulation insert function_set: %v", err)
	}

	var supplyID int64
	err = pool.QueryRow(ctx,
		`INSERT INTO supplies (name, network_id, function_set_id) VALUES ($1, $2, $3) RETURNING id`,
		name, networkID, functionSetID).Scan(&supplyID)
	if err != nil {
		t.Fatalf("testhelper: SeedSimulation insert supply: %v", err)
	}

	var demandID int64
	err = pool.QueryRow(ctx,
		`INSERT INTO demands (name, scale) VALUES ($1, 1) RETURNING id`, name).Scan(&demandID)
	if err != nil {
		t.Fatalf("testhelper: SeedSimulation insert demand: %v", err)
	}

	var scenarioID int64
	err = pool.QueryRow(ctx,
		`INSERT INTO scenarios (name, supply_id, demand_id) VALUES ($1, $2, $3) RETURNING id`,
		name, supplyID, demandID).Scan(&scenarioID)
	if err != nil {
		t.Fatalf("testhelper: SeedSimulation insert scenario: %v", err)
	}

	var simulationID int64
	err = pool.QueryRow(ctx,
		`INSERT INTO simulations (name, scenario_id) VALUES ($1, $2) RETURNING id`,
		name, scenarioID).Scan(&simulationID)
	if err != nil {
		t.Fatalf("testhelper: SeedSimulation insert simulation: %v", err)
	}

	return domain.SimulationContext{
		Simulation: domain.Simulation{ID: simulationID, Name: name, ScenarioID: scenarioID},
		Scenario:   domain.Scenario{ID: scenarioID, Name: name, SupplyID: supplyID, DemandID: demandID},
		Supply: domain.Supply{
			ID:            supplyID,
			Name:          name,
			NetworkID:     networkID,
			FunctionSetID: functionSetID,
		},
		Demand: domain.Demand{ID: demandID, Name: name, Scale: 1},
	}
}

// SeedNode inserts a node and adds it to the given network.
func SeedNode(t *testing.T, pool *pgxpool.Pool, networkID int64, kind domain.NodeKind, externalID int64, x, y float64) domain.Node {
	t.Helper()
	ctx := context.Background()

	node := domain.Node{
		Kind:       kind,
		ExternalID: externalID,
		Name:       "node-" + uniqueSuffix(),
		X:          x,
		Y:          y,
	}

	err := pool.QueryRow(ctx,
		`INSERT INTO nodes (kind, external_id, name, x, y) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		string(node.Kind), node.ExternalID, node.Name, node.X, node.Y).Scan(&node.ID)
	if err != nil {
		t.Fatalf("testhelper: SeedNode insert node: %v", err)
	}

	_, err = pool.Exec(ctx,
		`INSERT INTO network_nodes (network_id, node_id) VALUES ($1, $2)`, networkID, node.ID)
	if err != nil {
		t.Fatalf("testhelper: SeedNode insert network_nodes: %v", err)
	}

	return node
}

// SeedFunction inserts a congestion function and adds it to the given function set.
func SeedFunction(t *testing.T, pool *pgxpool.Pool, functionSetID, externalID int64, expression string) domain.CongestionFunction {
	t.Helper()
	ctx := context.Background()

	fn := domain.CongestionFunction{
		ExternalID: externalID,
		Name:       "fn-" + uniqueSuffix(),
		Expression: expression,
	}

	err := pool.QueryRow(ctx,
		`INSERT INTO congestion_functions (external_id, name, expression) VALUES ($1, $2, $3) RETURNING id`,
		fn.ExternalID, fn.Name, fn.Expression).Scan(&fn.ID)
	if err != nil {
		t.Fatalf("testhelper: SeedFunction insert congestion_function: %v", err)
	}

	_, err = pool.Exec(ctx,
		`INSERT INTO function_set_functions (function_set_id, function_id) VALUES ($1, $2)`,
		functionSetID, fn.ID)
	if err != nil {
		t.Fatalf("testhelper: SeedFunction insert function_set_functions: %v", err)
	}

	return fn
}

// SeedLink inserts a link between two seeded nodes and adds it to the given network.
func SeedLink(t *testing.T, pool *pgxpool.Pool, networkID, externalID, originID, destinationID, functionID int64) domain.Link {
	t.Helper()
	ctx := context.Background()

	link := domain.Link{
		ExternalID:    externalID,
		Name:          "link-" + uniqueSuffix(),
		OriginID:      originID,
		DestinationID: destinationID,
		FunctionID:    functionID,
		Length:        1,
		Lanes:         1,
		Speed:         50,
		Capacity:      1000,
	}

	err := pool.QueryRow(ctx,
		`INSERT INTO links (external_id, name, origin_id, destination_id, function_id, length, lanes, speed, capacity)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		link.ExternalID, link.Name, link.OriginID, link.DestinationID, link.FunctionID,
		link.Length, link.Lanes, link.Speed, link.Capacity).Scan(&link.ID)
	if err != nil {
		t.Fatalf("testhelper: SeedLink insert link: %v", err)
	}

	_, err = pool.Exec(ctx,
		`INSERT INTO network_links (network_id, link_id) VALUES ($1, $2)`, networkID, link.ID)
	if err != nil {
		t.Fatalf("testhelper: SeedLink insert network_links: %v", err)
	}

	return link
}
