// Package domain defines the entities of the traffic scenario model and the
// sentinel errors shared by all layers.
//
// A Simulation owns one Scenario, which pairs a Supply (road network, set of
// congestion functions, optional public-transit travel-time matrix) with a
// Demand (traveler types and their OD matrices). All import and export
// operations are scoped to one Simulation through this chain.
package domain

// Simulation is the root aggregate. HasChanged is the dirty bit read by the
// visualization cache layer; every mutating import sets it. Locked is the
// advisory flag taken by the copy-scenario operation, not by imports.
type Simulation struct {
	ID         int64  `db:"id"`
	Name       string `db:"name"`
	Comment    string `db:"comment"`
	HasChanged bool   `db:"has_changed"`
	Locked     bool   `db:"locked"`
	ScenarioID int64  `db:"scenario_id"`
}

// Scenario pairs a supply with a demand.
type Scenario struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	SupplyID int64  `db:"supply_id"`
	DemandID int64  `db:"demand_id"`
}

// Supply groups the network, the congestion function set and the optional
// public-transit travel-time matrix. PTTimesID is nil until a public-transit
// matrix has been imported or scaffolded.
type Supply struct {
	ID            int64  `db:"id"`
	Name          string `db:"name"`
	NetworkID     int64  `db:"network_id"`
	FunctionSetID int64  `db:"function_set_id"`
	PTTimesID     *int64 `db:"pt_times_id"`
}

// Network owns nodes and links through membership tables.
type Network struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// FunctionSet owns congestion functions through a membership table.
type FunctionSet struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Demand owns demand segments. Scale multiplies every matrix total.
type Demand struct {
	ID    int64   `db:"id"`
	Name  string  `db:"name"`
	Scale float64 `db:"scale"`
}

// SimulationContext bundles the resolved ownership chain of one simulation.
// Importers load it once per call instead of re-walking the joins.
type SimulationContext struct {
	Simulation Simulation
	Scenario   Scenario
	Supply     Supply
	Demand     Demand
}
