package domain

// PolicyKind enumerates scenario policies. Imports only produce PRICING
// policies; the other kinds are managed interactively.
type PolicyKind string

const (
	PolicyBan       PolicyKind = "BAN"
	PolicyPricing   PolicyKind = "PRICING"
	PolicyRestraint PolicyKind = "RESTRAINT"
	PolicyIncident  PolicyKind = "INCIDENT"
)

// PricingPolicy applies a cost to travelers crossing a link selection.
// TravelerTypeID nil means the policy applies to all traveler types.
// ValueVector and TimeVector are comma-joined numeric sequences stored as
// opaque text; empty means constant toll.
type PricingPolicy struct {
	ID             int64      `db:"id"`
	ScenarioID     int64      `db:"scenario_id"`
	Kind           PolicyKind `db:"kind"`
	LocationID     int64      `db:"location_id"`
	TravelerTypeID *int64     `db:"traveler_type_id"`
	BaseValue      float64    `db:"base_value"`
	ValueVector    string     `db:"value_vector"`
	TimeVector     string     `db:"time_vector"`
}
