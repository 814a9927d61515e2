package domain

// DistributionKind enumerates the supported parameter distributions.
type DistributionKind string

const (
	DistNone      DistributionKind = "NONE"
	DistUniform   DistributionKind = "UNIFORM"
	DistNormal    DistributionKind = "NORMAL"
	DistLogNormal DistributionKind = "LOGNORMAL"
)

// Distribution is a behavioral parameter distribution. It is a value object:
// distributions are created and deleted with their owning traveler type and
// never shared.
type Distribution struct {
	ID   int64            `db:"id"`
	Kind DistributionKind `db:"kind"`
	Mean float64          `db:"mean"`
	Std  float64          `db:"std"`
}

// DistributionNames lists the ten traveler-type distributions in the column
// order of the traveler_types file layout.
var DistributionNames = []string{
	"alphaTI", "alphaTP", "beta", "delta", "departureMu",
	"gamma", "modeMu", "penaltyTP", "routeMu", "tstar",
}

// TravelerType bundles the ten parameter distributions and the categorical
// choice-model settings shared by one demand segment.
type TravelerType struct {
	ID         int64  `db:"id"`
	ExternalID int64  `db:"external_id"`
	Name       string `db:"name"`
	Comment    string `db:"comment"`

	AlphaTI     Distribution
	AlphaTP     Distribution
	Beta        Distribution
	Delta       Distribution
	DepartureMu Distribution
	Gamma       Distribution
	ModeMu      Distribution
	PenaltyTP   Distribution
	RouteMu     Distribution
	Tstar       Distribution

	TypeOfRouteChoice string `db:"type_of_route_choice"`
	TypeOfDepartureMu string `db:"type_of_departure_mu"`
	TypeOfRouteMu     string `db:"type_of_route_mu"`
	TypeOfModeMu      string `db:"type_of_mode_mu"`
	LocalATIS         string `db:"local_atis"`
	ModeChoice        string `db:"mode_choice"`
	ModeShortRun      string `db:"mode_short_run"`
	CommuteType       string `db:"commute_type"`
}

// Distributions returns pointers to the ten distributions in canonical order.
func (t *TravelerType) Distributions() []*Distribution {
	return []*Distribution{
		&t.AlphaTI, &t.AlphaTP, &t.Beta, &t.Delta, &t.DepartureMu,
		&t.Gamma, &t.ModeMu, &t.PenaltyTP, &t.RouteMu, &t.Tstar,
	}
}

// DemandSegment joins one traveler type with one OD matrix inside a demand.
type DemandSegment struct {
	ID             int64   `db:"id"`
	DemandID       int64   `db:"demand_id"`
	TravelerTypeID int64   `db:"traveler_type_id"`
	MatrixID       int64   `db:"matrix_id"`
	Scale          float64 `db:"scale"`
}

// OdMatrix owns a sparse set of OD cells. Total is maintained as
// scale × sum of cell populations and recomputed after every write.
type OdMatrix struct {
	ID    int64   `db:"id"`
	Name  string  `db:"name"`
	Total float64 `db:"total"`
}

// OdCell holds the demand volume (or, for the public-transit matrix, the
// travel time) for one ordered centroid pair. At most one cell exists per
// ordered pair per matrix.
type OdCell struct {
	ID            int64   `db:"id"`
	MatrixID      int64   `db:"matrix_id"`
	OriginID      int64   `db:"origin_id"`
	DestinationID int64   `db:"destination_id"`
	Population    float64 `db:"population"`
}
