// Package importer implements bulk file imports into a simulation: decoding
// uploaded tables, diffing them against persisted state and applying the
// difference in chunked bulk writes.
package importer

import "fmt"

// EntityKind names one importable file kind. The names double as the file
// base names expected inside a scenario archive.
type EntityKind string

const (
	KindZones         EntityKind = "zones"
	KindIntersections EntityKind = "intersections"
	KindLinks         EntityKind = "links"
	KindFunctions     EntityKind = "functions"
	KindPublicTransit EntityKind = "public_transit"
	KindTravelerTypes EntityKind = "traveler_types"
	KindMatrix        EntityKind = "matrix"
	KindPricing       EntityKind = "pricings"
)

// KindResult reports what one entity kind's import did. Skipped counts rows
// dropped for unresolvable references, duplicate keys or zero-valued new
// cells. Err is set when the whole kind failed (decode error or consistency
// violation); previously completed kinds are unaffected.
type KindResult struct {
	Kind      EntityKind
	Created   int
	Updated   int
	Replaced  int
	Unchanged int
	Skipped   int
	Err       error
}

// Mutated reports whether the kind changed any persisted state.
func (r KindResult) Mutated() bool {
	return r.Created > 0 || r.Updated > 0 || r.Replaced > 0
}

func (r KindResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: failed: %v", r.Kind, r.Err)
	}
	return fmt.Sprintf("%s: created=%d updated=%d replaced=%d unchanged=%d skipped=%d",
		r.Kind, r.Created, r.Updated, r.Replaced, r.Unchanged, r.Skipped)
}

// Report collects the per-kind results of a whole-archive import. Kinds are
// independent: a failed kind does not roll back completed ones.
type Report struct {
	SimulationID int64
	Results      []KindResult
}

// Failed returns the kinds that ended with an error.
func (r *Report) Failed() []KindResult {
	var failed []KindResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}
