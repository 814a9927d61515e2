package domain

// NodeKind distinguishes zones (trip origins/destinations) from intersections
// (through-only). Both kinds share one external-id namespace per network.
type NodeKind string

const (
	NodeZone         NodeKind = "zone"
	NodeIntersection NodeKind = "intersection"
)

// Node is a zone or intersection of the road network. ExternalID is the
// user-facing integer identifier; ID is the storage surrogate.
type Node struct {
	ID         int64    `db:"id"`
	Kind       NodeKind `db:"kind"`
	ExternalID int64    `db:"external_id"`
	Name       string   `db:"name"`
	X          float64  `db:"x"`
	Y          float64  `db:"y"`
}

// CongestionFunction maps link state to travel time through a textual
// expression referencing link attributes (length, speed, lanes, capacity,
// dynVol).
type CongestionFunction struct {
	ID         int64  `db:"id"`
	ExternalID int64  `db:"external_id"`
	Name       string `db:"name"`
	Expression string `db:"expression"`
}

// Default congestion functions scaffolded into every new simulation.
const (
	FreeFlowExpression = "3600*(length/speed)"

	BottleneckExpression = "3600*((dynVol<=(lanes*capacity*length/speed))*(length/speed)+" +
		"(dynVol>(lanes*capacity*length/speed))*(dynVol/(capacity*lanes)))"
)

// Link is a directed road segment. OriginID, DestinationID and FunctionID are
// internal references; they are part of the link's identity for diffing, so
// changing them replaces the link instead of updating it in place.
type Link struct {
	ID            int64   `db:"id"`
	ExternalID    int64   `db:"external_id"`
	Name          string  `db:"name"`
	OriginID      int64   `db:"origin_id"`
	DestinationID int64   `db:"destination_id"`
	FunctionID    int64   `db:"function_id"`
	Length        float64 `db:"length"`
	Lanes         float64 `db:"lanes"`
	Speed         float64 `db:"speed"`
	Capacity      float64 `db:"capacity"`
}

// LinkSelection is a named set of links used as the location of a pricing
// policy. Pricing imports create one per link on first reference, named and
// numbered after that link.
type LinkSelection struct {
	ID         int64  `db:"id"`
	NetworkID  int64  `db:"network_id"`
	ExternalID int64  `db:"external_id"`
	Name       string `db:"name"`
}
