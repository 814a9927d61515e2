package importer

import (
	"github.com/hashicorp/go-set/v3"

	"github.com/metrosim/metroweb-backend/internal/domain"
)

// The planners below are pure: they diff decoded rows against persisted
// state and emit the writes to perform, without touching storage. Diffing
// works on comparable value tuples: the set difference of incoming tuples
// minus persisted tuples leaves exactly the rows whose stored values differ,
// in one hashed pass instead of a per-row comparison.

// nodeRow is a decoded zones/intersections file row.
type nodeRow struct {
	ExternalID int64
	Name       string
	X, Y       float64
}

type nodeTuple struct {
	ExternalID int64
	Name       string
	X, Y       float64
}

// nodePlan lists the node writes for one import.
type nodePlan struct {
	Create    []domain.Node
	Update    []domain.Node
	Unchanged int
	Skipped   int
}

// planNodes diffs incoming rows of one kind against the persisted nodes of
// both kinds. Rows whose external id belongs to the other kind are skipped:
// zones and intersections share one id namespace per network. Duplicate ids
// within the upload keep only the last occurrence.
func planNodes(kind domain.NodeKind, rows []nodeRow, existing []domain.Node) nodePlan {
	rows = dedupeLastWins(rows, func(r nodeRow) int64 { return r.ExternalID })
	var plan nodePlan

	sameKind := make(map[int64]domain.Node)
	otherKind := set.New[int64](0)
	persisted := set.New[nodeTuple](len(existing))
	for _, n := range existing {
		if n.Kind != kind {
			otherKind.Insert(n.ExternalID)
			continue
		}
		sameKind[n.ExternalID] = n
		persisted.Insert(nodeTuple{ExternalID: n.ExternalID, Name: n.Name, X: n.X, Y: n.Y})
	}

	incoming := set.New[nodeTuple](len(rows))
	for _, r := range rows {
		if _, ok := sameKind[r.ExternalID]; ok {
			incoming.Insert(nodeTuple(r))
		}
	}
	changed := incoming.Difference(persisted)

	for _, r := range rows {
		switch current, ok := sameKind[r.ExternalID]; {
		case otherKind.Contains(r.ExternalID):
			plan.Skipped++
		case !ok:
			plan.Create = append(plan.Create, domain.Node{
				Kind: kind, ExternalID: r.ExternalID, Name: r.Name, X: r.X, Y: r.Y,
			})
		case changed.Contains(nodeTuple(r)):
			plan.Update = append(plan.Update, domain.Node{
				ID: current.ID, Kind: kind, ExternalID: r.ExternalID, Name: r.Name, X: r.X, Y: r.Y,
			})
		default:
			plan.Unchanged++
		}
	}
	return plan
}

// functionRow is a decoded congestion functions file row.
type functionRow struct {
	ExternalID int64
	Name       string
	Expression string
}

type functionPlan struct {
	Create    []domain.CongestionFunction
	Update    []domain.CongestionFunction
	Unchanged int
	Skipped   int
}

func planFunctions(rows []functionRow, existing []domain.CongestionFunction) functionPlan {
	rows = dedupeLastWins(rows, func(r functionRow) int64 { return r.ExternalID })
	var plan functionPlan

	byExt := make(map[int64]domain.CongestionFunction, len(existing))
	persisted := set.New[functionRow](len(existing))
	for _, f := range existing {
		byExt[f.ExternalID] = f
		persisted.Insert(functionRow{ExternalID: f.ExternalID, Name: f.Name, Expression: f.Expression})
	}

	incoming := set.New[functionRow](len(rows))
	for _, r := range rows {
		if _, ok := byExt[r.ExternalID]; ok {
			incoming.Insert(r)
		}
	}
	changed := incoming.Difference(persisted)

	for _, r := range rows {
		switch current, ok := byExt[r.ExternalID]; {
		case !ok:
			plan.Create = append(plan.Create, domain.CongestionFunction{
				ExternalID: r.ExternalID, Name: r.Name, Expression: r.Expression,
			})
		case changed.Contains(r):
			plan.Update = append(plan.Update, domain.CongestionFunction{
				ID: current.ID, ExternalID: r.ExternalID, Name: r.Name, Expression: r.Expression,
			})
		default:
			plan.Unchanged++
		}
	}
	return plan
}

// linkRow is a decoded links file row; references are still external ids.
type linkRow struct {
	ExternalID  int64
	Name        string
	Origin      int64
	Destination int64
	Function    int64
	Length      float64
	Lanes       float64
	Speed       float64
	Capacity    float64
}

type linkTuple struct {
	ExternalID    int64
	Name          string
	OriginID      int64
	DestinationID int64
	FunctionID    int64
	Length        float64
	Lanes         float64
	Speed         float64
	Capacity      float64
}

// linkPlan lists the link writes for one import. Links are never patched in
// place: a changed link is re-created and ReplaceIDs carries the internal
// ids of the stale rows to delete first. The foreign keys are part of the
// diffing identity, so recreation covers retargeted links too.
type linkPlan struct {
	Create     []domain.Link
	ReplaceIDs []int64
	Replaced   int
	Unchanged  int
	Skipped    int
}

// planLinks resolves row references through the node and function id maps
// (external id → internal id) and diffs against persisted links. Rows with
// unresolvable references are skipped.
func planLinks(rows []linkRow, existing []domain.Link, nodeIDs, functionIDs map[int64]int64) linkPlan {
	rows = dedupeLastWins(rows, func(r linkRow) int64 { return r.ExternalID })
	var plan linkPlan

	byExt := make(map[int64]domain.Link, len(existing))
	persisted := set.New[linkTuple](len(existing))
	for _, l := range existing {
		byExt[l.ExternalID] = l
		persisted.Insert(linkTuple{
			ExternalID: l.ExternalID, Name: l.Name,
			OriginID: l.OriginID, DestinationID: l.DestinationID, FunctionID: l.FunctionID,
			Length: l.Length, Lanes: l.Lanes, Speed: l.Speed, Capacity: l.Capacity,
		})
	}

	resolved := make([]linkTuple, 0, len(rows))
	incoming := set.New[linkTuple](len(rows))
	for _, r := range rows {
		origin, okO := nodeIDs[r.Origin]
		destination, okD := nodeIDs[r.Destination]
		function, okF := functionIDs[r.Function]
		if !okO || !okD || !okF {
			plan.Skipped++
			continue
		}
		t := linkTuple{
			ExternalID: r.ExternalID, Name: r.Name,
			OriginID: origin, DestinationID: destination, FunctionID: function,
			Length: r.Length, Lanes: r.Lanes, Speed: r.Speed, Capacity: r.Capacity,
		}
		resolved = append(resolved, t)
		if _, ok := byExt[r.ExternalID]; ok {
			incoming.Insert(t)
		}
	}
	changed := incoming.Difference(persisted)

	for _, t := range resolved {
		link := domain.Link{
			ExternalID: t.ExternalID, Name: t.Name,
			OriginID: t.OriginID, DestinationID: t.DestinationID, FunctionID: t.FunctionID,
			Length: t.Length, Lanes: t.Lanes, Speed: t.Speed, Capacity: t.Capacity,
		}
		switch current, ok := byExt[t.ExternalID]; {
		case !ok:
			plan.Create = append(plan.Create, link)
		case changed.Contains(t):
			plan.ReplaceIDs = append(plan.ReplaceIDs, current.ID)
			plan.Create = append(plan.Create, link)
			plan.Replaced++
		default:
			plan.Unchanged++
		}
	}
	return plan
}

// cellRow is a decoded matrix file row; origin and destination are external
// centroid ids.
type cellRow struct {
	Origin      int64
	Destination int64
	Population  float64
}

type cellKey struct {
	OriginID      int64
	DestinationID int64
}

type cellTuple struct {
	cellKey
	Population float64
}

// cellPlan lists the cell writes for one matrix import. Differing cells are
// re-created, never patched: DeleteIDs carries the stale internal ids.
type cellPlan struct {
	Create    []domain.OdCell
	DeleteIDs []int64
	Replaced  int
	Unchanged int
	Skipped   int
}

// planCells diffs incoming cells against the persisted sparse matrix. A new
// cell with population <= 0 is dropped: zero means no flow. A pre-existing
// cell whose value changes to zero is kept at zero, since deleting it would
// discard the explicit edit.
func planCells(rows []cellRow, existing []domain.OdCell, centroidIDs map[int64]int64) cellPlan {
	var plan cellPlan

	byKey := make(map[cellKey]domain.OdCell, len(existing))
	persisted := set.New[cellTuple](len(existing))
	for _, c := range existing {
		k := cellKey{OriginID: c.OriginID, DestinationID: c.DestinationID}
		byKey[k] = c
		persisted.Insert(cellTuple{cellKey: k, Population: c.Population})
	}

	type resolvedRow struct {
		key cellKey
		pop float64
	}
	seen := make(map[cellKey]int)
	var resolved []resolvedRow
	for _, r := range rows {
		origin, okO := centroidIDs[r.Origin]
		destination, okD := centroidIDs[r.Destination]
		if !okO || !okD {
			plan.Skipped++
			continue
		}
		k := cellKey{OriginID: origin, DestinationID: destination}
		if i, dup := seen[k]; dup {
			resolved[i].pop = r.Population
			continue
		}
		seen[k] = len(resolved)
		resolved = append(resolved, resolvedRow{key: k, pop: r.Population})
	}

	incoming := set.New[cellTuple](len(resolved))
	for _, r := range resolved {
		if _, ok := byKey[r.key]; ok {
			incoming.Insert(cellTuple{cellKey: r.key, Population: r.pop})
		}
	}
	changed := incoming.Difference(persisted)

	for _, r := range resolved {
		t := cellTuple{cellKey: r.key, Population: r.pop}
		switch current, ok := byKey[r.key]; {
		case !ok && r.pop <= 0:
			plan.Skipped++
		case !ok:
			plan.Create = append(plan.Create, domain.OdCell{
				OriginID: r.key.OriginID, DestinationID: r.key.DestinationID, Population: r.pop,
			})
		case changed.Contains(t):
			plan.DeleteIDs = append(plan.DeleteIDs, current.ID)
			plan.Create = append(plan.Create, domain.OdCell{
				OriginID: r.key.OriginID, DestinationID: r.key.DestinationID, Population: r.pop,
			})
			plan.Replaced++
		default:
			plan.Unchanged++
		}
	}
	return plan
}

// dedupeLastWins keeps the last occurrence of each key, preserving the
// position of the first one.
func dedupeLastWins[T any](rows []T, key func(T) int64) []T {
	seen := make(map[int64]int, len(rows))
	out := rows[:0:0]
	for _, r := range rows {
		k := key(r)
		if i, ok := seen[k]; ok {
			out[i] = r
			continue
		}
		seen[k] = len(out)
		out = append(out, r)
	}
	return out
}
