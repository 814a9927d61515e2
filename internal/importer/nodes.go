package importer

import (
	"context"
	"io"

	"github.com/metrosim/metroweb-backend/internal/domain"
	"github.com/metrosim/metroweb-backend/internal/tabular"
)

// ImportZones reconciles a zones file against the simulation's network.
func (im *Importer) ImportZones(ctx context.Context, simulationID int64, file io.Reader, filename string) KindResult {
	return im.importNodes(ctx, simulationID, KindZones, domain.NodeZone, file, filename)
}

// ImportIntersections reconciles an intersections file against the
// simulation's network.
func (im *Importer) ImportIntersections(ctx context.Context, simulationID int64, file io.Reader, filename string) KindResult {
	return im.importNodes(ctx, simulationID, KindIntersections, domain.NodeIntersection, file, filename)
}

func (im *Importer) importNodes(ctx context.Context, simulationID int64, kind EntityKind, nodeKind domain.NodeKind, file io.Reader, filename string) KindResult {
	res := KindResult{Kind: kind}

	tbl, err := tabular.Decode(file, filename)
	if err != nil {
		res.Err = err
		return res
	}
	if tbl.Len() == 0 {
		return res
	}

	rows := make([]nodeRow, 0, tbl.Len())
	for i := 0; i < tbl.Len(); i++ {
		row := tbl.Row(i)
		r := nodeRow{Name: row.Field("name")}
		if r.ExternalID, err = row.Int("id"); err != nil {
			res.Err = err
			return res
		}
		if r.X, err = row.Float("x"); err != nil {
			res.Err = err
			return res
		}
		if r.Y, err = row.Float("y"); err != nil {
			res.Err = err
			return res
		}
		rows = append(rows, r)
	}

	res.Err = im.tx.RunInTx(ctx, func(ctx context.Context) error {
		sctx, err := im.scenarios.Get(ctx, simulationID)
		if err != nil {
			return err
		}
		existing, err := im.network.ListNodes(ctx, simulationID)
		if err != nil {
			return err
		}

		plan := planNodes(nodeKind, rows, existing)

		ids, err := im.network.BulkInsertNodes(ctx, nodeKind, plan.Create)
		if err != nil {
			return err
		}
		if err := im.network.AddNodesToNetwork(ctx, sctx.Supply.NetworkID, ids); err != nil {
			return err
		}
		if _, err := im.network.UpdateNodes(ctx, plan.Update); err != nil {
			return err
		}

		res.Created = len(plan.Create)
		res.Updated = len(plan.Update)
		res.Unchanged = plan.Unchanged
		res.Skipped = plan.Skipped
		if res.Mutated() {
			return im.scenarios.MarkChanged(ctx, simulationID)
		}
		return nil
	})

	im.logResult(simulationID, res)
	return res
}
