package importer

import (
	"context"
	"io"

	"github.com/metrosim/metroweb-backend/internal/tabular"
)

// ImportLinks reconciles a links file against the simulation's network.
// Origin, destination and function columns carry external ids and are
// resolved against current state; rows that do not resolve are skipped.
// Changed links are deleted and re-created, never patched.
func (im *Importer) ImportLinks(ctx context.Context, simulationID int64, file io.Reader, filename string) KindResult {
	res := KindResult{Kind: KindLinks}

	tbl, err := tabular.Decode(file, filename)
	if err != nil {
		res.Err = err
		return res
	}
	if tbl.Len() == 0 {
		return res
	}

	rows := make([]linkRow, 0, tbl.Len())
	for i := 0; i < tbl.Len(); i++ {
		row := tbl.Row(i)
		r := linkRow{Name: row.Field("name")}
		if r.ExternalID, err = row.Int("id"); err != nil {
			res.Err = err
			return res
		}
		if r.Origin, err = row.Int("origin"); err != nil {
			res.Err = err
			return res
		}
		if r.Destination, err = row.Int("destination"); err != nil {
			res.Err = err
			return res
		}
		if r.Function, err = row.Int("function"); err != nil {
			res.Err = err
			return res
		}
		if r.Length, err = row.Float("length"); err != nil {
			res.Err = err
			return res
		}
		if r.Lanes, err = row.Float("lanes"); err != nil {
			res.Err = err
			return res
		}
		if r.Speed, err = row.Float("speed"); err != nil {
			res.Err = err
			return res
		}
		if r.Capacity, err = row.Float("capacity"); err != nil {
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
		nodes, err := im.network.ListNodes(ctx, simulationID)
		if err != nil {
			return err
		}
		functions, err := im.network.ListFunctions(ctx, simulationID)
		if err != nil {
			return err
		}
		existing, err := im.network.ListLinks(ctx, simulationID)
		if err != nil {
			return err
		}

		nodeIDs := make(map[int64]int64, len(nodes))
		for _, n := range nodes {
			nodeIDs[n.ExternalID] = n.ID
		}
		functionIDs := make(map[int64]int64, len(functions))
		for _, f := range functions {
			functionIDs[f.ExternalID] = f.ID
		}

		plan := planLinks(rows, existing, nodeIDs, functionIDs)

		if err := im.network.DeleteLinksByIDs(ctx, plan.ReplaceIDs); err != nil {
			return err
		}
		ids, err := im.network.BulkInsertLinks(ctx, plan.Create)
		if err != nil {
			return err
		}
		if err := im.network.AddLinksToNetwork(ctx, sctx.Supply.NetworkID, ids); err != nil {
			return err
		}

		res.Created = len(plan.Create) - plan.Replaced
		res.Replaced = plan.Replaced
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
