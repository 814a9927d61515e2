package importer

import (
	"context"
	"io"

	"github.com/metrosim/metroweb-backend/internal/tabular"
)

// ImportFunctions reconciles a congestion functions file against the
// simulation's function set.
func (im *Importer) ImportFunctions(ctx context.Context, simulationID int64, file io.Reader, filename string) KindResult {
	res := KindResult{Kind: KindFunctions}

	tbl, err := tabular.Decode(file, filename)
	if err != nil {
		res.Err = err
		return res
	}
	if tbl.Len() == 0 {
		return res
	}

	rows := make([]functionRow, 0, tbl.Len())
	for i := 0; i < tbl.Len(); i++ {
		row := tbl.Row(i)
		r := functionRow{
			Name:       row.Field("name"),
			Expression: row.Field("expression"),
		}
		if r.ExternalID, err = row.Int("id"); err != nil {
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
		existing, err := im.network.ListFunctions(ctx, simulationID)
		if err != nil {
			return err
		}

		plan := planFunctions(rows, existing)

		ids, err := im.network.BulkInsertFunctions(ctx, plan.Create)
		if err != nil {
			return err
		}
		if err := im.network.AddFunctionsToSet(ctx, sctx.Supply.FunctionSetID, ids); err != nil {
			return err
		}
		if _, err := im.network.UpdateFunctions(ctx, plan.Update); err != nil {
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
