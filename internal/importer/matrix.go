package importer

import (
	"context"
	"fmt"
	"io"

	"github.com/metrosim/metroweb-backend/internal/domain"
	"github.com/metrosim/metroweb-backend/internal/tabular"
)

// ImportMatrix reconciles an OD matrix file against the matrix of the
// traveler type with the given external id. The matrix total is recomputed
// inside the same transaction.
func (im *Importer) ImportMatrix(ctx context.Context, simulationID, travelerTypeExternalID int64, file io.Reader, filename string) KindResult {
	res := KindResult{Kind: KindMatrix}

	rows, err := decodeCells(file, filename, "population")
	if err != nil {
		res.Err = err
		return res
	}
	if rows == nil {
		return res
	}

	res.Err = im.tx.RunInTx(ctx, func(ctx context.Context) error {
		sctx, err := im.scenarios.Get(ctx, simulationID)
		if err != nil {
			return err
		}
		types, err := im.demand.ListTravelerTypes(ctx, simulationID)
		if err != nil {
			return err
		}
		var target *domain.TravelerType
		for i := range types {
			if types[i].ExternalID == travelerTypeExternalID {
				target = &types[i]
				break
			}
		}
		if target == nil {
			return fmt.Errorf("traveler type %d: %w", travelerTypeExternalID, domain.ErrNotFound)
		}
		seg, err := im.demand.GetSegmentByTravelerType(ctx, sctx.Scenario.DemandID, target.ID)
		if err != nil {
			return err
		}
		return im.applyCells(ctx, simulationID, seg.MatrixID, seg.Scale, rows, &res)
	})

	im.logResult(simulationID, res)
	return res
}

// ImportPublicTransit reconciles the public-transit travel-time matrix.
// The matrix is created and attached to the supply on first import.
func (im *Importer) ImportPublicTransit(ctx context.Context, simulationID int64, file io.Reader, filename string) KindResult {
	res := KindResult{Kind: KindPublicTransit}

	rows, err := decodeCells(file, filename, "travel time")
	if err != nil {
		res.Err = err
		return res
	}
	if rows == nil {
		return res
	}

	res.Err = im.tx.RunInTx(ctx, func(ctx context.Context) error {
		sctx, err := im.scenarios.Get(ctx, simulationID)
		if err != nil {
			return err
		}
		matrixID, err := im.ptMatrixID(ctx, sctx)
		if err != nil {
			return err
		}
		return im.applyCells(ctx, simulationID, matrixID, 1, rows, &res)
	})

	im.logResult(simulationID, res)
	return res
}

func (im *Importer) ptMatrixID(ctx context.Context, sctx *domain.SimulationContext) (int64, error) {
	if sctx.Supply.PTTimesID != nil {
		return *sctx.Supply.PTTimesID, nil
	}
	matrixID, err := im.demand.CreateMatrix(ctx, "public transit travel times")
	if err != nil {
		return 0, err
	}
	if err := im.scenarios.AttachPTMatrix(ctx, sctx.Supply.ID, matrixID); err != nil {
		return 0, err
	}
	return matrixID, nil
}

// decodeCells parses an OD file. Returns nil rows for an empty file.
func decodeCells(file io.Reader, filename, valueColumn string) ([]cellRow, error) {
	tbl, err := tabular.Decode(file, filename)
	if err != nil {
		return nil, err
	}
	if tbl.Len() == 0 {
		return nil, nil
	}

	rows := make([]cellRow, 0, tbl.Len())
	for i := 0; i < tbl.Len(); i++ {
		row := tbl.Row(i)
		var r cellRow
		if r.Origin, err = row.Int("origin"); err != nil {
			return nil, err
		}
		if r.Destination, err = row.Int("destination"); err != nil {
			return nil, err
		}
		if r.Population, err = row.Float(valueColumn); err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// applyCells diffs and writes one matrix inside the caller's transaction.
// Only zone nodes may key cells; rows referencing intersections are skipped.
func (im *Importer) applyCells(ctx context.Context, simulationID, matrixID int64, scale float64, rows []cellRow, res *KindResult) error {
	nodes, err := im.network.ListNodes(ctx, simulationID)
	if err != nil {
		return err
	}
	centroids := make(map[int64]int64)
	for _, n := range nodes {
		if n.Kind == domain.NodeZone {
			centroids[n.ExternalID] = n.ID
		}
	}
	existing, err := im.demand.ListCells(ctx, matrixID)
	if err != nil {
		return err
	}

	plan := planCells(rows, existing, centroids)

	if err := im.demand.DeleteCellsByIDs(ctx, plan.DeleteIDs); err != nil {
		return err
	}
	if err := im.demand.BulkInsertCells(ctx, matrixID, plan.Create); err != nil {
		return err
	}

	res.Created = len(plan.Create) - plan.Replaced
	res.Replaced = plan.Replaced
	res.Unchanged = plan.Unchanged
	res.Skipped = plan.Skipped
	if !res.Mutated() {
		return nil
	}
	if _, err := im.demand.RecomputeTotal(ctx, matrixID, scale); err != nil {
		return err
	}
	return im.scenarios.MarkChanged(ctx, simulationID)
}
