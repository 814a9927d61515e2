package importer

import (
	"context"
	"fmt"
	"io"

	"github.com/metrosim/metroweb-backend/internal/domain"
	"github.com/metrosim/metroweb-backend/internal/tabular"
)

// travelerTypeRow is a decoded traveler types file row. HasID distinguishes
// a blank id column (assign the next available external id) from id 0.
type travelerTypeRow struct {
	HasID bool
	Type  domain.TravelerType
}

// ImportTravelerTypes replaces traveler types by external id. Each row
// creates a fresh traveler type with its ten distributions; when the id
// already exists, the demand segment (and so the OD matrix) and any pricing
// policies are re-pointed at the new traveler type and the old one is
// deleted. Rows are not value-diffed.
func (im *Importer) ImportTravelerTypes(ctx context.Context, simulationID int64, file io.Reader, filename string) KindResult {
	res := KindResult{Kind: KindTravelerTypes}

	rows, err := decodeTravelerTypes(file, filename)
	if err != nil {
		res.Err = err
		return res
	}
	if len(rows) == 0 {
		return res
	}

	res.Err = im.tx.RunInTx(ctx, func(ctx context.Context) error {
		sctx, err := im.scenarios.Get(ctx, simulationID)
		if err != nil {
			return err
		}
		existing, err := im.demand.ListTravelerTypes(ctx, simulationID)
		if err != nil {
			return err
		}
		byExt := make(map[int64]domain.TravelerType, len(existing))
		for _, tt := range existing {
			byExt[tt.ExternalID] = tt
		}

		nextID := int64(0)
		for _, r := range rows {
			if !r.HasID {
				if nextID == 0 {
					if nextID, err = im.demand.NextExternalID(ctx, simulationID); err != nil {
						return err
					}
				}
				r.Type.ExternalID = nextID
				nextID++
			}

			newType := r.Type
			if err := im.demand.CreateTravelerType(ctx, &newType); err != nil {
				return err
			}

			old, exists := byExt[newType.ExternalID]
			if !exists {
				matrixName := fmt.Sprintf("OD matrix of %s", newType.Name)
				if _, err := im.demand.CreateSegment(ctx, sctx.Scenario.DemandID, newType.ID, matrixName); err != nil {
					return err
				}
				byExt[newType.ExternalID] = newType
				res.Created++
				continue
			}

			seg, err := im.demand.GetSegmentByTravelerType(ctx, sctx.Scenario.DemandID, old.ID)
			if err != nil {
				return err
			}
			if err := im.demand.RepointSegment(ctx, seg.ID, newType.ID); err != nil {
				return err
			}
			if _, err := im.pricing.RepointPolicies(ctx, old.ID, newType.ID); err != nil {
				return err
			}
			if err := im.demand.DeleteTravelerType(ctx, old); err != nil {
				return err
			}
			byExt[newType.ExternalID] = newType
			res.Replaced++
		}
		return im.scenarios.MarkChanged(ctx, simulationID)
	})

	im.logResult(simulationID, res)
	return res
}

func decodeTravelerTypes(file io.Reader, filename string) ([]travelerTypeRow, error) {
	tbl, err := tabular.Decode(file, filename)
	if err != nil {
		return nil, err
	}

	rows := make([]travelerTypeRow, 0, tbl.Len())
	for i := 0; i < tbl.Len(); i++ {
		row := tbl.Row(i)
		r := travelerTypeRow{
			Type: domain.TravelerType{
				Name:              row.Field("name"),
				Comment:           row.Field("comment"),
				TypeOfRouteChoice: row.Field("typeOfRouteChoice"),
				TypeOfDepartureMu: row.Field("typeOfDepartureMu"),
				TypeOfRouteMu:     row.Field("typeOfRouteMu"),
				TypeOfModeMu:      row.Field("typeOfModeMu"),
				LocalATIS:         row.Field("localATIS"),
				ModeChoice:        row.Field("modeChoice"),
				ModeShortRun:      row.Field("modeShortRun"),
				CommuteType:       row.Field("commuteType"),
			},
		}
		if row.Field("id") != "" {
			if r.Type.ExternalID, err = row.Int("id"); err != nil {
				return nil, err
			}
			r.HasID = true
		}
		for j, name := range domain.DistributionNames {
			d, err := decodeDistribution(row, name)
			if err != nil {
				return nil, err
			}
			*r.Type.Distributions()[j] = d
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func decodeDistribution(row tabular.Row, name string) (domain.Distribution, error) {
	var d domain.Distribution
	var err error

	if d.Mean, err = floatOrZero(row, name+"_mean"); err != nil {
		return d, err
	}
	if d.Std, err = floatOrZero(row, name+"_std"); err != nil {
		return d, err
	}
	switch kind := domain.DistributionKind(row.Field(name + "_type")); kind {
	case "":
		d.Kind = domain.DistNone
	case domain.DistNone, domain.DistUniform, domain.DistNormal, domain.DistLogNormal:
		d.Kind = kind
	default:
		return d, fmt.Errorf("column %q: unknown distribution type %q", name+"_type", kind)
	}
	return d, nil
}

func floatOrZero(row tabular.Row, column string) (float64, error) {
	if row.Field(column) == "" {
		return 0, nil
	}
	return row.Float(column)
}
