package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/metrosim/metroweb-backend/internal/domain"
	"github.com/metrosim/metroweb-backend/internal/tabular"
)

// pricingRow is a decoded pricing file row. TravelerType nil means the toll
// applies to every traveler type.
type pricingRow struct {
	Link         int64
	TravelerType *int64
	BaseValue    float64
	ValueVector  string
	TimeVector   string
}

// ImportPricing upserts one toll per referenced link. A single-link
// selection named after the link is created on first reference and reused
// afterwards, so re-imports overwrite the toll instead of stacking policies.
func (im *Importer) ImportPricing(ctx context.Context, simulationID int64, file io.Reader, filename string) KindResult {
	res := KindResult{Kind: KindPricing}

	tbl, err := tabular.Decode(file, filename)
	if err != nil {
		res.Err = err
		return res
	}
	if tbl.Len() == 0 {
		return res
	}

	res.Err = im.tx.RunInTx(ctx, func(ctx context.Context) error {
		sctx, err := im.scenarios.Get(ctx, simulationID)
		if err != nil {
			return err
		}
		links, err := im.network.ListLinks(ctx, simulationID)
		if err != nil {
			return err
		}
		linksByExt := make(map[int64]domain.Link, len(links))
		for _, l := range links {
			linksByExt[l.ExternalID] = l
		}
		types, err := im.demand.ListTravelerTypes(ctx, simulationID)
		if err != nil {
			return err
		}
		typesByExt := make(map[int64]domain.TravelerType, len(types))
		for _, tt := range types {
			typesByExt[tt.ExternalID] = tt
		}

		for i := 0; i < tbl.Len(); i++ {
			r, ok, err := decodePricingRow(tbl.Row(i))
			if err != nil {
				return err
			}
			if !ok {
				res.Skipped++
				continue
			}

			link, ok := linksByExt[r.Link]
			if !ok {
				res.Skipped++
				continue
			}
			var travelerTypeID *int64
			if r.TravelerType != nil {
				tt, ok := typesByExt[*r.TravelerType]
				if !ok {
					res.Skipped++
					continue
				}
				travelerTypeID = &tt.ID
			}

			created, err := im.upsertPolicy(ctx, sctx, link, travelerTypeID, r)
			if err != nil {
				return err
			}
			if created {
				res.Created++
			} else {
				res.Updated++
			}
		}
		if res.Mutated() {
			return im.scenarios.MarkChanged(ctx, simulationID)
		}
		return nil
	})

	im.logResult(simulationID, res)
	return res
}

func (im *Importer) upsertPolicy(ctx context.Context, sctx *domain.SimulationContext, link domain.Link, travelerTypeID *int64, r pricingRow) (bool, error) {
	sel, err := im.pricing.GetSelectionForLink(ctx, sctx.Supply.NetworkID, link.ID)
	if errors.Is(err, domain.ErrNotFound) {
		name := fmt.Sprintf("link %d", link.ExternalID)
		sel, err = im.pricing.CreateSelectionForLink(ctx, sctx.Supply.NetworkID, link.ID, link.ExternalID, name)
	}
	if err != nil {
		return false, err
	}

	policy, err := im.pricing.GetPolicyByLocation(ctx, sctx.Scenario.ID, sel.ID)
	if errors.Is(err, domain.ErrNotFound) {
		policy = &domain.PricingPolicy{
			ScenarioID:     sctx.Scenario.ID,
			Kind:           domain.PolicyPricing,
			LocationID:     sel.ID,
			TravelerTypeID: travelerTypeID,
			BaseValue:      r.BaseValue,
			ValueVector:    r.ValueVector,
			TimeVector:     r.TimeVector,
		}
		return true, im.pricing.CreatePolicy(ctx, policy)
	}
	if err != nil {
		return false, err
	}

	policy.TravelerTypeID = travelerTypeID
	policy.BaseValue = r.BaseValue
	policy.ValueVector = r.ValueVector
	policy.TimeVector = r.TimeVector
	return false, im.pricing.UpdatePolicy(ctx, policy)
}

// decodePricingRow parses one row. The values column is a comma-joined list:
// the first element is the base toll and any remaining elements form the
// time-varying vector, matched against the times column. Rows with malformed
// numeric lists are skipped, not fatal.
func decodePricingRow(row tabular.Row) (pricingRow, bool, error) {
	var r pricingRow
	var err error

	if r.Link, err = row.Int("link"); err != nil {
		return r, false, err
	}
	if v := row.Field("traveler_type"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return r, false, nil
		}
		r.TravelerType = &id
	}

	values, ok := splitVector(row.Field("values"))
	if !ok || len(values) == 0 {
		return r, false, nil
	}
	r.BaseValue = values[0]
	r.ValueVector = joinVector(values[1:])

	times, ok := splitVector(row.Field("times"))
	if !ok {
		return r, false, nil
	}
	r.TimeVector = joinVector(times)

	return r, true, nil
}

// splitVector parses a comma-joined numeric list. An empty field is a valid
// empty vector.
func splitVector(s string) ([]float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, true
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

func joinVector(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}
