// Package pricing implements persistence for scenario policies and the
// single-link selections that locate them.
package pricing

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	postgres "github.com/metrosim/metroweb-backend/internal/adapter/postgres"
	"github.com/metrosim/metroweb-backend/internal/domain"
)

// Repo provides policy persistence.
type Repo struct {
	q postgres.Querier
}

// New creates a new pricing repository.
func New(q postgres.Querier) *Repo {
	return &Repo{q: q}
}

// ListPolicies returns every policy of a scenario ordered by id.
func (r *Repo) ListPolicies(ctx context.Context, scenarioID int64) ([]domain.PricingPolicy, error) {
	q := postgres.QuerierFromCtx(ctx, r.q)

	var policies []domain.PricingPolicy
	err := pgxscan.Select(ctx, q, &policies, `
		SELECT id, scenario_id, kind, location_id, traveler_type_id,
		       base_value, value_vector, time_vector
		FROM pricing_policies
		WHERE scenario_id = $1
		ORDER BY id`, scenarioID)
	if err != nil {
		return nil, postgres.MapError(err, "pricing_policies")
	}
	return policies, nil
}

// GetSelectionForLink returns the selection covering the link inside the
// network, or domain.ErrNotFound when no policy has touched the link yet.
func (r *Repo) GetSelectionForLink(ctx context.Context, networkID, linkID int64) (*domain.LinkSelection, error) {
	q := postgres.QuerierFromCtx(ctx, r.q)

	var sel domain.LinkSelection
	err := pgxscan.Get(ctx, q, &sel, `
		SELECT ls.id, ls.network_id, ls.external_id, ls.name
		FROM link_selections ls
		JOIN link_selection_links lsl ON lsl.selection_id = ls.id
		WHERE ls.network_id = $1 AND lsl.link_id = $2
		ORDER BY ls.id
		LIMIT 1`, networkID, linkID)
	if err != nil {
		return nil, postgres.MapError(err, "link_selections")
	}
	return &sel, nil
}

// CreateSelectionForLink creates a selection holding exactly one link, named
// and numbered after it.
func (r *Repo) CreateSelectionForLink(ctx context.Context, networkID, linkID, externalID int64, name string) (*domain.LinkSelection, error) {
	q := postgres.QuerierFromCtx(ctx, r.q)

	sel := domain.LinkSelection{
		NetworkID:  networkID,
		ExternalID: externalID,
		Name:       name,
	}
	err := q.QueryRow(ctx, `
		INSERT INTO link_selections (network_id, external_id, name)
		VALUES ($1, $2, $3)
		RETURNING id`,
		sel.NetworkID, sel.ExternalID, sel.Name).Scan(&sel.ID)
	if err != nil {
		return nil, postgres.MapError(err, "link_selections")
	}
	_, err = q.Exec(ctx, `
		INSERT INTO link_selection_links (selection_id, link_id)
		VALUES ($1, $2)`, sel.ID, linkID)
	if err != nil {
		return nil, postgres.MapError(err, "link_selection_links")
	}
	return &sel, nil
}

// GetPolicyByLocation returns the scenario's policy at a given selection, or
// domain.ErrNotFound.
func (r *Repo) GetPolicyByLocation(ctx context.Context, scenarioID, locationID int64) (*domain.PricingPolicy, error) {
	q := postgres.QuerierFromCtx(ctx, r.q)

	var p domain.PricingPolicy
	err := pgxscan.Get(ctx, q, &p, `
		SELECT id, scenario_id, kind, location_id, traveler_type_id,
		       base_value, value_vector, time_vector
		FROM pricing_policies
		WHERE scenario_id = $1 AND location_id = $2`, scenarioID, locationID)
	if err != nil {
		return nil, postgres.MapError(err, "pricing_policies")
	}
	return &p, nil
}

// CreatePolicy inserts a policy and fills in the generated id.
func (r *Repo) CreatePolicy(ctx context.Context, p *domain.PricingPolicy) error {
	q := postgres.QuerierFromCtx(ctx, r.q)

	err := q.QueryRow(ctx, `
		INSERT INTO pricing_policies (
			scenario_id, kind, location_id, traveler_type_id,
			base_value, value_vector, time_vector
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		p.ScenarioID, string(p.Kind), p.LocationID, p.TravelerTypeID,
		p.BaseValue, p.ValueVector, p.TimeVector).Scan(&p.ID)
	if err != nil {
		return postgres.MapError(err, "pricing_policies")
	}
	return nil
}

// UpdatePolicy overwrites the mutable columns of an existing policy.
func (r *Repo) UpdatePolicy(ctx context.Context, p *domain.PricingPolicy) error {
	q := postgres.QuerierFromCtx(ctx, r.q)

	tag, err := q.Exec(ctx, `
		UPDATE pricing_policies
		SET traveler_type_id = $1, base_value = $2, value_vector = $3, time_vector = $4
		WHERE id = $5`,
		p.TravelerTypeID, p.BaseValue, p.ValueVector, p.TimeVector, p.ID)
	if err != nil {
		return postgres.MapError(err, "pricing_policies")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pricing_policies: %w", domain.ErrNotFound)
	}
	return nil
}

// RepointPolicies moves every policy targeting one traveler type to another.
// Returns the number of moved policies.
func (r *Repo) RepointPolicies(ctx context.Context, oldTravelerTypeID, newTravelerTypeID int64) (int, error) {
	q := postgres.QuerierFromCtx(ctx, r.q)

	tag, err := q.Exec(ctx, `
		UPDATE pricing_policies
		SET traveler_type_id = $1
		WHERE traveler_type_id = $2`, newTravelerTypeID, oldTravelerTypeID)
	if err != nil {
		return 0, postgres.MapError(err, "pricing_policies")
	}
	return int(tag.RowsAffected()), nil
}

// PolicyExportRow is a policy joined with the external identifiers its file
// representation needs.
type PolicyExportRow struct {
	LinkExternalID         int64   `db:"link_external_id"`
	TravelerTypeExternalID *int64  `db:"traveler_type_external_id"`
	BaseValue              float64 `db:"base_value"`
	ValueVector            string  `db:"value_vector"`
	TimeVector             string  `db:"time_vector"`
}

// ListPoliciesForExport returns the scenario's tolls resolved to external
// link and traveler-type ids, ordered by link.
func (r *Repo) ListPoliciesForExport(ctx context.Context, scenarioID int64) ([]PolicyExportRow, error) {
	q := postgres.QuerierFromCtx(ctx, r.q)

	var rows []PolicyExportRow
	err := pgxscan.Select(ctx, q, &rows, `
		SELECT l.external_id AS link_external_id,
		       tt.external_id AS traveler_type_external_id,
		       p.base_value, p.value_vector, p.time_vector
		FROM pricing_policies p
		JOIN link_selection_links lsl ON lsl.selection_id = p.location_id
		JOIN links l                  ON l.id = lsl.link_id
		LEFT JOIN traveler_types tt   ON tt.id = p.traveler_type_id
		WHERE p.scenario_id = $1 AND p.kind = 'PRICING'
		ORDER BY l.external_id`, scenarioID)
	if err != nil {
		return nil, postgres.MapError(err, "pricing_policies")
	}
	return rows, nil
}
