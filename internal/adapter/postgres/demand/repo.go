// Package demand implements persistence for the demand side of a scenario:
// traveler types with their parameter distributions, demand segments,
// OD matrices and their sparse cells.
package demand

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	postgres "github.com/metrosim/metroweb-backend/internal/adapter/postgres"
	"github.com/metrosim/metroweb-backend/internal/domain"
)

// Repo provides demand persistence. cellChunkSize bounds cell bulk
// statements; cell files are an order of magnitude larger than object files
// and get a wider chunk.
type Repo struct {
	q             postgres.Querier
	cellChunkSize int
}

// New creates a new demand repository.
func New(q postgres.Querier, cellChunkSize int) *Repo {
	return &Repo{q: q, cellChunkSize: cellChunkSize}
}

// ---------------------------------------------------------------------------
// Traveler types
// ---------------------------------------------------------------------------

// travelerTypeRow carries the scalar columns plus the ten distribution ids;
// the distributions themselves are fetched in one follow-up query and
// stitched in.
type travelerTypeRow struct {
	ID         int64  `db:"id"`
	ExternalID int64  `db:"external_id"`
	Name       string `db:"name"`
	Comment    string `db:"comment"`

	AlphaTIID     int64 `db:"alpha_ti_id"`
	AlphaTPID     int64 `db:"alpha_tp_id"`
	BetaID        int64 `db:"beta_id"`
	DeltaID       int64 `db:"delta_id"`
	DepartureMuID int64 `db:"departure_mu_id"`
	GammaID       int64 `db:"gamma_id"`
	ModeMuID      int64 `db:"mode_mu_id"`
	PenaltyTPID   int64 `db:"penalty_tp_id"`
	RouteMuID     int64 `db:"route_mu_id"`
	TstarID       int64 `db:"tstar_id"`

	TypeOfRouteChoice string `db:"type_of_route_choice"`
	TypeOfDepartureMu string `db:"type_of_departure_mu"`
	TypeOfRouteMu     string `db:"type_of_route_mu"`
	TypeOfModeMu      string `db:"type_of_mode_mu"`
	LocalATIS         string `db:"local_atis"`
	ModeChoice        string `db:"mode_choice"`
	ModeShortRun      string `db:"mode_short_run"`
	CommuteType       string `db:"commute_type"`
}

func (r travelerTypeRow) distributionIDs() []int64 {
	return []int64{
		r.AlphaTIID, r.AlphaTPID, r.BetaID, r.DeltaID, r.DepartureMuID,
		r.GammaID, r.ModeMuID, r.PenaltyTPID, r.RouteMuID, r.TstarID,
	}
}

const listTravelerTypesSQL = `
SELECT tt.id, tt.external_id, tt.name, tt.comment,
       tt.alpha_ti_id, tt.alpha_tp_id, tt.beta_id, tt.delta_id,
       tt.departure_mu_id, tt.gamma_id, tt.mode_mu_id, tt.penalty_tp_id,
       tt.route_mu_id, tt.tstar_id,
       tt.type_of_route_choice, tt.type_of_departure_mu, tt.type_of_route_mu,
       tt.type_of_mode_mu, tt.local_atis, tt.mode_choice, tt.mode_short_run,
       tt.commute_type
FROM traveler_types tt
JOIN demand_segments ds ON ds.traveler_type_id = tt.id
JOIN scenarios sc       ON sc.demand_id = ds.demand_id
JOIN simulations sim    ON sim.scenario_id = sc.id
WHERE sim.id = $1
ORDER BY tt.external_id`

// ListTravelerTypes returns every traveler type owned by the simulation's
// demand, with all ten distributions populated.
func (r *Repo) ListTravelerTypes(ctx context.Context, simulationID int64) ([]domain.TravelerType, error) {
	q := postgres.QuerierFromCtx(ctx, r.q)

	var rows []travelerTypeRow
	if err := pgxscan.Select(ctx, q, &rows, listTravelerTypesSQL, simulationID); err != nil {
		return nil, postgres.MapError(err, "traveler_types")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	distIDs := make([]int64, 0, len(rows)*len(domain.DistributionNames))
	for _, row := range rows {
		distIDs = append(distIDs, row.distributionIDs()...)
	}
	dists, err := r.distributionsByID(ctx, q, distIDs)
	if err != nil {
		return nil, err
	}

	types := make([]domain.TravelerType, len(rows))
	for i, row := range rows {
		tt := domain.TravelerType{
			ID:                row.ID,
			ExternalID:        row.ExternalID,
			Name:              row.Name,
			Comment:           row.Comment,
			TypeOfRouteChoice: row.TypeOfRouteChoice,
			TypeOfDepartureMu: row.TypeOfDepartureMu,
			TypeOfRouteMu:     row.TypeOfRouteMu,
			TypeOfModeMu:      row.TypeOfModeMu,
			LocalATIS:         row.LocalATIS,
			ModeChoice:        row.ModeChoice,
			ModeShortRun:      row.ModeShortRun,
			CommuteType:       row.CommuteType,
		}
		for j, id := range row.distributionIDs() {
			d, ok := dists[id]
			if !ok {
				return nil, fmt.Errorf("traveler_types: distribution %d missing", id)
			}
			*tt.Distributions()[j] = d
		}
		types[i] = tt
	}
	return types, nil
}

func (r *Repo) distributionsByID(ctx context.Context, q postgres.Querier, ids []int64) (map[int64]domain.Distribution, error) {
	var dists []domain.Distribution
	err := pgxscan.Select(ctx, q, &dists,
		`SELECT id, kind, mean, std FROM distributions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, postgres.MapError(err, "distributions")
	}
	byID := make(map[int64]domain.Distribution, len(dists))
	for _, d := range dists {
		byID[d.ID] = d
	}
	return byID, nil
}

// CreateTravelerType inserts the ten distributions followed by the traveler
// type row and fills in the generated ids.
func (r *Repo) CreateTravelerType(ctx context.Context, tt *domain.TravelerType) error {
	q := postgres.QuerierFromCtx(ctx, r.q)

	insert := postgres.Builder.
		Insert("distributions").
		Columns("kind", "mean", "std")
	for _, d := range tt.Distributions() {
		insert = insert.Values(string(d.Kind), d.Mean, d.Std)
	}
	sql, args, err := insert.Suffix("RETURNING id").ToSql()
	if err != nil {
		return fmt.Errorf("distributions: build insert: %w", err)
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "distributions")
	}
	distIDs, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return postgres.MapError(err, "distributions")
	}
	if len(distIDs) != len(domain.DistributionNames) {
		return fmt.Errorf("distributions: expected %d ids, got %d", len(domain.DistributionNames), len(distIDs))
	}
	for i, d := range tt.Distributions() {
		d.ID = distIDs[i]
	}

	err = q.QueryRow(ctx, `
		INSERT INTO traveler_types (
			external_id, name, comment,
			alpha_ti_id, alpha_tp_id, beta_id, delta_id, departure_mu_id,
			gamma_id, mode_mu_id, penalty_tp_id, route_mu_id, tstar_id,
			type_of_route_choice, type_of_departure_mu, type_of_route_mu,
			type_of_mode_mu, local_atis, mode_choice, mode_short_run, commute_type
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		          $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id`,
		tt.ExternalID, tt.Name, tt.Comment,
		tt.AlphaTI.ID, tt.AlphaTP.ID, tt.Beta.ID, tt.Delta.ID, tt.DepartureMu.ID,
		tt.Gamma.ID, tt.ModeMu.ID, tt.PenaltyTP.ID, tt.RouteMu.ID, tt.Tstar.ID,
		tt.TypeOfRouteChoice, tt.TypeOfDepartureMu, tt.TypeOfRouteMu,
		tt.TypeOfModeMu, tt.LocalATIS, tt.ModeChoice, tt.ModeShortRun, tt.CommuteType,
	).Scan(&tt.ID)
	if err != nil {
		return postgres.MapError(err, "traveler_types")
	}
	return nil
}

// DeleteTravelerType removes the traveler type and its ten distributions.
// The row goes first since it references the distributions.
func (r *Repo) DeleteTravelerType(ctx context.Context, tt domain.TravelerType) error {
	q := postgres.QuerierFromCtx(ctx, r.q)

	if _, err := q.Exec(ctx, `DELETE FROM traveler_types WHERE id = $1`, tt.ID); err != nil {
		return postgres.MapError(err, "traveler_types")
	}
	distIDs := make([]int64, 0, len(domain.DistributionNames))
	for _, d := range tt.Distributions() {
		if d.ID != 0 {
			distIDs = append(distIDs, d.ID)
		}
	}
	if len(distIDs) == 0 {
		return nil
	}
	if _, err := q.Exec(ctx, `DELETE FROM distributions WHERE id = ANY($1)`, distIDs); err != nil {
		return postgres.MapError(err, "distributions")
	}
	return nil
}

// NextExternalID returns max(external_id)+1 over the simulation's traveler
// types, or 1 for an empty demand.
func (r *Repo) NextExternalID(ctx context.Context, simulationID int64) (int64, error) {
	q := postgres.QuerierFromCtx(ctx, r.q)

	var next int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(MAX(tt.external_id), 0) + 1
		FROM traveler_types tt
		JOIN demand_segments ds ON ds.traveler_type_id = tt.id
		JOIN scenarios sc       ON sc.demand_id = ds.demand_id
		JOIN simulations sim    ON sim.scenario_id = sc.id
		WHERE sim.id = $1`, simulationID).Scan(&next)
	if err != nil {
		return 0, postgres.MapError(err, "traveler_types")
	}
	return next, nil
}

// ---------------------------------------------------------------------------
// Demand segments
// ---------------------------------------------------------------------------

// GetSegmentByTravelerType returns the segment pairing the traveler type with
// its matrix inside the demand.
func (r *Repo) GetSegmentByTravelerType(ctx context.Context, demandID, travelerTypeID int64) (*domain.DemandSegment, error) {
	q := postgres.QuerierFromCtx(ctx, r.q)

	var seg domain.DemandSegment
	err := pgxscan.Get(ctx, q, &seg, `
		SELECT id, demand_id, traveler_type_id, matrix_id, scale
		FROM demand_segments
		WHERE demand_id = $1 AND traveler_type_id = $2`, demandID, travelerTypeID)
	if err != nil {
		return nil, postgres.MapError(err, "demand_segments")
	}
	return &seg, nil
}

// CreateSegment creates a fresh empty matrix and a segment pairing it with
// the traveler type.
func (r *Repo) CreateSegment(ctx context.Context, demandID, travelerTypeID int64, matrixName string) (*domain.DemandSegment, error) {
	q := postgres.QuerierFromCtx(ctx, r.q)

	matrixID, err := r.CreateMatrix(ctx, matrixName)
	if err != nil {
		return nil, err
	}

	seg := domain.DemandSegment{
		DemandID:       demandID,
		TravelerTypeID: travelerTypeID,
		MatrixID:       matrixID,
		Scale:          1,
	}
	err = q.QueryRow(ctx, `
		INSERT INTO demand_segments (demand_id, traveler_type_id, matrix_id, scale)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		seg.DemandID, seg.TravelerTypeID, seg.MatrixID, seg.Scale).Scan(&seg.ID)
	if err != nil {
		return nil, postgres.MapError(err, "demand_segments")
	}
	return &seg, nil
}

// RepointSegment switches a segment to a new traveler type, preserving its
// matrix and scale.
func (r *Repo) RepointSegment(ctx context.Context, segmentID, travelerTypeID int64) error {
	q := postgres.QuerierFromCtx(ctx, r.q)

	tag, err := q.Exec(ctx,
		`UPDATE demand_segments SET traveler_type_id = $1 WHERE id = $2`,
		travelerTypeID, segmentID)
	if err != nil {
		return postgres.MapError(err, "demand_segments")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("demand_segments: %w", domain.ErrNotFound)
	}
	return nil
}

// ---------------------------------------------------------------------------
// OD matrices and cells
// ---------------------------------------------------------------------------

// CreateMatrix inserts an empty OD matrix.
func (r *Repo) CreateMatrix(ctx context.Context, name string) (int64, error) {
	q := postgres.QuerierFromCtx(ctx, r.q)

	var id int64
	err := q.QueryRow(ctx,
		`INSERT INTO od_matrices (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, postgres.MapError(err, "od_matrices")
	}
	return id, nil
}

// ListCells returns the sparse cells of a matrix.
func (r *Repo) ListCells(ctx context.Context, matrixID int64) ([]domain.OdCell, error) {
	q := postgres.QuerierFromCtx(ctx, r.q)

	var cells []domain.OdCell
	err := pgxscan.Select(ctx, q, &cells, `
		SELECT id, matrix_id, origin_id, destination_id, population
		FROM od_cells
		WHERE matrix_id = $1`, matrixID)
	if err != nil {
		return nil, postgres.MapError(err, "od_cells")
	}
	return cells, nil
}

// BulkInsertCells inserts cells in chunks. Cell ids are never needed after
// insertion, so no RETURNING clause.
func (r *Repo) BulkInsertCells(ctx context.Context, matrixID int64, cells []domain.OdCell) error {
	if len(cells) == 0 {
		return nil
	}
	q := postgres.QuerierFromCtx(ctx, r.q)

	for _, chunk := range postgres.Chunk(cells, r.cellChunkSize) {
		insert := postgres.Builder.
			Insert("od_cells").
			Columns("matrix_id", "origin_id", "destination_id", "population")
		for _, c := range chunk {
			insert = insert.Values(matrixID, c.OriginID, c.DestinationID, c.Population)
		}
		sql, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("od_cells: build insert: %w", err)
		}
		if _, err := q.Exec(ctx, sql, args...); err != nil {
			return postgres.MapError(err, "od_cells")
		}
	}
	return nil
}

// DeleteCellsByIDs removes cells by internal id, chunked.
func (r *Repo) DeleteCellsByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	q := postgres.QuerierFromCtx(ctx, r.q)

	for _, chunk := range postgres.Chunk(ids, r.cellChunkSize) {
		if _, err := q.Exec(ctx, `DELETE FROM od_cells WHERE id = ANY($1)`, chunk); err != nil {
			return postgres.MapError(err, "od_cells")
		}
	}
	return nil
}

// RecomputeTotal refreshes the denormalized matrix total as
// scale × sum of cell populations and returns the new value.
func (r *Repo) RecomputeTotal(ctx context.Context, matrixID int64, scale float64) (float64, error) {
	q := postgres.QuerierFromCtx(ctx, r.q)

	var total float64
	err := q.QueryRow(ctx, `
		UPDATE od_matrices
		SET total = $1 * COALESCE(
			(SELECT SUM(population) FROM od_cells WHERE matrix_id = $2), 0)
		WHERE id = $2
		RETURNING total`, scale, matrixID).Scan(&total)
	if err != nil {
		return 0, postgres.MapError(err, "od_matrices")
	}
	return total, nil
}
