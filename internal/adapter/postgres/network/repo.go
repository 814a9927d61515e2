// Package network implements persistence for the supply side of a scenario:
// nodes (zones and intersections), congestion functions and links, including
// the chunked bulk writes and membership backfill used by imports.
package network

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	postgres "github.com/metrosim/metroweb-backend/internal/adapter/postgres"
	"github.com/metrosim/metroweb-backend/internal/domain"
)

// Repo provides network persistence. chunkSize bounds the width of a single
// bulk statement; very large statements exceed datastore timeouts.
type Repo struct {
	q         postgres.Querier
	chunkSize int
}

// New creates a new network repository.
func New(q postgres.Querier, chunkSize int) *Repo {
	return &Repo{q: q, chunkSize: chunkSize}
}

// ---------------------------------------------------------------------------
// Entity resolution (read side)
// ---------------------------------------------------------------------------

const listNodesSQL = `
SELECT n.id, n.kind, n.external_id, n.name, n.x, n.y
FROM nodes n
JOIN network_nodes nn ON nn.node_id = n.id
JOIN supplies sup     ON sup.network_id = nn.network_id
JOIN scenarios sc     ON sc.supply_id = sup.id
JOIN simulations sim  ON sim.scenario_id = sc.id
WHERE sim.id = $1
ORDER BY n.external_id`

// ListNodes returns every node (both kinds) owned by the simulation's network.
func (r *Repo) ListNodes(ctx context.Context, simulationID int64) ([]domain.Node, error) {
	q := postgres.QuerierFromCtx(ctx, r.q)

	var nodes []domain.Node
	if err := pgxscan.Select(ctx, q, &nodes, listNodesSQL, simulationID); err != nil {
		return nil, postgres.MapError(err, "nodes")
	}
	return nodes, nil
}

const listFunctionsSQL = `
SELECT f.id, f.external_id, f.name, f.expression
FROM congestion_functions f
JOIN function_set_functions fsf ON fsf.function_id = f.id
JOIN supplies sup    ON sup.function_set_id = fsf.function_set_id
JOIN scenarios sc    ON sc.supply_id = sup.id
JOIN simulations sim ON sim.scenario_id = sc.id
WHERE sim.id = $1
ORDER BY f.external_id`

// ListFunctions returns every congestion function owned by the simulation's
// function set.
func (r *Repo) ListFunctions(ctx context.Context, simulationID int64) ([]domain.CongestionFunction, error) {
	q := postgres.QuerierFromCtx(ctx, r.q)

	var fns []domain.CongestionFunction
	if err := pgxscan.Select(ctx, q, &fns, listFunctionsSQL, simulationID); err != nil {
		return nil, postgres.MapError(err, "congestion_functions")
	}
	return fns, nil
}

const listLinksSQL = `
SELECT l.id, l.external_id, l.name, l.origin_id, l.destination_id,
       l.function_id, l.length, l.lanes, l.speed, l.capacity
FROM links l
JOIN network_links nl ON nl.link_id = l.id
JOIN supplies sup     ON sup.network_id = nl.network_id
JOIN scenarios sc     ON sc.supply_id = sup.id
JOIN simulations sim  ON sim.scenario_id = sc.id
WHERE sim.id = $1
ORDER BY l.external_id`

// ListLinks returns every link owned by the simulation's network.
func (r *Repo) ListLinks(ctx context.Context, simulationID int64) ([]domain.Link, error) {
	q := postgres.QuerierFromCtx(ctx, r.q)

	var links []domain.Link
	if err := pgxscan.Select(ctx, q, &links, listLinksSQL, simulationID); err != nil {
		return nil, postgres.MapError(err, "links")
	}
	return links, nil
}

// ---------------------------------------------------------------------------
// Bulk writes
// ---------------------------------------------------------------------------

// BulkInsertNodes inserts nodes of one kind in chunks and returns the
// generated ids in input order. The RETURNING clause recovers ids directly,
// so no assumptions about id monotonicity are needed.
func (r *Repo) BulkInsertNodes(ctx context.Context, kind domain.NodeKind, rows []domain.Node) ([]int64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	q := postgres.QuerierFromCtx(ctx, r.q)

	ids := make([]int64, 0, len(rows))
	for _, chunk := range postgres.Chunk(rows, r.chunkSize) {
		insert := postgres.Builder.
			Insert("nodes").
			Columns("kind", "external_id", "name", "x", "y")
		for _, n := range chunk {
			insert = insert.Values(string(kind), n.ExternalID, n.Name, n.X, n.Y)
		}

		chunkIDs, err := queryIDs(ctx, q, insert.Suffix("RETURNING id"))
		if err != nil {
			return nil, postgres.MapError(err, "nodes")
		}
		ids = append(ids, chunkIDs...)
	}
	return ids, nil
}

// BulkInsertFunctions inserts congestion functions in chunks, returning
// generated ids in input order.
func (r *Repo) BulkInsertFunctions(ctx context.Context, rows []domain.CongestionFunction) ([]int64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	q := postgres.QuerierFromCtx(ctx, r.q)

	ids := make([]int64, 0, len(rows))
	for _, chunk := range postgres.Chunk(rows, r.chunkSize) {
		insert := postgres.Builder.
			Insert("congestion_functions").
			Columns("external_id", "name", "expression")
		for _, fn := range chunk {
			insert = insert.Values(fn.ExternalID, fn.Name, fn.Expression)
		}

		chunkIDs, err := queryIDs(ctx, q, insert.Suffix("RETURNING id"))
		if err != nil {
			return nil, postgres.MapError(err, "congestion_functions")
		}
		ids = append(ids, chunkIDs...)
	}
	return ids, nil
}

// BulkInsertLinks inserts links in chunks, returning generated ids in input
// order. Origin, destination and function references must already be resolved
// to internal ids.
func (r *Repo) BulkInsertLinks(ctx context.Context, rows []domain.Link) ([]int64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	q := postgres.QuerierFromCtx(ctx, r.q)

	ids := make([]int64, 0, len(rows))
	for _, chunk := range postgres.Chunk(rows, r.chunkSize) {
		insert := postgres.Builder.
			Insert("links").
			Columns("external_id", "name", "origin_id", "destination_id",
				"function_id", "length", "lanes", "speed", "capacity")
		for _, l := range chunk {
			insert = insert.Values(l.ExternalID, l.Name, l.OriginID, l.DestinationID,
				l.FunctionID, l.Length, l.Lanes, l.Speed, l.Capacity)
		}

		chunkIDs, err := queryIDs(ctx, q, insert.Suffix("RETURNING id"))
		if err != nil {
			return nil, postgres.MapError(err, "links")
		}
		ids = append(ids, chunkIDs...)
	}
	return ids, nil
}

// UpdateNodes applies in-place updates to the mutable node columns,
// chunked over pgx batches. Returns the number of updated rows.
func (r *Repo) UpdateNodes(ctx context.Context, rows []domain.Node) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	q := postgres.QuerierFromCtx(ctx, r.q)

	var updated int
	for _, chunk := range postgres.Chunk(rows, r.chunkSize) {
		batch := &pgx.Batch{}
		for _, n := range chunk {
			batch.Queue(
				`UPDATE nodes SET name = $1, x = $2, y = $3 WHERE id = $4`,
				n.Name, n.X, n.Y, n.ID,
			)
		}
		n, err := postgres.SendBatchExec(ctx, q, batch)
		updated += n
		if err != nil {
			return updated, postgres.MapError(err, "nodes")
		}
	}
	return updated, nil
}

// UpdateFunctions applies in-place updates to name and expression.
func (r *Repo) UpdateFunctions(ctx context.Context, rows []domain.CongestionFunction) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	q := postgres.QuerierFromCtx(ctx, r.q)

	var updated int
	for _, chunk := range postgres.Chunk(rows, r.chunkSize) {
		batch := &pgx.Batch{}
		for _, fn := range chunk {
			batch.Queue(
				`UPDATE congestion_functions SET name = $1, expression = $2 WHERE id = $3`,
				fn.Name, fn.Expression, fn.ID,
			)
		}
		n, err := postgres.SendBatchExec(ctx, q, batch)
		updated += n
		if err != nil {
			return updated, postgres.MapError(err, "congestion_functions")
		}
	}
	return updated, nil
}

// DeleteLinksByIDs removes links by internal id, chunked. Membership rows go
// with them via ON DELETE CASCADE.
func (r *Repo) DeleteLinksByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	q := postgres.QuerierFromCtx(ctx, r.q)

	for _, chunk := range postgres.Chunk(ids, r.chunkSize) {
		if _, err := q.Exec(ctx, `DELETE FROM links WHERE id = ANY($1)`, chunk); err != nil {
			return postgres.MapError(err, "links")
		}
	}
	return nil
}

// DeleteNodes removes nodes by internal id, first removing every link whose
// origin or destination references one of them. Nodes cannot be deleted while
// referenced (links carry ON DELETE RESTRICT), so the link sweep comes first.
func (r *Repo) DeleteNodes(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	q := postgres.QuerierFromCtx(ctx, r.q)

	for _, chunk := range postgres.Chunk(ids, r.chunkSize) {
		_, err := q.Exec(ctx,
			`DELETE FROM links WHERE origin_id = ANY($1) OR destination_id = ANY($1)`, chunk)
		if err != nil {
			return postgres.MapError(err, "links")
		}
		if _, err := q.Exec(ctx, `DELETE FROM nodes WHERE id = ANY($1)`, chunk); err != nil {
			return postgres.MapError(err, "nodes")
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Membership backfill (runs strictly after id recovery)
// ---------------------------------------------------------------------------

// AddNodesToNetwork creates the network membership rows for freshly inserted
// nodes in one bulk statement per chunk.
func (r *Repo) AddNodesToNetwork(ctx context.Context, networkID int64, nodeIDs []int64) error {
	return r.addMembership(ctx, "network_nodes", "network_id", "node_id", networkID, nodeIDs)
}

// AddFunctionsToSet creates the function-set membership rows for freshly
// inserted congestion functions.
func (r *Repo) AddFunctionsToSet(ctx context.Context, functionSetID int64, functionIDs []int64) error {
	return r.addMembership(ctx, "function_set_functions", "function_set_id", "function_id", functionSetID, functionIDs)
}

// AddLinksToNetwork creates the network membership rows for freshly inserted
// links.
func (r *Repo) AddLinksToNetwork(ctx context.Context, networkID int64, linkIDs []int64) error {
	return r.addMembership(ctx, "network_links", "network_id", "link_id", networkID, linkIDs)
}

func (r *Repo) addMembership(ctx context.Context, table, parentCol, childCol string, parentID int64, childIDs []int64) error {
	if len(childIDs) == 0 {
		return nil
	}
	q := postgres.QuerierFromCtx(ctx, r.q)

	for _, chunk := range postgres.Chunk(childIDs, r.chunkSize) {
		insert := postgres.Builder.
			Insert(table).
			Columns(parentCol, childCol)
		for _, id := range chunk {
			insert = insert.Values(parentID, id)
		}
		sql, args, err := insert.
			Suffix(fmt.Sprintf("ON CONFLICT (%s, %s) DO NOTHING", parentCol, childCol)).
			ToSql()
		if err != nil {
			return fmt.Errorf("%s: build insert: %w", table, err)
		}
		if _, err := q.Exec(ctx, sql, args...); err != nil {
			return postgres.MapError(err, table)
		}
	}
	return nil
}

// queryIDs runs an insert with a RETURNING id suffix and collects the ids.
func queryIDs(ctx context.Context, q postgres.Querier, insert interface {
	ToSql() (string, []any, error)
}) ([]int64, error) {
	sql, args, err := insert.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
