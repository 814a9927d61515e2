package network

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrosim/metroweb-backend/internal/domain"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestRepo_ListNodes(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(mock pgxmock.PgxPoolIface)
		want    []domain.Node
		wantErr bool
	}{
		{
			name: "two nodes ordered by external id",
			setup: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows([]string{"id", "kind", "external_id", "name", "x", "y"}).
					AddRow(int64(10), "zone", int64(1), "Z1", 4.85, 45.75).
					AddRow(int64(11), "intersection", int64(2), "", 4.86, 45.76)
				mock.ExpectQuery(`SELECT n.id, n.kind`).
					WithArgs(int64(7)).
					WillReturnRows(rows)
			},
			want: []domain.Node{
				{ID: 10, Kind: domain.NodeZone, ExternalID: 1, Name: "Z1", X: 4.85, Y: 45.75},
				{ID: 11, Kind: domain.NodeIntersection, ExternalID: 2, X: 4.86, Y: 45.76},
			},
		},
		{
			name: "empty network",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT n.id, n.kind`).
					WithArgs(int64(7)).
					WillReturnRows(pgxmock.NewRows([]string{"id", "kind", "external_id", "name", "x", "y"}))
			},
			want: nil,
		},
		{
			name: "query error",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT n.id, n.kind`).
					WithArgs(int64(7)).
					WillReturnError(errors.New("boom"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			tt.setup(mock)

			got, err := New(mock, 1000).ListNodes(context.Background(), 7)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRepo_ListLinks(t *testing.T) {
	mock := newMock(t)
	rows := pgxmock.NewRows([]string{
		"id", "external_id", "name", "origin_id", "destination_id",
		"function_id", "length", "lanes", "speed", "capacity",
	}).
		AddRow(int64(5), int64(1), "A-B", int64(10), int64(11), int64(3), 2.5, float64(2), 50.0, 1800.0)
	mock.ExpectQuery(`SELECT l.id, l.external_id`).
		WithArgs(int64(7)).
		WillReturnRows(rows)

	got, err := New(mock, 1000).ListLinks(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(10), got[0].OriginID)
	assert.Equal(t, int64(3), got[0].FunctionID)
	assert.Equal(t, 1800.0, got[0].Capacity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_BulkInsertNodes(t *testing.T) {
	t.Run("returns ids in input order", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`INSERT INTO nodes .*RETURNING id`).
			WithArgs("zone", int64(1), "Z1", 1.0, 2.0, "zone", int64(2), "Z2", 3.0, 4.0).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(100)).AddRow(int64(101)))

		ids, err := New(mock, 1000).BulkInsertNodes(context.Background(), domain.NodeZone, []domain.Node{
			{ExternalID: 1, Name: "Z1", X: 1, Y: 2},
			{ExternalID: 2, Name: "Z2", X: 3, Y: 4},
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{100, 101}, ids)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("splits into chunks", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`INSERT INTO nodes .*RETURNING id`).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))
		mock.ExpectQuery(`INSERT INTO nodes .*RETURNING id`).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))

		ids, err := New(mock, 2).BulkInsertNodes(context.Background(), domain.NodeIntersection, []domain.Node{
			{ExternalID: 1}, {ExternalID: 2}, {ExternalID: 3},
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3}, ids)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty input is a no-op", func(t *testing.T) {
		mock := newMock(t)
		ids, err := New(mock, 1000).BulkInsertNodes(context.Background(), domain.NodeZone, nil)
		require.NoError(t, err)
		assert.Nil(t, ids)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepo_BulkInsertFunctions(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO congestion_functions .*RETURNING id`).
		WithArgs(int64(1), "Free flow", "3600*(length/speed)").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	ids, err := New(mock, 1000).BulkInsertFunctions(context.Background(), []domain.CongestionFunction{
		{ExternalID: 1, Name: "Free flow", Expression: domain.FreeFlowExpression},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_BulkInsertLinks(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO links .*RETURNING id`).
		WithArgs(int64(9), "A-B", int64(10), int64(11), int64(3), 2.5, 2.0, 50.0, 1800.0).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(77)))

	ids, err := New(mock, 1000).BulkInsertLinks(context.Background(), []domain.Link{
		{ExternalID: 9, Name: "A-B", OriginID: 10, DestinationID: 11, FunctionID: 3,
			Length: 2.5, Lanes: 2, Speed: 50, Capacity: 1800},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{77}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_DeleteLinksByIDs(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`DELETE FROM links WHERE id = ANY`).
		WithArgs([]int64{5, 6}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	err := New(mock, 1000).DeleteLinksByIDs(context.Background(), []int64{5, 6})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_DeleteNodes_sweepsReferencingLinksFirst(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`DELETE FROM links WHERE origin_id = ANY`).
		WithArgs([]int64{10}).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`DELETE FROM nodes WHERE id = ANY`).
		WithArgs([]int64{10}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err := New(mock, 1000).DeleteNodes(context.Background(), []int64{10})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_AddNodesToNetwork(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO network_nodes .*ON CONFLICT \(network_id, node_id\) DO NOTHING`).
		WithArgs(int64(1), int64(100), int64(1), int64(101)).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	err := New(mock, 1000).AddNodesToNetwork(context.Background(), 1, []int64{100, 101})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_UpdateNodes_emptyIsNoOp(t *testing.T) {
	mock := newMock(t)
	n, err := New(mock, 1000).UpdateNodes(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_ListFunctions_notFoundPassthrough(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`SELECT f.id, f.external_id`).
		WithArgs(int64(7)).
		WillReturnError(pgx.ErrNoRows)

	_, err := New(mock, 1000).ListFunctions(context.Background(), 7)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
