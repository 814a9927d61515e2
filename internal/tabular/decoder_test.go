package tabular

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_TSVByExtension(t *testing.T) {
	input := "id\tname\tx\ty\n1\tA\t0\t0\n2\tB\t10\t0\n"

	table, err := Decode(strings.NewReader(input), "zones.tsv")
	require.NoError(t, err)

	require.Equal(t, 2, table.Len())
	assert.Equal(t, "A", table.Row(0).Field("name"))

	x, err := table.Row(1).Float("x")
	require.NoError(t, err)
	assert.Equal(t, 10.0, x)
}

func TestDecode_CommaByDefault(t *testing.T) {
	input := "id,name,expression\n1,Free flow,3600*(length/speed)\n"

	table, err := Decode(strings.NewReader(input), "congestion_functions.csv")
	require.NoError(t, err)

	require.Equal(t, 1, table.Len())
	assert.Equal(t, "Free flow", table.Row(0).Field("name"))
}

func TestDecode_EmptyFile(t *testing.T) {
	table, err := Decode(strings.NewReader(""), "zones.tsv")
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
}

func TestDecode_HeaderOnly(t *testing.T) {
	table, err := Decode(strings.NewReader("id\tname\tx\ty\n"), "zones.tsv")
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
}

func TestDecode_MissingOptionalColumn(t *testing.T) {
	// No name column: Field("name") must read as "" for every row.
	input := "id\tx\ty\n7\t1.5\t2.5\n"

	table, err := Decode(strings.NewReader(input), "zones.tsv")
	require.NoError(t, err)

	assert.False(t, table.HasColumn("name"))
	assert.Equal(t, "", table.Row(0).Field("name"))

	id, err := table.Row(0).Int("id")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestDecode_ExtraColumnsIgnored(t *testing.T) {
	// Round-tripped exports carry a db_id column; it must not disturb reads.
	input := "id\tname\tx\ty\tdb_id\n1\tA\t0\t0\t991\n"

	table, err := Decode(strings.NewReader(input), "zones.tsv")
	require.NoError(t, err)
	assert.Equal(t, "A", table.Row(0).Field("name"))
}

func TestDecode_ShortRecord(t *testing.T) {
	input := "id\tname\tx\ty\n1\n"

	table, err := Decode(strings.NewReader(input), "zones.tsv")
	require.NoError(t, err)
	assert.Equal(t, "", table.Row(0).Field("y"))
}

func TestDecode_InvalidUTF8(t *testing.T) {
	_, err := Decode(strings.NewReader("id\tname\n1\t\xff\xfe\n"), "zones.tsv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UTF-8")
}

func TestRow_ParseErrors(t *testing.T) {
	input := "id,x\nabc,1.0\n"

	table, err := Decode(strings.NewReader(input), "zones.csv")
	require.NoError(t, err)

	_, err = table.Row(0).Int("id")
	assert.Error(t, err)

	_, err = table.Row(0).Float("missing")
	assert.Error(t, err)
}
