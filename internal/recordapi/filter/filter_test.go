package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/litebase/internal/schema"
)

func allColumns(string) bool { return true }

func intType(string) (schema.ColumnType, bool) { return schema.Integer, true }

func TestParseBareEquality(t *testing.T) {
	node, err := Parse(map[string][]string{
		"filter[status]": {"done"},
	}, allColumns)
	require.NoError(t, err)

	sql, args, err := Compile(node, nil)
	require.NoError(t, err)
	assert.Equal(t, `"status" = ?`, sql)
	assert.Equal(t, []any{"done"}, args)
}

func TestParseOperator(t *testing.T) {
	node, err := Parse(map[string][]string{
		"filter[age][$gte]": {"21"},
	}, allColumns)
	require.NoError(t, err)

	sql, args, err := Compile(node, intType)
	require.NoError(t, err)
	assert.Equal(t, `"age" >= ?`, sql)
	assert.Equal(t, []any{int64(21)}, args)
}

func TestParseImplicitAndAcrossColumns(t *testing.T) {
	node, err := Parse(map[string][]string{
		"filter[status]":   {"done"},
		"filter[priority]": {"1"},
	}, allColumns)
	require.NoError(t, err)

	sql, _, err := Compile(node, nil)
	require.NoError(t, err)
	assert.Contains(t, sql, "AND")
	assert.Contains(t, sql, `"priority" = ?`)
	assert.Contains(t, sql, `"status" = ?`)
}

func TestParseOrGroup(t *testing.T) {
	node, err := Parse(map[string][]string{
		"filter[$or][0][status]": {"done"},
		"filter[$or][1][status]": {"archived"},
	}, allColumns)
	require.NoError(t, err)

	sql, args, err := Compile(node, nil)
	require.NoError(t, err)
	assert.Equal(t, `("status" = ? OR "status" = ?)`, sql)
	assert.Equal(t, []any{"done", "archived"}, args)
}

func TestParseIsNull(t *testing.T) {
	node, err := Parse(map[string][]string{
		"filter[deleted_at][$is]": {"null"},
	}, allColumns)
	require.NoError(t, err)

	sql, args, err := Compile(node, nil)
	require.NoError(t, err)
	assert.Equal(t, `"deleted_at" IS NULL`, sql)
	assert.Empty(t, args)
}

func TestParseRejectsUnknownColumn(t *testing.T) {
	_, err := Parse(map[string][]string{
		"filter[secret]": {"x"},
	}, func(string) bool { return false })
	assert.Error(t, err)
}

func TestParseRejectsInvalidColumnName(t *testing.T) {
	_, err := Parse(map[string][]string{
		"filter[bad name]": {"x"},
	}, allColumns)
	assert.Error(t, err)
}

func TestParseNoFilterKeysReturnsNilNode(t *testing.T) {
	node, err := Parse(map[string][]string{"limit": {"10"}}, allColumns)
	require.NoError(t, err)
	assert.Nil(t, node)

	sql, args, err := Compile(node, nil)
	require.NoError(t, err)
	assert.Empty(t, sql)
	assert.Empty(t, args)
}

func TestParseDeepNestingRejected(t *testing.T) {
	key := "filter"
	for i := 0; i < maxDepth+2; i++ {
		key += "[$and][0]"
	}
	key += "[col]"

	_, err := Parse(map[string][]string{key: {"v"}}, allColumns)
	assert.Error(t, err)
}
