package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalJSON_KeepsIntegersPastFloatPrecision(t *testing.T) {
	var m map[string]any
	require.NoError(t, UnmarshalJSON([]byte(`{"small":42,"ratio":0.5,"big":9007199254740993,"neg":-9007199254740993,"nested":{"ids":[1,18446744073709551616]}}`), &m))

	assert.Equal(t, 42.0, m["small"])
	assert.Equal(t, 0.5, m["ratio"])
	assert.Equal(t, json.Number("9007199254740993"), m["big"])
	assert.Equal(t, json.Number("-9007199254740993"), m["neg"])
	ids := m["nested"].(map[string]any)["ids"].([]any)
	assert.Equal(t, 1.0, ids[0])
	assert.Equal(t, json.Number("18446744073709551616"), ids[1])

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"big":9007199254740993`)
}

func TestFieldList_ScanKeepsLargeDefaults(t *testing.T) {
	var l FieldList
	require.NoError(t, l.Scan(`[{"name":"seq","type":"number","default":9007199254740993,"allowed_values":[1,9007199254740993]}]`))
	require.Len(t, l, 1)
	assert.Equal(t, json.Number("9007199254740993"), l[0].Default)
	assert.Equal(t, []any{1.0, json.Number("9007199254740993")}, l[0].AllowedValues)
}
