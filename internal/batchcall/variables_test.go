package batchcall

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDynamicVariables_OnlyAllowListedKeys(t *testing.T) {
	inputs := []map[string]any{
		{"nombre_paciente": "Ana", "foo": 1, "bar": nil},
		{"producto": "X", "Producto": "Y", "stock teorico": 3},
		{"a": "b"},
		{},
	}
	for _, in := range inputs {
		out := NormalizeDynamicVariables(in)
		for k := range out {
			assert.Contains(t, AllowedVariables, k)
		}
	}
}

func TestNormalizeDynamicVariables_Coercion(t *testing.T) {
	out := NormalizeDynamicVariables(map[string]any{"stock_teorico": "150"})
	assert.Equal(t, DynamicVariables{"stock_teorico": float64(150)}, out)

	out = NormalizeDynamicVariables(map[string]any{
		"stock_teorico":   json.Number("42"),
		"nombre_paciente": nil,
		"producto":        12.5,
		"fecha_envio":     true,
	})
	assert.Equal(t, DynamicVariables{
		"stock_teorico":   float64(42),
		"nombre_paciente": "",
		"producto":        "12.5",
		"fecha_envio":     "true",
	}, out)

	out = NormalizeDynamicVariables(map[string]any{"stock_teorico": "150 unidades"})
	assert.Contains(t, out, "stock_teorico")
	assert.Nil(t, out["stock_teorico"])
}

func TestNormalizeDynamicVariables_NonObjectInput(t *testing.T) {
	assert.Equal(t, DynamicVariables{}, NormalizeDynamicVariables(nil))
	assert.Equal(t, DynamicVariables{}, NormalizeDynamicVariables(map[string]any{}))
	assert.Equal(t, DynamicVariables{}, NormalizeDynamicVariables("text"))
	assert.Equal(t, DynamicVariables{}, NormalizeDynamicVariables([]any{"nombre_paciente"}))

	var nilMap map[string]any
	assert.Equal(t, DynamicVariables{}, NormalizeDynamicVariables(nilMap))
}

func TestDroppedVariables(t *testing.T) {
	dropped := DroppedVariables(map[string]any{
		"nombre_paciente":  "Juan",
		"unexpected_field": "drop me",
		"another":          1,
	})
	assert.Equal(t, []string{"another", "unexpected_field"}, dropped)
	assert.Nil(t, DroppedVariables(nil))
}
