package batchcall

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Variable names the agent script understands.
const (
	VarNombrePaciente = "nombre_paciente"
	VarStockTeorico   = "stock_teorico"
	VarFechaEnvio     = "fecha_envio"
	VarProducto       = "producto"
)

// AllowedVariables is the fixed allow-list forwarded to the vendor, in order.
var AllowedVariables = []string{VarNombrePaciente, VarStockTeorico, VarFechaEnvio, VarProducto}

// NormalizeDynamicVariables keeps only allow-listed names and coerces their
// values: stock_teorico to a number, the rest to strings. Anything that is not
// a JSON object yields an empty mapping.
func NormalizeDynamicVariables(raw any) DynamicVariables {
	in, ok := asObject(raw)
	out := DynamicVariables{}
	if !ok {
		return out
	}
	for _, name := range AllowedVariables {
		v, present := in[name]
		if !present {
			continue
		}
		if name == VarStockTeorico {
			out[name] = toNumber(v)
			continue
		}
		out[name] = toString(v)
	}
	return out
}

// DroppedVariables lists the caller-supplied names NormalizeDynamicVariables
// discards, sorted.
func DroppedVariables(raw any) []string {
	in, ok := asObject(raw)
	if !ok {
		return nil
	}
	var dropped []string
	for k := range in {
		if !isAllowed(k) {
			dropped = append(dropped, k)
		}
	}
	sort.Strings(dropped)
	return dropped
}

func isAllowed(name string) bool {
	for _, a := range AllowedVariables {
		if a == name {
			return true
		}
	}
	return false
}

func asObject(raw any) (map[string]any, bool) {
	switch m := raw.(type) {
	case map[string]any:
		return m, m != nil
	case DynamicVariables:
		return m, m != nil
	case map[string]string:
		if m == nil {
			return nil, false
		}
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, true
	default:
		return nil, false
	}
}

// toNumber returns nil (JSON null) for values that do not parse as a number.
func toNumber(v any) any {
	switch n := v.(type) {
	case nil:
		return float64(0)
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil
		}
		return f
	case bool:
		if n {
			return float64(1)
		}
		return float64(0)
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return float64(0)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	default:
		return nil
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprint(s)
	}
}
