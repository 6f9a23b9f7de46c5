package schemas

import (
	"math"
	"strconv"
	"strings"
)

// MaxImpactDepth bounds the nesting of subImpactos kept from a response.
const MaxImpactDepth = 6

var rowTypeAliases = map[string]string{
	"capitulo":    "chapter",
	"capítulo":    "chapter",
	"subcapitulo": "subchapter",
	"subcapítulo": "subchapter",
	"partida":     "item",
}

func sanitizeBudget(obj map[string]any) {
	for _, ch := range objects(obj["chapters"]) {
		if n, ok := ch["nombre"].(float64); ok {
			ch["nombre"] = formatNumber(n)
		}
		ch["codigo"] = toNullableString(ch["codigo"])
		ch["total"] = toNullableNumber(ch["total"])
	}
	for _, row := range objects(obj["rows"]) {
		if id := toNullableString(row["id"]); id != nil {
			row["id"] = id
		}
		row["parentId"] = toNullableString(row["parentId"])
		if t, ok := row["type"].(string); ok {
			t = strings.ToLower(strings.TrimSpace(t))
			if alias, ok := rowTypeAliases[t]; ok {
				t = alias
			}
			row["type"] = t
		}
		if idx := toNullableNumber(row["chapterIndex"]); idx != nil {
			row["chapterIndex"] = idx
		}
		for _, key := range []string{"codigo", "descripcion", "unidad"} {
			row[key] = toNullableString(row[key])
		}
		for _, key := range []string{"cantidad", "precioUnitario", "total"} {
			row[key] = toNullableNumber(row[key])
		}
	}
}

func sanitizeDiff(obj map[string]any) {
	for _, el := range objects(obj["elementos"]) {
		if t, ok := el["tipo"].(string); ok {
			el["tipo"] = strings.ToLower(strings.TrimSpace(t))
		}
		el["ubicacion"] = toNullableString(el["ubicacion"])
	}
}

func sanitizeCubicacion(obj map[string]any) {
	for _, p := range objects(obj["partidas"]) {
		a := toNullableNumber(p["cantidadA"])
		b := toNullableNumber(p["cantidadB"])
		p["cantidadA"], p["cantidadB"] = a, b
		p["observaciones"] = toNullableString(p["observaciones"])
		if p["unidad"] == nil {
			p["unidad"] = ""
		}
		if d := toNullableNumber(p["diferencia"]); d != nil {
			p["diferencia"] = d
			continue
		}
		// A partida missing from one plan counts as zero on that side.
		p["diferencia"] = orZero(b) - orZero(a)
	}
}

func sanitizeImpactos(obj map[string]any) {
	for _, imp := range objects(obj["impactos"]) {
		sanitizeImpacto(imp, 1)
	}
}

func sanitizeImpacto(imp map[string]any, depth int) {
	if s, ok := imp["severidad"].(string); ok {
		imp["severidad"] = strings.ToLower(strings.TrimSpace(s))
	}
	imp["riesgo"] = toNullableString(imp["riesgo"])
	for _, key := range []string{"consecuencias", "recomendaciones"} {
		if imp[key] == nil {
			imp[key] = []any{}
		}
	}
	if imp["subImpactos"] == nil || depth >= MaxImpactDepth {
		imp["subImpactos"] = []any{}
		return
	}
	for _, sub := range objects(imp["subImpactos"]) {
		sanitizeImpacto(sub, depth+1)
	}
}

// objects returns the object elements of an array value. Non-object elements
// are left in place for the schema to reject.
func objects(v any) []map[string]any {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(arr))
	for _, el := range arr {
		if m, ok := el.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func toNullableString(v any) any {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return t
	case float64:
		return formatNumber(t)
	}
	return v
}

func toNullableNumber(v any) any {
	switch t := v.(type) {
	case string:
		if n, ok := ParseNumber(t); ok {
			return n
		}
		return nil
	case float64:
		return t
	}
	return v
}

func orZero(v any) float64 {
	if n, ok := v.(float64); ok {
		return n
	}
	return 0
}

func formatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// ParseNumber reads a number written the way Chilean budgets write them:
// "." groups thousands and "," marks decimals ("1.234,56"). Currency signs,
// percent signs and spaces are ignored. A lone "." is a decimal point unless
// it follows a non-zero integer part and exactly three digits follow it.
func ParseNumber(s string) (float64, bool) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '$', '%', ' ', '\u00a0':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}

	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case commas == 1:
		s = strings.Replace(s, ",", ".", 1)
	case commas > 1:
		s = strings.ReplaceAll(s, ",", "")
	case dots > 1:
		s = strings.ReplaceAll(s, ".", "")
	case dots == 1:
		i := strings.Index(s, ".")
		whole := strings.TrimPrefix(s[:i], "-")
		if len(s[i+1:]) == 3 && whole != "" && whole != "0" {
			s = strings.Replace(s, ".", "", 1)
		}
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
