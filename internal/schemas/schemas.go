// Package schemas validates model output against JSON Schemas before it is
// decoded into the record types. Every schema is compiled once at start-up.
package schemas

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Lllllllleong/obraflow/internal/extract"
)

// ErrSchemaViolation is returned when the extracted object does not match the
// stage's schema after sanitizing.
var ErrSchemaViolation = errors.New("response does not match schema")

// Schema is a compiled output schema plus the lenient fixes applied before
// validation.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
	sanitize func(map[string]any)
}

var (
	Budget                = mustCompile("budget.json", budgetSchema, sanitizeBudget)
	DiffTecnico           = mustCompile("diff-tecnico.json", diffSchema, sanitizeDiff)
	CubicacionDiferencial = mustCompile("cubicacion-diferencial.json", cubicacionSchema, sanitizeCubicacion)
	ArbolImpactos         = mustCompile("arbol-impactos.json", impactSchema, sanitizeImpactos)
)

func mustCompile(name string, schemaMap map[string]any, sanitize func(map[string]any)) *Schema {
	s, err := Compile(name, schemaMap, sanitize)
	if err != nil {
		panic(err)
	}
	return s
}

// Compile builds a Schema from a schema document expressed as a map.
func Compile(name string, schemaMap map[string]any, sanitize func(map[string]any)) (*Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, compiled: compiled, sanitize: sanitize}, nil
}

// Name returns the schema resource name.
func (s *Schema) Name() string { return s.name }

// Validate sanitizes obj in place and validates it.
func (s *Schema) Validate(obj map[string]any) error {
	if s.sanitize != nil {
		s.sanitize(obj)
	}
	if err := s.compiled.Validate(obj); err != nil {
		return fmt.Errorf("%w %s: %v", ErrSchemaViolation, s.name, err)
	}
	return nil
}

// Parse extracts the JSON object from raw model output, validates it and
// decodes it into dst. Extraction failures wrap extract.ErrMalformedResponse.
func (s *Schema) Parse(raw string, dst any) error {
	obj, err := extract.Object(raw)
	if err != nil {
		return err
	}
	if err := s.Validate(obj); err != nil {
		return err
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("re-encode %s: %w", s.name, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("%w %s: %v", ErrSchemaViolation, s.name, err)
	}
	return nil
}

var (
	nullableString = map[string]any{"type": []any{"string", "null"}}
	nullableNumber = map[string]any{"type": []any{"number", "null"}}
	stringList     = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
)

var budgetSchema = map[string]any{
	"type":     "object",
	"required": []any{"chapters", "rows"},
	"properties": map[string]any{
		"chapters": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"nombre"},
				"properties": map[string]any{
					"nombre": map[string]any{"type": "string"},
					"codigo": nullableString,
					"total":  nullableNumber,
				},
			},
		},
		"rows": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"id", "type", "chapterIndex"},
				"properties": map[string]any{
					"id":             map[string]any{"type": "string", "minLength": 1},
					"parentId":       nullableString,
					"type":           map[string]any{"enum": []any{"chapter", "subchapter", "item"}},
					"chapterIndex":   map[string]any{"type": "integer", "minimum": 0},
					"codigo":         nullableString,
					"descripcion":    nullableString,
					"unidad":         nullableString,
					"cantidad":       nullableNumber,
					"precioUnitario": nullableNumber,
					"total":          nullableNumber,
				},
			},
		},
	},
}

var diffSchema = map[string]any{
	"type":     "object",
	"required": []any{"elementos", "resumen"},
	"properties": map[string]any{
		"elementos": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"tipo", "descripcion"},
				"properties": map[string]any{
					"tipo":        map[string]any{"enum": []any{"agregado", "eliminado", "modificado"}},
					"descripcion": map[string]any{"type": "string"},
					"ubicacion":   nullableString,
				},
			},
		},
		"resumen": map[string]any{"type": "string"},
	},
}

var cubicacionSchema = map[string]any{
	"type":     "object",
	"required": []any{"partidas", "resumen"},
	"properties": map[string]any{
		"partidas": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"partida", "unidad", "diferencia"},
				"properties": map[string]any{
					"partida":       map[string]any{"type": "string"},
					"unidad":        map[string]any{"type": "string"},
					"cantidadA":     nullableNumber,
					"cantidadB":     nullableNumber,
					"diferencia":    map[string]any{"type": "number"},
					"observaciones": nullableString,
				},
			},
		},
		"resumen": map[string]any{"type": "string"},
	},
}

var impactSchema = map[string]any{
	"type":     "object",
	"required": []any{"impactos"},
	"properties": map[string]any{
		"impactos": map[string]any{
			"type":  "array",
			"items": map[string]any{"$ref": "#/definitions/impacto"},
		},
	},
	"definitions": map[string]any{
		"impacto": map[string]any{
			"type":     "object",
			"required": []any{"especialidad", "impactoDirecto", "severidad", "consecuencias", "recomendaciones", "subImpactos"},
			"properties": map[string]any{
				"especialidad":    map[string]any{"type": "string"},
				"impactoDirecto":  map[string]any{"type": "string"},
				"severidad":       map[string]any{"enum": []any{"baja", "media", "alta"}},
				"riesgo":          nullableString,
				"consecuencias":   stringList,
				"recomendaciones": stringList,
				"subImpactos": map[string]any{
					"type":  "array",
					"items": map[string]any{"$ref": "#/definitions/impacto"},
				},
			},
		},
	},
}
