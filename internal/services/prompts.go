package services

import (
	"fmt"
	"strings"
)

// --- Budget extraction prompt ---
const budgetPrompt = `Recibirás un presupuesto de obra de construcción en PDF.

Extrae su estructura completa y responde ÚNICAMENTE con un objeto JSON con esta forma:
{
  "chapters": [{"nombre": string, "codigo": string|null, "total": number|null}],
  "rows": [{
    "id": string,
    "parentId": string|null,
    "type": "chapter"|"subchapter"|"item",
    "chapterIndex": number,
    "codigo": string|null,
    "descripcion": string|null,
    "unidad": string|null,
    "cantidad": number|null,
    "precioUnitario": number|null,
    "total": number|null
  }]
}

Reglas:
1. Cada capítulo, subcapítulo y partida es una fila en "rows", en el orden del documento.
2. "parentId" es el "id" de la fila que la contiene; los capítulos tienen "parentId": null.
3. "chapterIndex" es la posición (desde 0) del capítulo en "chapters" al que pertenece la fila.
4. Los montos y cantidades son números sin separadores de miles ni símbolo de moneda.
5. Si un valor no aparece en el documento usa null. Nunca inventes valores.`

// --- Plan comparison prompts ---
const diffPrompt = `Recibirás dos planos técnicos de una misma obra: el plano A (versión anterior) y el plano B (versión nueva).

Identifica todas las diferencias técnicas entre ambos y responde ÚNICAMENTE con un objeto JSON con esta forma:
{
  "elementos": [{"tipo": "agregado"|"eliminado"|"modificado", "descripcion": string, "ubicacion": string|null}],
  "resumen": string
}

"ubicacion" indica ejes, niveles o recintos cuando el plano los muestra; de lo contrario null.`

const quantitiesPrompt = `Recibirás dos planos técnicos de una misma obra: el plano A (versión anterior) y el plano B (versión nueva).

Estima la variación de cantidades de obra (cubicación) entre ambos y responde ÚNICAMENTE con un objeto JSON con esta forma:
{
  "partidas": [{
    "partida": string,
    "unidad": string,
    "cantidadA": number|null,
    "cantidadB": number|null,
    "diferencia": number,
    "observaciones": string|null
  }],
  "resumen": string
}

"diferencia" es cantidadB menos cantidadA. Usa null cuando la partida no existe en uno de los planos.`

const impactPromptHeader = `A partir del siguiente resumen de diferencias y variación de cantidades entre dos versiones de un plano, construye un árbol de impactos por especialidad (estructura, arquitectura, instalaciones eléctricas, sanitarias, climatización, costos, plazos, etc.).

Responde ÚNICAMENTE con un objeto JSON con esta forma:
{
  "impactos": [{
    "especialidad": string,
    "impactoDirecto": string,
    "severidad": "baja"|"media"|"alta",
    "riesgo": string|null,
    "consecuencias": [string],
    "recomendaciones": [string],
    "subImpactos": [ ...misma forma, recursiva... ]
  }]
}

`

func budgetPromptFor(fileName, notas string) string {
	var b strings.Builder
	b.WriteString(budgetPrompt)
	if fileName != "" {
		fmt.Fprintf(&b, "\n\nNombre del archivo: %s", fileName)
	}
	if notas = strings.TrimSpace(notas); notas != "" {
		fmt.Fprintf(&b, "\n\nNotas del usuario:\n%s", notas)
	}
	return b.String()
}

func impactPromptFor(summary string) string {
	return impactPromptHeader + summary
}
