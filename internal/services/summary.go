package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Lllllllleong/obraflow/internal/models"
)

// MaxSummaryChars bounds the text passed from the analysis to the impact prompt.
const MaxSummaryChars = 8000

const maxResumenChars = 1200

// Summarize renders the analysis as plain text of at most limit runes. Each
// section may use half of the budget plus whatever the other leaves unused.
// Lines that do not fit are counted in a trailing note.
func Summarize(diff *models.DiffTecnico, cub *models.CubicacionDiferencial, limit int) string {
	const sep = "\n\n"
	avail := limit - utf8.RuneCountInString(sep)
	if avail <= 0 {
		return ""
	}

	diffSection := summarySection{title: "DIFERENCIAS TÉCNICAS", resumen: diff.Resumen, noun: "elementos"}
	for _, el := range diff.Elementos {
		line := fmt.Sprintf("- [%s] %s", el.Tipo, el.Descripcion)
		if el.Ubicacion != nil {
			line += fmt.Sprintf(" (ubicación: %s)", *el.Ubicacion)
		}
		diffSection.items = append(diffSection.items, line)
	}

	cubSection := summarySection{title: "VARIACIÓN DE CANTIDADES", resumen: cub.Resumen, noun: "partidas"}
	for _, p := range cub.Partidas {
		cubSection.items = append(cubSection.items, fmt.Sprintf("- %s: %s → %s %s (diferencia %s)",
			p.Partida, quantity(p.CantidadA), quantity(p.CantidadB), p.Unidad, formatFloat(p.Diferencia)))
	}

	cubWanted := utf8.RuneCountInString(cubSection.render(avail))
	diffText := diffSection.render(max(avail/2, avail-cubWanted))
	cubText := cubSection.render(avail - utf8.RuneCountInString(diffText))
	return diffText + sep + cubText
}

type summarySection struct {
	title   string
	resumen string
	noun    string
	items   []string
}

// render writes the section within limit runes. Room for the overflow note
// is held back so a truncated section always says how much it dropped.
func (s summarySection) render(limit int) string {
	w := &boundedWriter{limit: limit}
	reserve := 0
	if len(s.items) > 0 {
		reserve = utf8.RuneCountInString(overflowNote(len(s.items), s.noun)) + 1
	}

	w.line(s.title, reserve)
	w.line("Resumen: "+truncate(s.resumen, min(maxResumenChars, limit/3)), reserve)
	for i, item := range s.items {
		if !w.line(item, reserve) {
			w.line(overflowNote(len(s.items)-i, s.noun), 0)
			break
		}
	}
	return w.String()
}

func overflowNote(n int, noun string) string {
	return fmt.Sprintf("... y %d %s más", n, noun)
}

type boundedWriter struct {
	b     strings.Builder
	used  int
	limit int
}

// line appends s and a newline if they fit while keeping reserve runes free.
func (w *boundedWriter) line(s string, reserve int) bool {
	n := utf8.RuneCountInString(s) + 1
	if w.used+n > w.limit-reserve {
		return false
	}
	w.b.WriteString(s)
	w.b.WriteByte('\n')
	w.used += n
	return true
}

func (w *boundedWriter) String() string {
	return strings.TrimRight(w.b.String(), "\n")
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "…"
}

func quantity(v *float64) string {
	if v == nil {
		return "s/i"
	}
	return formatFloat(*v)
}

func formatFloat(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", f), "0"), ".")
}
