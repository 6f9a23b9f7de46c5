package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// errorColumnWidth caps the error column so long upstream messages wrap.
const errorColumnWidth = 60

var jobHeaders = table.Row{"ID", "STATUS", "CREATED", "FINISHED", "ERROR"}

// renderJobs draws one row per job summary.
func renderJobs(rows []jobSummary) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(jobHeaders)

	for _, r := range rows {
		tw.AppendRow(table.Row{r.ID, r.Status, formatTime(r.CreatedAt), formatTime(r.ProcessedAt), r.Error})
	}

	configs := make([]table.ColumnConfig, 0, len(jobHeaders))
	for i := range jobHeaders {
		cfg := table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if i == len(jobHeaders)-1 {
			cfg.WidthMax = errorColumnWidth
		}
		configs = append(configs, cfg)
	}
	tw.SetColumnConfigs(configs)
	tw.SetCaption("%d job(s)", len(rows))

	return tw.Render()
}
