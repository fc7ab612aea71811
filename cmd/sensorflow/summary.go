package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/sensorflow/sensorflow/pkg/ingest"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(14)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	skipStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

// printRunSummary renders the run outcome after the batches finish.
func printRunSummary(runID string, candidates int, result *ingest.RunResult, showFiles bool) {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Ingestion Summary"))
	b.WriteString("\n")
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}
	row("Run", runID)
	row("Candidates", fmt.Sprintf("%d", candidates))
	row("Batches", fmt.Sprintf("%d", result.Batches))
	row("Loaded", okStyle.Render(fmt.Sprintf("%d", result.Loaded)))
	row("Skipped", skipStyle.Render(fmt.Sprintf("%d", result.Skipped)))
	row("Failed", failStyle.Render(fmt.Sprintf("%d", result.Failed)))
	row("Records", fmt.Sprintf("%d", result.TotalRecords))
	row("Duration", result.Duration.Round(time.Millisecond).String())

	fmt.Println(borderStyle.Render(strings.TrimRight(b.String(), "\n")))

	if !showFiles && result.Failed == 0 {
		return
	}

	for _, fr := range result.Files {
		switch fr.Status {
		case ingest.StatusLoaded:
			if showFiles {
				fmt.Printf("  %s %s (%d records)\n",
					okStyle.Render("✓"), fr.File.Identity(), fr.Records)
			}
		case ingest.StatusSkipped:
			if showFiles {
				fmt.Printf("  %s %s (%s)\n",
					skipStyle.Render("-"), fr.File.Identity(), fr.Reason)
			}
		case ingest.StatusFailed:
			fmt.Printf("  %s %s (%s: %v)\n",
				failStyle.Render("✗"), fr.File.Identity(), fr.Kind, fr.Err)
		}
	}
}
