package services

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"job-signals/models"
	"job-signals/utils"
)

const topMovers = 5

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AF5FD7")).Bold(true)
	sectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#D7AF00")).Bold(true)
	valueStyle   = lipgloss.NewStyle().Bold(true)
	goodStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00D787")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF005F")).Bold(true)
)

// SummaryService builds and prints the end-of-run report.
type SummaryService struct {
	logger *utils.Logger
}

func NewSummaryService(logger *utils.Logger) *SummaryService {
	return &SummaryService{logger: logger}
}

// Generate folds per-entity results into a report. Totals are summed from
// results so the report always agrees with the per-entity lines.
func (s *SummaryService) Generate(results []models.EntityResult, started, finished time.Time) *models.RunReport {
	r := &models.RunReport{Started: started, Finished: finished}
	for _, res := range results {
		r.Totals.Add(res.Totals)
	}

	movers := make([]models.EntityResult, 0, len(results))
	for _, res := range results {
		if signalCount(res.Totals) > 0 {
			movers = append(movers, res)
		}
	}
	sort.SliceStable(movers, func(i, j int) bool {
		return signalCount(movers[i].Totals) > signalCount(movers[j].Totals)
	})
	if len(movers) > topMovers {
		movers = movers[:topMovers]
	}
	r.TopMovers = movers

	s.logger.Debug("[summary] %d entities, %d with signals", len(results), len(movers))
	return r
}

// Print renders r to w.
func (s *SummaryService) Print(w io.Writer, r *models.RunReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	heading := "JOB SIGNALS RUN SUMMARY"
	if r.DryRun {
		heading += " (dry run)"
	}
	fmt.Fprintf(w, "\n%s\n", titleStyle.Render(sep))
	fmt.Fprintf(w, "  %s\n", titleStyle.Render(heading))
	fmt.Fprintf(w, "%s\n\n", titleStyle.Render(sep))

	t := r.Totals
	fmt.Fprintf(w, "  %s\n  %s\n", sectionStyle.Render("Overview"), thin)
	if r.Source != "" || r.Backend != "" {
		fmt.Fprintf(w, "  Source / backend       : %s / %s\n", r.Source, r.Backend)
	}
	if !r.Started.IsZero() && !r.Finished.IsZero() {
		fmt.Fprintf(w, "  Duration               : %s\n", r.Finished.Sub(r.Started).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "  Entities processed     : %s\n", valueStyle.Render(fmt.Sprint(t.Entities)))
	fmt.Fprintf(w, "  Jobs fetched           : %s\n", valueStyle.Render(fmt.Sprint(t.JobsFetched)))
	fmt.Fprintf(w, "  Jobs upserted          : %s\n", valueStyle.Render(fmt.Sprint(t.JobsUpserted)))
	fmt.Fprintf(w, "  NEW_JOB signals        : %s\n", goodStyle.Render(fmt.Sprint(t.NewSignals)))
	fmt.Fprintf(w, "  JOB_REMOVED signals    : %s\n", goodStyle.Render(fmt.Sprint(t.RemovedSignals)))
	if t.ExpiredConfirmed > 0 {
		fmt.Fprintf(w, "  Confirmed by expiry    : %s\n", valueStyle.Render(fmt.Sprint(t.ExpiredConfirmed)))
	}
	fmt.Fprintln(w)

	problems := []struct {
		label string
		n     int
	}{
		{"Removals held back     ", t.RemovalsDeferred},
		{"Inactive chunks failed ", t.InactiveChunksFailed},
		{"Signal batches dropped ", t.SignalBatchesDropped},
		{"Expired feed failures  ", t.ExpiredFetchFailed},
	}
	fmt.Fprintf(w, "  %s\n  %s\n", sectionStyle.Render("Warnings"), thin)
	clean := true
	for _, p := range problems {
		if p.n > 0 {
			clean = false
			fmt.Fprintf(w, "  %s: %s\n", p.label, warnStyle.Render(fmt.Sprint(p.n)))
		}
	}
	if len(r.DroppedColumns) > 0 {
		clean = false
		fmt.Fprintf(w, "  Pruned signal columns  : %s\n", warnStyle.Render(strings.Join(r.DroppedColumns, ", ")))
	}
	if clean {
		fmt.Fprintf(w, "  none\n")
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  %s\n  %s\n", sectionStyle.Render("Most Active Entities"), thin)
	if len(r.TopMovers) == 0 {
		fmt.Fprintf(w, "  No changes detected\n")
	}
	for i, m := range r.TopMovers {
		bar := strings.Repeat("█", min(signalCount(m.Totals), 30))
		fmt.Fprintf(w, "  %d. %-28s %s +%d/-%d\n",
			i+1, truncate(m.Name, 28), bar, m.Totals.NewSignals, m.Totals.RemovedSignals)
	}

	if r.Failure != "" {
		fmt.Fprintf(w, "\n  %s %s\n", warnStyle.Render("Run stopped:"), r.Failure)
	}
	fmt.Fprintf(w, "\n%s\n\n", titleStyle.Render(sep))
}

func signalCount(t models.RunTotals) int {
	return t.NewSignals + t.RemovedSignals
}

// truncate shortens s to limit runes, ending in "..." when cut.
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
