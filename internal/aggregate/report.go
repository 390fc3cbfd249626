package aggregate

import (
	"sort"

	"github.com/automation-stack/ctrace/internal/grammar"
	"github.com/automation-stack/ctrace/internal/syscalls"
)

const displayNameWidth = 10

// Row is one syscall line of the report.
type Row struct {
	Name        string
	DisplayName string
	Percent     float64
	Elapsed     float64
	Calls       int
	Description string
	Errors      []ErrorCount
}

// Report is the end-of-run summary.
type Report struct {
	Totals Totals
	Rows   []Row
}

// Build turns the aggregated state into a report. It reports false when no
// calls were observed. A run without any measured time yields no rows.
func (a *Aggregator) Build(resolver grammar.Resolver) (Report, bool) {
	report := Report{Totals: a.totals}
	if a.totals.Calls == 0 {
		return report, false
	}
	if a.totals.Elapsed == 0 {
		return report, true
	}

	for _, s := range a.Stats() {
		elapsed := s.Elapsed()
		report.Rows = append(report.Rows, Row{
			Name:        s.Name,
			DisplayName: DisplayName(s.Name),
			Percent:     elapsed * 100 / a.totals.Elapsed,
			Elapsed:     elapsed,
			Calls:       s.Calls,
			Description: describe(resolver, s.Name),
			Errors:      s.ErrorCounts(),
		})
	}

	sort.SliceStable(report.Rows, func(i, j int) bool {
		return report.Rows[i].Percent > report.Rows[j].Percent
	})

	return report, true
}

// DisplayName truncates long syscall names for the report table.
func DisplayName(name string) string {
	if len(name) <= displayNameWidth {
		return name
	}
	return name[:displayNameWidth] + "..."
}

func describe(resolver grammar.Resolver, name string) string {
	if resolver == nil {
		return syscalls.Undocumented
	}
	d, ok := resolver.Resolve(name)
	if !ok || d.Description == "" {
		return syscalls.Undocumented
	}
	return d.Description
}
