package aggregate

import "github.com/automation-stack/ctrace/internal/grammar"

// SyscallStats holds the running statistics of one syscall name.
type SyscallStats struct {
	Name    string
	Calls   int
	Errors  map[string]int
	Timings []float64

	errorOrder []string
}

// Elapsed returns the sum of the recorded timings.
func (s *SyscallStats) Elapsed() float64 {
	var total float64
	for _, t := range s.Timings {
		total += t
	}
	return total
}

// ErrorCount is one distinct error observed on a syscall.
type ErrorCount struct {
	Code  string
	Count int
}

// ErrorCounts returns the observed errors in first-seen order.
func (s *SyscallStats) ErrorCounts() []ErrorCount {
	counts := make([]ErrorCount, 0, len(s.errorOrder))
	for _, code := range s.errorOrder {
		counts = append(counts, ErrorCount{Code: code, Count: s.Errors[code]})
	}
	return counts
}

// Totals are the run-wide counters.
type Totals struct {
	Elapsed float64
	Calls   int
	Errors  int
}

// Aggregator owns the statistics of one trace session. It is not safe for
// concurrent use; the parsing chain of one stream is its only writer.
type Aggregator struct {
	stats  map[string]*SyscallStats
	order  []string
	totals Totals
}

// New creates an empty aggregator.
func New() *Aggregator {
	return &Aggregator{
		stats: make(map[string]*SyscallStats),
	}
}

// Record folds one event into the statistics. Events without a name are ignored.
func (a *Aggregator) Record(ev *grammar.Event) {
	if ev == nil || ev.Name == "" {
		return
	}

	s := a.ensure(ev.Name)
	s.Calls++
	a.totals.Calls++

	if ev.Elapsed != nil {
		s.Timings = append(s.Timings, *ev.Elapsed)
		a.totals.Elapsed += *ev.Elapsed
	}

	if ev.Failed {
		if _, seen := s.Errors[ev.ErrorCode]; !seen {
			s.errorOrder = append(s.errorOrder, ev.ErrorCode)
		}
		s.Errors[ev.ErrorCode]++
		a.totals.Errors++
	}
}

// ensure returns the stats for name, creating them on first observation.
func (a *Aggregator) ensure(name string) *SyscallStats {
	if s, ok := a.stats[name]; ok {
		return s
	}

	s := &SyscallStats{
		Name:   name,
		Errors: make(map[string]int),
	}
	a.stats[name] = s
	a.order = append(a.order, name)

	return s
}

// Totals returns the run-wide counters.
func (a *Aggregator) Totals() Totals {
	return a.totals
}

// Stats returns the per-syscall statistics in first-seen order.
func (a *Aggregator) Stats() []*SyscallStats {
	out := make([]*SyscallStats, 0, len(a.order))
	for _, name := range a.order {
		out = append(out, a.stats[name])
	}
	return out
}

// Lookup returns the statistics recorded for name.
func (a *Aggregator) Lookup(name string) (*SyscallStats, bool) {
	s, ok := a.stats[name]
	return s, ok
}
