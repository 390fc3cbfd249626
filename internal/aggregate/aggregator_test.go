package aggregate

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automation-stack/ctrace/internal/grammar"
)

func seconds(v float64) *float64 { return &v }

func TestRecord_Success(t *testing.T) {
	a := New()
	a.Record(&grammar.Event{Name: "open", ExitCode: "3", Elapsed: seconds(0.000123)})

	s, ok := a.Lookup("open")
	require.True(t, ok)
	assert.Equal(t, 1, s.Calls)
	assert.Equal(t, []float64{0.000123}, s.Timings)
	assert.Empty(t, s.Errors)

	totals := a.Totals()
	assert.Equal(t, 1, totals.Calls)
	assert.InDelta(t, 0.000123, totals.Elapsed, 1e-12)
	assert.Zero(t, totals.Errors)
}

func TestRecord_Failure(t *testing.T) {
	a := New()
	code := "ENOENT (No such file or directory)"
	a.Record(&grammar.Event{Name: "open", ExitCode: "-1", ErrorCode: code, Elapsed: seconds(0.00005), Failed: true})

	s, _ := a.Lookup("open")
	assert.Equal(t, 1, s.Errors[code])
	assert.Equal(t, 1, a.Totals().Errors)
	assert.Equal(t, []ErrorCount{{Code: code, Count: 1}}, s.ErrorCounts())
}

func TestRecord_UnfinishedAndResumedCountTwice(t *testing.T) {
	a := New()
	a.Record(&grammar.Event{Name: "read", Kind: grammar.Unfinished})
	a.Record(&grammar.Event{Name: "read", Kind: grammar.Resumed, ExitCode: "10", Elapsed: seconds(0.000199)})

	s, _ := a.Lookup("read")
	assert.Equal(t, 2, s.Calls)
	assert.Len(t, s.Timings, 1, "only the resumed half carries a timing")
}

func TestRecord_IgnoresNameless(t *testing.T) {
	a := New()
	a.Record(nil)
	a.Record(&grammar.Event{ExitCode: "0"})

	assert.Empty(t, a.Stats())
	assert.Zero(t, a.Totals().Calls)
}

func TestRecord_FirstSeenOrder(t *testing.T) {
	a := New()
	for _, name := range []string{"read", "open", "read", "close", "open"} {
		a.Record(&grammar.Event{Name: name})
	}

	var names []string
	for _, s := range a.Stats() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"read", "open", "close"}, names)
}

func TestRecord_ErrorOrder(t *testing.T) {
	a := New()
	for _, code := range []string{"EACCES", "ENOENT", "EACCES"} {
		a.Record(&grammar.Event{Name: "open", ErrorCode: code, Failed: true})
	}

	s, _ := a.Lookup("open")
	assert.Equal(t, []ErrorCount{{"EACCES", 2}, {"ENOENT", 1}}, s.ErrorCounts())
}

func TestRecord_Additivity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	names := []string{"read", "write", "open", "close", "mmap", "futex"}
	codes := []string{"ENOENT", "EAGAIN", "EINTR"}

	a := New()
	untimed := map[string]int{}
	for i := 0; i < 1000; i++ {
		ev := &grammar.Event{Name: names[rng.Intn(len(names))]}
		if rng.Intn(4) > 0 {
			ev.Elapsed = seconds(rng.Float64() / 1000)
		} else {
			untimed[ev.Name]++
		}
		if rng.Intn(5) == 0 {
			ev.Failed = true
			ev.ErrorCode = codes[rng.Intn(len(codes))]
		}
		a.Record(ev)
	}

	var calls, errs int
	var elapsed float64
	for _, s := range a.Stats() {
		calls += s.Calls
		elapsed += s.Elapsed()
		for _, n := range s.Errors {
			errs += n
		}
		assert.Equal(t, s.Calls, len(s.Timings)+untimed[s.Name], fmt.Sprintf("%s timings", s.Name))
	}

	totals := a.Totals()
	assert.Equal(t, 1000, totals.Calls)
	assert.Equal(t, totals.Calls, calls)
	assert.Equal(t, totals.Errors, errs)
	assert.InDelta(t, totals.Elapsed, elapsed, 1e-9)
}
