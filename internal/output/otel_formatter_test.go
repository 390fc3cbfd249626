package output

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/automation-stack/ctrace/internal/attributes"
	"github.com/automation-stack/ctrace/internal/config"
	"github.com/automation-stack/ctrace/internal/grammar"
	"github.com/automation-stack/ctrace/internal/procmeta"
	"github.com/automation-stack/ctrace/internal/syscalls"
	"github.com/automation-stack/ctrace/internal/timesync"
)

var traceStart = time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

func newTestFormatter(t *testing.T, evaluator *attributes.Evaluator) (*OTELFormatter, *tracetest.SpanRecorder) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := NewOTELFormatter(tp.Tracer("test"), timesync.NewConverter(traceStart), evaluator, syscalls.Linux, zap.NewNop())
	f.now = func() time.Time { return traceStart }
	return f, recorder
}

func endedByName(recorder *tracetest.SpanRecorder) map[string][]sdktrace.ReadOnlySpan {
	spans := make(map[string][]sdktrace.ReadOnlySpan)
	for _, s := range recorder.Ended() {
		spans[s.Name()] = append(spans[s.Name()], s)
	}
	return spans
}

func attrMap(kvs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value
	}
	return m
}

func TestOTELFormatter_SyscallSpans(t *testing.T) {
	f, recorder := newTestFormatter(t, nil)
	f.StartRun(context.Background(), RunInfo{Target: "ls"})

	require.NoError(t, f.HandleSyscall(readEvent()))
	require.NoError(t, f.HandleSyscall(&grammar.Event{
		Timestamp: "14:00:01.000000",
		Name:      "open",
		ExitCode:  "-1",
		ErrorCode: "ENOENT (No such file or directory)",
		Elapsed:   elapsed(0.5),
		Failed:    true,
	}))
	require.NoError(t, f.HandleReport(sampleReport(), []procmeta.Process{{Calls: 2, Errors: 1}}))

	spans := endedByName(recorder)
	require.Len(t, spans["ctrace.run"], 1)
	require.Len(t, spans["read"], 1)
	require.Len(t, spans["open"], 1)

	run := spans["ctrace.run"][0]
	read := spans["read"][0]
	open := spans["open"][0]

	assert.Equal(t, run.SpanContext().SpanID(), read.Parent().SpanID())
	assert.Equal(t, run.SpanContext().TraceID(), open.SpanContext().TraceID())

	wantStart := time.Date(2024, 3, 1, 14, 0, 0, 100000, time.UTC)
	assert.Equal(t, wantStart, read.StartTime())
	assert.WithinDuration(t, wantStart.Add(15*time.Microsecond), read.EndTime(), time.Microsecond)

	readAttrs := attrMap(read.Attributes())
	assert.Equal(t, "read", readAttrs["syscall.name"].AsString())
	assert.Equal(t, int64(0), readAttrs["syscall.number"].AsInt64())
	assert.Equal(t, "3", readAttrs["syscall.exit"].AsString())

	assert.Equal(t, codes.Error, open.Status().Code)
	assert.Equal(t, "ENOENT (No such file or directory)", open.Status().Description)
	assert.Equal(t, traceStart.Add(time.Second+500*time.Millisecond), open.EndTime())

	runAttrs := attrMap(run.Attributes())
	assert.Equal(t, "ls", runAttrs["ctrace.target"].AsString())
	assert.Equal(t, "linux", runAttrs["ctrace.platform"].AsString())
	assert.Equal(t, int64(5), runAttrs["ctrace.calls"].AsInt64())
	assert.Equal(t, int64(2), runAttrs["ctrace.errors"].AsInt64())
	assert.Equal(t, open.EndTime(), run.EndTime())
}

func TestOTELFormatter_ProcessSpans(t *testing.T) {
	f, recorder := newTestFormatter(t, nil)
	f.StartRun(context.Background(), RunInfo{Target: "make"})

	child := &grammar.Event{ForkTag: "[pid:77]", Timestamp: "14:00:02.000000", Name: "execve", ExitCode: "0"}
	require.NoError(t, f.HandleSyscall(child))
	require.NoError(t, f.HandleSyscall(&grammar.Event{ForkTag: "[pid:77]", Timestamp: "14:00:03.000000", Name: "exit_group"}))

	procs := []procmeta.Process{{Tag: "[pid:77]", PID: 77, Calls: 2}}
	require.NoError(t, f.HandleReport(sampleReport(), procs))

	spans := endedByName(recorder)
	require.Len(t, spans["process"], 1)
	proc := spans["process"][0]
	run := spans["ctrace.run"][0]

	assert.Equal(t, run.SpanContext().SpanID(), proc.Parent().SpanID())
	assert.Equal(t, proc.SpanContext().SpanID(), spans["execve"][0].Parent().SpanID())
	assert.Equal(t, proc.SpanContext().SpanID(), spans["exit_group"][0].Parent().SpanID())

	attrs := attrMap(proc.Attributes())
	assert.Equal(t, int64(77), attrs["process.pid"].AsInt64())
	assert.Equal(t, int64(2), attrs["process.calls"].AsInt64())
	assert.Equal(t, traceStart.Add(3*time.Second), proc.EndTime())
}

func TestOTELFormatter_RemoteParent(t *testing.T) {
	f, recorder := newTestFormatter(t, nil)

	traceID, err := trace.TraceIDFromHex("a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4")
	require.NoError(t, err)
	parentID, err := trace.SpanIDFromHex("0123456789abcdef")
	require.NoError(t, err)

	f.StartRun(context.Background(), RunInfo{
		Target:     "ls",
		TraceID:    traceID,
		ParentID:   parentID,
		Attributes: []attribute.KeyValue{attribute.String("_parent_id_expr_result", "x")},
	})
	f.Close()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, traceID, ended[0].SpanContext().TraceID())
	assert.Equal(t, parentID, ended[0].Parent().SpanID())
	assert.True(t, ended[0].Parent().IsRemote())
	assert.Equal(t, "x", attrMap(ended[0].Attributes())["_parent_id_expr_result"].AsString())
}

func TestOTELFormatter_CustomAttributes(t *testing.T) {
	evaluator, err := attributes.NewEvaluator([]config.CustomAttribute{
		{Name: "slow", Expression: "elapsed > 0.00001"},
		{Name: "call", Expression: `{"name": name, "kind": kind}`},
	}, zap.NewNop())
	require.NoError(t, err)

	f, recorder := newTestFormatter(t, evaluator)
	f.StartRun(context.Background(), RunInfo{Target: "ls"})
	require.NoError(t, f.HandleSyscall(readEvent()))
	f.Close()

	spans := endedByName(recorder)
	require.Len(t, spans["read"], 1)
	attrs := attrMap(spans["read"][0].Attributes())
	assert.Equal(t, "true", attrs["slow"].AsString())
	assert.Equal(t, "read", attrs["call.name"].AsString())
	assert.Equal(t, "completed", attrs["call.kind"].AsString())
}

func TestOTELFormatter_WithoutRun(t *testing.T) {
	f, recorder := newTestFormatter(t, nil)

	require.NoError(t, f.HandleSyscall(readEvent()))
	require.NoError(t, f.HandleReport(sampleReport(), nil))
	f.Close()

	assert.Empty(t, recorder.Ended())
}

func TestOTELFormatter_CloseIsIdempotent(t *testing.T) {
	f, recorder := newTestFormatter(t, nil)
	f.StartRun(context.Background(), RunInfo{Target: "ls"})

	require.NoError(t, f.HandleReport(sampleReport(), nil))
	f.Close()

	assert.Len(t, recorder.Ended(), 1)
}

type staticHosts map[string][]string

func (s staticHosts) PeerHosts(ev *grammar.Event) []string {
	return s[ev.Name]
}

func TestOTELFormatter_PeerHosts(t *testing.T) {
	f, recorder := newTestFormatter(t, nil)
	f.SetHostLookup(staticHosts{"connect": {"db.example.com", "db"}})
	f.StartRun(context.Background(), RunInfo{Target: "psql"})

	require.NoError(t, f.HandleSyscall(&grammar.Event{Name: "connect", ExitCode: "0"}))
	require.NoError(t, f.HandleSyscall(readEvent()))
	f.Close()

	spans := endedByName(recorder)
	connect := attrMap(spans["connect"][0].Attributes())
	assert.Equal(t, "db.example.com,db", connect["network.pseudo_reverse_dns.peer_host"].AsString())

	_, ok := attrMap(spans["read"][0].Attributes())["network.pseudo_reverse_dns.peer_host"]
	assert.False(t, ok)
}
