package procmeta

import (
	"regexp"
	"strconv"
	"sync"

	"github.com/automation-stack/ctrace/internal/grammar"
)

var forkTagPID = regexp.MustCompile(`^\[pid:(\d+)\]$`)

// Process is one process observed in the trace. The traced process itself has
// an empty Tag.
type Process struct {
	Tag       string
	PID       int
	Calls     int
	Errors    int
	FirstSeen string
}

// Registry follows the processes seen in the trace.
type Registry struct {
	mu      sync.RWMutex
	procs   map[string]*Process // fork tag -> process
	order   []string
	rootPID int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		procs: make(map[string]*Process),
	}
}

// SetRoot records the PID of the traced process (command).
func (r *Registry) SetRoot(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rootPID = pid
	if root, ok := r.procs[""]; ok {
		root.PID = pid
	}
}

// Observe counts ev against the process that issued it (command).
func (r *Registry) Observe(ev *grammar.Event) {
	if ev == nil || ev.Name == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.procs[ev.ForkTag]
	if !ok {
		p = &Process{Tag: ev.ForkTag, FirstSeen: ev.Timestamp}
		if ev.ForkTag == "" {
			p.PID = r.rootPID
		} else if pid, ok := ParsePID(ev.ForkTag); ok {
			p.PID = pid
		}
		r.procs[ev.ForkTag] = p
		r.order = append(r.order, ev.ForkTag)
	}

	p.Calls++
	if ev.Failed {
		p.Errors++
	}
}

// Get returns a copy of the process recorded under tag (query).
func (r *Registry) Get(tag string) (Process, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.procs[tag]
	if !ok {
		return Process{}, false
	}
	return *p, true
}

// Processes returns copies of all processes in first-seen order (query).
func (r *Registry) Processes() []Process {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Process, 0, len(r.order))
	for _, tag := range r.order {
		out = append(out, *r.procs[tag])
	}
	return out
}

// Forked reports whether any child process was observed (query).
func (r *Registry) Forked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, tag := range r.order {
		if tag != "" {
			return true
		}
	}
	return false
}

// ParsePID extracts the PID from a fork tag such as "[pid:42]".
func ParsePID(tag string) (int, bool) {
	m := forkTagPID.FindStringSubmatch(tag)
	if m == nil {
		return 0, false
	}
	pid, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return pid, true
}
