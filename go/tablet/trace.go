package tablet

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const traceCapacity = 64

// Trace is the bounded diagnostic buffer of one transaction driver. Each
// phase appends a timestamped entry; the oldest entries are dropped once
// the buffer is full.
type Trace struct {
	mu      sync.Mutex
	entries []string
	dropped int
}

func newTrace() *Trace { return new(Trace) }

// Printf appends a formatted, timestamped entry.
func (t *Trace) Printf(format string, args ...interface{}) {
	var entry = fmt.Sprintf("%s %s",
		time.Now().UTC().Format("15:04:05.000000"),
		fmt.Sprintf(format, args...))

	t.mu.Lock()
	if len(t.entries) == traceCapacity {
		t.entries = t.entries[1:]
		t.dropped++
	}
	t.entries = append(t.entries, entry)
	t.mu.Unlock()
}

// Dump renders the buffer, one entry per line.
func (t *Trace) Dump() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	if t.dropped != 0 {
		fmt.Fprintf(&b, "(%d earlier entries dropped)\n", t.dropped)
	}
	for _, e := range t.entries {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	return b.String()
}
