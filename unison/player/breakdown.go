package player

import (
	"log/slog"
	"time"
)

// breakdown records how long each step of one loop iteration took. It is
// only ever reported when an iteration ends in an underrun, where the
// interesting question is which step ate the period budget.
type breakdown struct {
	last  time.Time
	names []string
	durs  []time.Duration
}

func newBreakdown() *breakdown {
	return &breakdown{
		last:  time.Now(),
		names: make([]string, 0, 8),
		durs:  make([]time.Duration, 0, 8),
	}
}

// mark closes the step that just ran.
func (b *breakdown) mark(name string) {
	now := time.Now()
	b.names = append(b.names, name)
	b.durs = append(b.durs, now.Sub(b.last))
	b.last = now
}

func (b *breakdown) log(log *slog.Logger) {
	attrs := make([]any, 0, 2*len(b.names))
	for i, name := range b.names {
		attrs = append(attrs, name+"_us", b.durs[i].Microseconds())
	}
	log.Warn("iteration breakdown", attrs...)
}
