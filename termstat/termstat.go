// Package termstat provides a stats implementation which periodically prints
// engine counters to the given writer. It is meant for watching a pipeline
// run from the terminal in lieu of a real collector writing to an external
// tool like graphite or datadog.
package termstat

import (
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Collector collects stats and prints them to the terminal.
type Collector struct {
	lock    sync.Mutex
	indexes map[string]int
	names   []string
	counts  []int64
	gauges  map[string]float64
	timings map[string]*timing
	changed bool
	out     io.Writer
}

type timing struct {
	n     int64
	total time.Duration
}

// NewCollector initializes and returns a new Collector printing to out every
// couple of seconds.
func NewCollector(out io.Writer) *Collector {
	ts := &Collector{
		indexes: make(map[string]int),
		gauges:  make(map[string]float64),
		timings: make(map[string]*timing),
		out:     out,
	}
	go func() {
		tick := time.NewTicker(time.Second * 2)
		for ; ; <-tick.C {
			ts.Flush()
		}
	}()
	return ts
}

// Count adds value to the named stat at the specified rate.
func (t *Collector) Count(name string, value int64, rate float64, tags ...string) {
	t.lock.Lock()
	t.changed = true
	defer t.lock.Unlock()

	idx, ok := t.indexes[name]
	if !ok {
		idx = len(t.counts)
		t.counts = append(t.counts, 0)
		t.names = append(t.names, name)
		t.indexes[name] = idx
	}
	if rate < 1 {
		if rand.Float64() > rate {
			return
		}
	}
	t.counts[idx] += value
}

// Gauge records the latest value of the named stat.
func (t *Collector) Gauge(name string, value float64, rate float64, tags ...string) {
	t.lock.Lock()
	t.gauges[name] = value
	t.changed = true
	t.lock.Unlock()
}

// Timing accumulates durations; the flush line shows the running mean.
func (t *Collector) Timing(name string, value time.Duration, rate float64, tags ...string) {
	t.lock.Lock()
	tm, ok := t.timings[name]
	if !ok {
		tm = &timing{}
		t.timings[name] = tm
	}
	tm.n++
	tm.total += value
	t.changed = true
	t.lock.Unlock()
}

// Flush writes the current stat line if anything changed since the last one.
func (t *Collector) Flush() {
	sb := strings.Builder{}
	t.lock.Lock()
	if !t.changed {
		t.lock.Unlock()
		return
	}
	for i := 0; i < len(t.counts); i++ {
		_, _ = sb.WriteString(fmt.Sprintf("%s: %d ", t.names[i], t.counts[i]))
	}
	for name, v := range t.gauges {
		_, _ = sb.WriteString(fmt.Sprintf("%s: %.2f ", name, v))
	}
	for name, tm := range t.timings {
		_, _ = sb.WriteString(fmt.Sprintf("%s: %v avg ", name, tm.total/time.Duration(tm.n)))
	}
	t.changed = false
	fmt.Fprintf(t.out, "\r"+sb.String())
	t.lock.Unlock()
}
