package termstat_test

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ecodata/edk/termstat"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestCollector(t *testing.T) {
	out := &lockedBuffer{}
	c := termstat.NewCollector(out)
	c.Count("entity.succeeded", 1, 1.0)
	c.Count("entity.succeeded", 2, 1.0)
	c.Gauge("workers", 4, 1.0)
	c.Timing("step.invoke", 10*time.Millisecond, 1.0)
	c.Timing("step.invoke", 30*time.Millisecond, 1.0)
	c.Flush()

	line := out.String()
	if !strings.Contains(line, "entity.succeeded: 3") {
		t.Fatalf("counts not accumulated: %q", line)
	}
	if !strings.Contains(line, "workers: 4.00") {
		t.Fatalf("gauge missing: %q", line)
	}
	if !strings.Contains(line, "step.invoke: 20ms avg") {
		t.Fatalf("timing mean missing: %q", line)
	}
}
