package trace

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Heartbeat emits a periodic event listing the spans still open, so a
// stream trace shows which file and stage a stuck run is sitting in.
type Heartbeat struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// StartHeartbeat beats on t every interval. It returns nil, which Stop
// accepts, when t is disabled or interval is not positive.
func StartHeartbeat(t Tracer, interval time.Duration) *Heartbeat {
	if t == nil || !t.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{stop: make(chan struct{}), done: make(chan struct{})}
	go h.loop(t, interval)
	return h
}

func (h *Heartbeat) loop(t Tracer, interval time.Duration) {
	defer close(h.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for beat := 1; ; beat++ {
		select {
		case <-h.stop:
			return
		case now := <-ticker.C:
			t.Emit(&Event{
				Time:   now,
				Seq:    NextSeq(),
				Kind:   KindHeartbeat,
				Scope:  ScopeDriver,
				Name:   "heartbeat",
				Detail: beatDetail(beat, openSpanNames()),
			})
		}
	}
}

func beatDetail(beat int, open []string) string {
	if len(open) == 0 {
		return fmt.Sprintf("#%d idle", beat)
	}
	return fmt.Sprintf("#%d open: %s", beat, strings.Join(open, ", "))
}

// Stop ends the heartbeat and waits for its goroutine. It is safe to call
// more than once.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
	<-h.done
}
