package observ_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"cfgprep/internal/observ"
)

func TestMarkRecordsNote(t *testing.T) {
	tm := observ.NewTimer()
	tm.Begin("order").End("3 loops")
	tm.Begin("order").End("")

	phases := tm.Phases()
	if len(phases) != 1 || phases[0].Name != "order" || phases[0].Count != 2 || phases[0].Note != "3 loops" {
		t.Fatalf("phases = %+v", phases)
	}
	summary := tm.Summary()
	if !strings.Contains(summary, "(3 loops)") || !strings.Contains(summary, "x2") {
		t.Fatalf("summary:\n%s", summary)
	}
}

func TestConcurrentAddAccumulatesByName(t *testing.T) {
	tm := observ.NewTimer()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tm.Add("analyze", time.Millisecond)
			tm.Add("reduce", 2*time.Millisecond)
		}()
	}
	wg.Wait()

	report := tm.Report()
	if len(report.Phases) != 2 || report.Phases[0].Runs != 8 {
		t.Fatalf("phases = %+v", report.Phases)
	}
	if report.TotalMS != 24 {
		t.Fatalf("total = %v ms, want 24", report.TotalMS)
	}
}

func TestNilTimerIsInert(t *testing.T) {
	var tm *observ.Timer
	tm.Begin("x").End("")
	tm.Add("x", time.Second)
	if got := tm.Report(); len(got.Phases) != 0 {
		t.Fatalf("report = %+v", got)
	}
}
