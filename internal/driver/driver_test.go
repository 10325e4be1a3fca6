package driver_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"cfgprep/internal/config"
	"cfgprep/internal/driver"
	"cfgprep/internal/ir"
	"cfgprep/internal/irfile"
	"cfgprep/internal/pipeline"
	"cfgprep/internal/testkit"
)

func writeGraph(t *testing.T, dir string, g *ir.Graph) string {
	t.Helper()
	path := filepath.Join(dir, g.Name+irfile.TextExt)
	if err := irfile.Save(path, g); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return path
}

func sampleInputs(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	return []string{
		writeGraph(t, dir, testkit.Shape("diamond", [][]int{{1, 2}, {3}, {3}, {}})),
		writeGraph(t, dir, testkit.Shape("loop", [][]int{{1}, {2, 3}, {1}, {}}, 1)),
		writeGraph(t, dir, testkit.Shape("line", [][]int{{1}, {2}, {}})),
	}
}

func openCache(t *testing.T) *driver.DiskCache {
	t.Helper()
	c, err := driver.OpenDiskCache(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("OpenDiskCache: %v", err)
	}
	return c
}

func TestProcessUsesCache(t *testing.T) {
	files := sampleInputs(t)
	cfg := config.Default()
	cfg.Driver.Jobs = 2
	req := &driver.Request{Files: files, Config: cfg, Cache: openCache(t)}

	first, err := driver.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	second, err := driver.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	for i := range files {
		a, b := first[i], second[i]
		if a.Err != nil || b.Err != nil {
			t.Fatalf("%s: errors %v / %v", files[i], a.Err, b.Err)
		}
		if a.Cached || !b.Cached {
			t.Fatalf("%s: cached = %v then %v", files[i], a.Cached, b.Cached)
		}
		if a.Result.Stats != b.Result.Stats || !slices.Equal(a.Result.Order, b.Result.Order) {
			t.Fatalf("%s: cached result differs: %+v vs %+v", files[i], a.Result.Stats, b.Result.Stats)
		}
		if a.Result.Graph.OpCount() != b.Result.Graph.OpCount() || b.Result.Graph.Name != a.Result.Graph.Name {
			t.Fatalf("%s: cached graph differs", files[i])
		}
		if len(a.Result.Loops) != len(b.Result.Loops) {
			t.Fatalf("%s: loops %d vs %d", files[i], len(a.Result.Loops), len(b.Result.Loops))
		}
	}
}

func TestProcessCacheKeyTracksPipelineConfig(t *testing.T) {
	files := sampleInputs(t)[:1]
	cache := openCache(t)
	cfg := config.Default()
	if _, err := driver.Process(context.Background(), &driver.Request{Files: files, Config: cfg, Cache: cache}); err != nil {
		t.Fatal(err)
	}

	cfg.Pipeline.EliminateDeadCode = false
	res, err := driver.Process(context.Background(), &driver.Request{Files: files, Config: cfg, Cache: cache})
	if err != nil {
		t.Fatal(err)
	}
	if res[0].Cached {
		t.Fatalf("result reused across different pipeline settings")
	}
	if res[0].Result.Stats.OpsRemoved != 0 {
		t.Fatalf("stats = %+v", res[0].Result.Stats)
	}
}

func TestProcessReportsBrokenFileAndContinues(t *testing.T) {
	files := sampleInputs(t)
	broken := filepath.Join(filepath.Dir(files[0]), "broken"+irfile.TextExt)
	if err := os.WriteFile(broken, []byte("[[block]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	files = append([]string{broken}, files...)

	res, err := driver.Process(context.Background(), &driver.Request{Files: files, Config: config.Default()})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res[0].Err == nil || errors.Is(res[0].Err, driver.ErrInternal) {
		t.Fatalf("broken file error = %v", res[0].Err)
	}
	for _, fr := range res[1:] {
		if fr.Err != nil || fr.Result == nil {
			t.Fatalf("%s: %v", fr.Path, fr.Err)
		}
	}
}

func TestProcessConvertsPanics(t *testing.T) {
	path := writeGraph(t, t.TempDir(), testkit.Shape("island", [][]int{{}, {2}, {1}}))
	cfg := config.Default()
	cfg.Pipeline.Verify = false

	var (
		mu     sync.Mutex
		events []pipeline.Event
	)
	sink := pipeline.FuncSink(func(ev pipeline.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	res, err := driver.Process(context.Background(), &driver.Request{Files: []string{path}, Config: cfg, Progress: sink})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !errors.Is(res[0].Err, driver.ErrInternal) {
		t.Fatalf("error = %v, want ErrInternal", res[0].Err)
	}
	last := events[len(events)-1]
	if last.Status != pipeline.StatusError || last.Stage != pipeline.StageOrder {
		t.Fatalf("last event = %+v", last)
	}
}

func TestProcessWritesOutputs(t *testing.T) {
	files := sampleInputs(t)
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()
	cfg.Output.Format = "binary"

	res, err := driver.Process(context.Background(), &driver.Request{Files: files, Config: cfg})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	for _, fr := range res {
		if fr.Err != nil {
			t.Fatalf("%s: %v", fr.Path, fr.Err)
		}
		if !strings.HasSuffix(fr.Output, irfile.BinaryExt) {
			t.Fatalf("output = %q", fr.Output)
		}
		g, _, err := irfile.Load(fr.Output)
		if err != nil {
			t.Fatalf("Load(%s): %v", fr.Output, err)
		}
		if err := ir.Validate(g); err != nil {
			t.Fatalf("%s: %v", fr.Output, err)
		}
	}
}

func TestProcessCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := driver.Process(ctx, &driver.Request{Files: sampleInputs(t), Config: config.Default()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{filepath.Join(sub, "b.cfgb"), filepath.Join(dir, "a.cfg.toml"), filepath.Join(dir, "notes.txt")} {
		if err := os.WriteFile(name, nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	got, err := driver.ExpandInputs([]string{dir})
	if err != nil {
		t.Fatalf("ExpandInputs: %v", err)
	}
	want := []string{filepath.Join(dir, "a.cfg.toml"), filepath.Join(sub, "b.cfgb")}
	if !slices.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDiskCacheDropAll(t *testing.T) {
	cache := openCache(t)
	key, err := driver.ResultKey([]byte("x"), "g", config.Default().Pipeline)
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Put(key, &driver.DiskPayload{Order: []uint32{0}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	var got driver.DiskPayload
	if hit, err := cache.Get(key, &got); !hit || err != nil {
		t.Fatalf("Get = %v, %v", hit, err)
	}
	if u, err := cache.Usage(); err != nil || u.Entries != 1 || u.Bytes == 0 {
		t.Fatalf("Usage = %+v, %v", u, err)
	}
	if err := cache.DropAll(); err != nil {
		t.Fatalf("DropAll: %v", err)
	}
	if u, err := cache.Usage(); err != nil || u.Entries != 0 {
		t.Fatalf("Usage after DropAll = %+v, %v", u, err)
	}
	if hit, err := cache.Get(key, &got); hit || err != nil {
		t.Fatalf("Get after DropAll = %v, %v", hit, err)
	}
}
