// Package driver runs the pipeline over many graph files at once, with an
// on-disk result cache.
package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"fortio.org/safecast"
	"golang.org/x/sync/errgroup"

	"cfgprep/internal/config"
	"cfgprep/internal/ir"
	"cfgprep/internal/irfile"
	"cfgprep/internal/observ"
	"cfgprep/internal/pipeline"
	"cfgprep/internal/trace"
)

// ErrInternal wraps a panic raised by a pass while processing one file.
var ErrInternal = errors.New("internal error")

// Request configures one Process call.
type Request struct {
	Files  []string
	Config config.Config
	// Cache is consulted before and filled after each file. Nil disables it.
	Cache    *DiskCache
	Progress pipeline.ProgressSink
	Timer    *observ.Timer
}

// FileResult is the outcome for one input file.
type FileResult struct {
	Path string
	// Result is nil when Err is set.
	Result *pipeline.Result
	// Output is the written graph file, empty without [output].dir.
	Output  string
	Cached  bool
	Err     error
	Elapsed time.Duration
}

// ExpandInputs replaces every directory argument with the graph files under
// it, sorted. File arguments are kept as given.
func ExpandInputs(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		found, err := listGraphFiles(arg)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

// listGraphFiles returns all graph files under dir, sorted.
func listGraphFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, irfile.TextExt) || strings.HasSuffix(path, irfile.BinaryExt) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Process runs the pipeline over every file concurrently. Per-file failures
// are reported in the results; the returned error is set only when ctx is
// cancelled.
func Process(ctx context.Context, req *Request) ([]FileResult, error) {
	if len(req.Files) == 0 {
		return nil, nil
	}
	jobs := req.Config.Driver.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	for _, path := range req.Files {
		pipeline.Emit(req.Progress, path, pipeline.StageLoad, pipeline.StatusQueued, nil, 0)
	}

	// Each goroutine writes only its own slot.
	results := make([]FileResult, len(req.Files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(req.Files)))
	for i, path := range req.Files {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				results[i] = FileResult{Path: path, Err: gctx.Err()}
				return gctx.Err()
			default:
			}
			results[i] = processFile(gctx, req, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func processFile(ctx context.Context, req *Request, path string) (fr FileResult) {
	fr.Path = path
	start := time.Now()
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeDriver, "file:"+path, trace.CurrentSpan(ctx).SpanID)
	ctx = trace.WithSpanContext(ctx, trace.SpanContext{SpanID: span.ID()})

	progress := &stageTracker{sink: req.Progress, stage: pipeline.StageLoad}
	defer func() {
		if r := recover(); r != nil {
			fr.Result = nil
			fr.Err = fmt.Errorf("%s: %w: %v", path, ErrInternal, r)
		}
		fr.Elapsed = time.Since(start)
		if fr.Err != nil {
			span.End("error: " + fr.Err.Error())
			if !progress.failed {
				progress.OnEvent(pipeline.Event{File: path, Stage: progress.stage, Status: pipeline.StatusError, Err: fr.Err, Elapsed: fr.Elapsed})
			}
			return
		}
		status := "done"
		if fr.Cached {
			status = "cached"
		}
		span.End(status)
		pipeline.Emit(progress, path, pipeline.StageWrite, pipeline.StatusDone, nil, fr.Elapsed)
	}()

	pipeline.Emit(progress, path, pipeline.StageLoad, pipeline.StatusWorking, nil, 0)
	loadStart := time.Now()
	g, data, err := irfile.Load(path)
	req.Timer.Add(string(pipeline.StageLoad), time.Since(loadStart))
	if err != nil {
		fr.Err = err
		return fr
	}

	var key Digest
	useCache := req.Cache != nil && req.Config.Driver.Cache
	if useCache {
		key, err = ResultKey(data, g.Name, req.Config.Pipeline)
		if err != nil {
			fr.Err = fmt.Errorf("%s: cache key: %w", path, err)
			return fr
		}
		var payload DiskPayload
		hit, getErr := req.Cache.Get(key, &payload)
		if getErr != nil {
			trace.Point(tracer, trace.ScopeDriver, "cache", span.ID(), getErr.Error())
		}
		if hit {
			res, err := payload.result()
			if err == nil {
				fr.Result, fr.Cached = res, true
				pipeline.Emit(progress, path, pipeline.StageLoad, pipeline.StatusCached, nil, time.Since(start))
				fr.Output, fr.Err = writeOutput(req, path, res.Graph)
				return fr
			}
			trace.Point(tracer, trace.ScopeDriver, "cache", span.ID(), err.Error())
		}
	}
	pipeline.Emit(progress, path, pipeline.StageLoad, pipeline.StatusDone, nil, time.Since(loadStart))

	res, err := pipeline.Run(ctx, g, pipeline.Options{
		Pipeline: req.Config.Pipeline,
		File:     path,
		Progress: progress,
		Timer:    req.Timer,
	})
	if err != nil {
		fr.Err = fmt.Errorf("%s: %w", path, err)
		return fr
	}
	fr.Result = res

	if useCache {
		payload, err := newPayload(res)
		if err == nil {
			err = req.Cache.Put(key, payload)
		}
		if err != nil {
			trace.Point(tracer, trace.ScopeDriver, "cache", span.ID(), err.Error())
		}
	}

	progress.stage = pipeline.StageWrite
	fr.Output, fr.Err = writeOutput(req, path, res.Graph)
	return fr
}

// writeOutput saves g under [output].dir with the configured encoding.
func writeOutput(req *Request, path string, g *ir.Graph) (string, error) {
	out := req.Config.Output
	if out.Dir == "" || !out.Emits(config.EmitGraph) {
		return "", nil
	}
	format, err := irfile.ParseFormat(out.Format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(out.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	dest := filepath.Join(out.Dir, filepath.Base(irfile.StripExt(path))+format.Ext())
	if err := irfile.Save(dest, g); err != nil {
		return "", err
	}
	return dest, nil
}

// stageTracker remembers the last stage reported for a file so that a
// failure outside pipeline.Run is attributed to it, and a failure already
// reported is not reported twice.
type stageTracker struct {
	sink   pipeline.ProgressSink
	stage  pipeline.Stage
	failed bool
}

func (t *stageTracker) OnEvent(evt pipeline.Event) {
	t.stage = evt.Stage
	if evt.Status == pipeline.StatusError {
		t.failed = true
	}
	if t.sink != nil {
		t.sink.OnEvent(evt)
	}
}

func newPayload(res *pipeline.Result) (*DiskPayload, error) {
	var buf bytes.Buffer
	if err := irfile.EncodeBinary(&buf, res.Graph); err != nil {
		return nil, err
	}
	p := &DiskPayload{
		Graph: buf.Bytes(),
		Order: toU32(res.Order),
		Stats: res.Stats,
	}
	for _, l := range res.Loops {
		p.Loops = append(p.Loops, LoopPayload{
			Header:  uint32(l.Header),
			Members: toU32(l.Members),
			Parent:  l.Parent,
			Depth:   l.Depth,
		})
	}
	return p, nil
}

func (p *DiskPayload) result() (*pipeline.Result, error) {
	g, err := irfile.DecodeBinary(bytes.NewReader(p.Graph))
	if err != nil {
		return nil, err
	}
	nblocks, err := safecast.Conv[uint32](p.Stats.Blocks)
	if err != nil {
		return nil, err
	}
	order, err := fromU32(p.Order, nblocks)
	if err != nil {
		return nil, err
	}
	res := &pipeline.Result{Graph: g, Order: order, Stats: p.Stats}
	for _, l := range p.Loops {
		members, err := fromU32(l.Members, nblocks)
		if err != nil {
			return nil, err
		}
		if l.Header >= nblocks {
			return nil, fmt.Errorf("loop header %d out of range", l.Header)
		}
		res.Loops = append(res.Loops, pipeline.Loop{
			Header:  ir.BlockIndex(l.Header),
			Members: members,
			Parent:  l.Parent,
			Depth:   l.Depth,
		})
	}
	return res, nil
}

func toU32(bs []ir.BlockIndex) []uint32 {
	if bs == nil {
		return nil
	}
	out := make([]uint32, len(bs))
	for i, b := range bs {
		out[i] = uint32(b)
	}
	return out
}

func fromU32(vs []uint32, n uint32) ([]ir.BlockIndex, error) {
	if vs == nil {
		return nil, nil
	}
	out := make([]ir.BlockIndex, len(vs))
	for i, v := range vs {
		if v >= n {
			return nil, fmt.Errorf("block %d out of range", v)
		}
		out[i] = ir.BlockIndex(v)
	}
	return out, nil
}
