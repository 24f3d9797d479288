package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/drawcompress/internal/bridge"
	"github.com/local/drawcompress/internal/classifier"
	"github.com/local/drawcompress/internal/jobs"
	"github.com/local/drawcompress/internal/pdfdoc"
	"github.com/local/drawcompress/internal/pdftest"
	"github.com/local/drawcompress/internal/queue"
	"github.com/local/drawcompress/internal/store"
)

type fakeAssembler struct {
	err   error
	panic bool
	got   jobs.Settings
}

func (a *fakeAssembler) Assemble(_ context.Context, src []byte, s jobs.Settings, rep jobs.Reporter) (*pdfdoc.Result, error) {
	a.got = s
	if a.panic {
		panic("boom")
	}
	rep.Report(jobs.StageAllPages, jobs.ProgressPages)
	if a.err != nil {
		return nil, a.err
	}
	rep.Report(jobs.StageImages, jobs.ProgressImages)
	rep.Report(jobs.StageImages, jobs.ImageProgress(1, 2))
	rep.Report(jobs.StageImages, jobs.ImageProgress(2, 2))
	rep.Report(jobs.StageSaving, jobs.ProgressSaving)
	return &pdfdoc.Result{Data: append([]byte("assembled:"), src...)}, nil
}

type suffix string

func (s suffix) Distill(_ context.Context, in []byte, extreme bool) []byte {
	out := append(append([]byte(nil), in...), s...)
	if extreme {
		out = append(out, "!"...)
	}
	return out
}

func (s suffix) Optimize(_ context.Context, in []byte) []byte {
	return append(append([]byte(nil), in...), s...)
}

type fakeArchive struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (a *fakeArchive) Put(_ context.Context, key string, _ []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key)
	return a.err
}

// history records every snapshot the registry publishes.
type history struct {
	mu    sync.Mutex
	snaps []jobs.Snapshot
}

func (h *history) Set(_ context.Context, s jobs.Snapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snaps = append(h.snaps, s)
	return nil
}

func (h *history) Delete(context.Context, string) error { return nil }

func (h *history) progress() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]int, len(h.snaps))
	for i, s := range h.snaps {
		out[i] = s.Progress
	}
	return out
}

func (h *history) stages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, s := range h.snaps {
		if len(out) == 0 || out[len(out)-1] != s.Stage {
			out = append(out, s.Stage)
		}
	}
	return out
}

type fixture struct {
	o    *Orchestrator
	asm  *fakeAssembler
	hist *history
	q    *queue.Memory
	dir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{asm: &fakeAssembler{}, hist: &history{}, q: queue.NewMemory(), dir: t.TempDir()}
	f.o = New(Config{TempDir: f.dir}, Dependencies{
		Registry:  store.NewRegistry(f.hist),
		Queue:     f.q,
		Assembler: f.asm,
		Distiller: suffix("+gs"),
		Optimizer: suffix("+opt"),
	})
	return f
}

func writeSource(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "upload.pdf")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestSubmitQueuesJob(t *testing.T) {
	f := newFixture(t)
	src := writeSource(t, "pdf")
	id, err := f.o.Submit(context.Background(), src, jobs.Settings{Quality: 500, MaxDimension: 800, Mode: "line_art", Pages: []int{2}})
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err), "source is moved into the job dir")

	snap, err := f.o.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateQueued, snap.State)
	assert.Equal(t, 0, snap.Progress)
	assert.Equal(t, 95, snap.Settings.Quality, "quality clamped")
	assert.Equal(t, filepath.Join(f.dir, id, "input.pdf"), snap.InputPath)

	depth, _ := f.q.Depth(context.Background())
	assert.Equal(t, int64(1), depth)
}

func TestSubmitRejectsBadSettings(t *testing.T) {
	f := newFixture(t)
	src := writeSource(t, "pdf")
	_, err := f.o.Submit(context.Background(), src, jobs.Settings{Quality: 60, MaxDimension: 1000, Mode: "sepia"})
	assert.True(t, jobs.IsValidation(err))
	_, err = os.Stat(src)
	assert.NoError(t, err, "rejected source stays where it was")
	assert.Equal(t, 0, f.o.deps.Registry.Len())
}

func TestSubmitChecksPageSelection(t *testing.T) {
	f := newFixture(t)
	var counted string
	f.o.deps.PageCounter = func(path string) (int, error) {
		counted = path
		return 3, nil
	}
	src := writeSource(t, "pdf")
	withPages := func(pages ...int) jobs.Settings {
		s := jobs.DefaultSettings()
		s.Pages = pages
		return s
	}

	_, err := f.o.Submit(context.Background(), src, withPages(4, 9))
	assert.True(t, jobs.IsValidation(err))
	assert.Equal(t, src, counted)
	_, statErr := os.Stat(src)
	assert.NoError(t, statErr, "rejected source stays where it was")
	assert.Equal(t, 0, f.o.deps.Registry.Len())

	id, err := f.o.Submit(context.Background(), src, withPages(9, 2))
	require.NoError(t, err)
	snap, _ := f.o.GetStatus(context.Background(), id)
	assert.Equal(t, []int{9, 2}, snap.Settings.Pages, "out-of-range entries are dropped later, in the pipeline")
}

func TestSubmitIgnoresUncountableSource(t *testing.T) {
	f := newFixture(t)
	f.o.deps.PageCounter = func(string) (int, error) { return 0, errors.New("not a pdf") }
	s := jobs.DefaultSettings()
	s.Pages = []int{1}
	_, err := f.o.Submit(context.Background(), writeSource(t, "pdf"), s)
	assert.NoError(t, err)
}

func TestSubmitEnqueueFailureMarksError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.q.Close())
	_, err := f.o.Submit(context.Background(), writeSource(t, "pdf"), jobs.DefaultSettings())
	require.Error(t, err)
	for _, s := range f.hist.snaps {
		if s.State == jobs.StateError {
			return
		}
	}
	t.Fatal("job not marked as error")
}

func TestRunCompletesJob(t *testing.T) {
	f := newFixture(t)
	archive := &fakeArchive{}
	f.o.deps.Archive = archive
	id, err := f.o.Submit(context.Background(), writeSource(t, "pdf"), jobs.DefaultSettings())
	require.NoError(t, err)

	_, err = f.o.GetResult(context.Background(), id)
	assert.ErrorIs(t, err, jobs.ErrResultNotReady)

	require.NoError(t, f.o.Run(context.Background(), id))

	snap, err := f.o.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateDone, snap.State)
	assert.Equal(t, "done", snap.StatusLabel())
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, "results/"+id+".pdf", snap.ResultKey)
	assert.Equal(t, []string{"results/" + id + ".pdf"}, archive.keys)

	out, err := f.o.GetResult(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "assembled:pdf+gs+opt", string(out))

	p := f.hist.progress()
	assert.IsNonDecreasing(t, p)
	assert.Equal(t, 100, p[len(p)-1])
	assert.Equal(t, []string{
		"",
		jobs.StageInitializing,
		jobs.StageAllPages,
		jobs.StageImages,
		jobs.StageSaving,
		jobs.StageGhostscript,
		jobs.StageOptimizing,
		"",
	}, f.hist.stages())
}

func TestRunPassesExtremeToDistiller(t *testing.T) {
	f := newFixture(t)
	s := jobs.DefaultSettings()
	s.Extreme = true
	id, err := f.o.Submit(context.Background(), writeSource(t, "x"), s)
	require.NoError(t, err)
	require.NoError(t, f.o.Run(context.Background(), id))
	out, _ := f.o.GetResult(context.Background(), id)
	assert.Equal(t, "assembled:x+gs!+opt", string(out))
	assert.True(t, f.asm.got.Extreme)
}

func TestRunArchiveFailureStillCompletes(t *testing.T) {
	f := newFixture(t)
	f.o.deps.Archive = &fakeArchive{err: errors.New("denied")}
	id, _ := f.o.Submit(context.Background(), writeSource(t, "pdf"), jobs.DefaultSettings())
	require.NoError(t, f.o.Run(context.Background(), id))
	snap, _ := f.o.GetStatus(context.Background(), id)
	assert.Equal(t, jobs.StateDone, snap.State)
	assert.Empty(t, snap.ResultKey)
}

func TestRunFailureFreezesProgress(t *testing.T) {
	f := newFixture(t)
	f.asm.err = &jobs.PageCopyError{Pages: []int{0}, Err: errors.New("broken tree")}
	id, _ := f.o.Submit(context.Background(), writeSource(t, "pdf"), jobs.DefaultSettings())

	err := f.o.Run(context.Background(), id)
	var pce *jobs.PageCopyError
	require.ErrorAs(t, err, &pce)

	snap, _ := f.o.GetStatus(context.Background(), id)
	assert.Equal(t, jobs.StateError, snap.State)
	assert.Equal(t, "error", snap.StatusLabel())
	assert.Contains(t, snap.Error, "broken tree")
	assert.Equal(t, jobs.ProgressPages, snap.Progress)
	assert.Less(t, snap.Progress, 100)

	_, err = f.o.GetResult(context.Background(), id)
	assert.ErrorIs(t, err, jobs.ErrResultNotReady)
}

func TestRunRecoversPanic(t *testing.T) {
	f := newFixture(t)
	f.asm.panic = true
	id, _ := f.o.Submit(context.Background(), writeSource(t, "pdf"), jobs.DefaultSettings())
	err := f.o.Run(context.Background(), id)
	require.Error(t, err)
	snap, _ := f.o.GetStatus(context.Background(), id)
	assert.Equal(t, jobs.StateError, snap.State)
	assert.Contains(t, snap.Error, "boom")
	assert.Equal(t, jobs.ProgressInitializing, snap.Progress)
}

func TestRunMissingInput(t *testing.T) {
	f := newFixture(t)
	id, _ := f.o.Submit(context.Background(), writeSource(t, "pdf"), jobs.DefaultSettings())
	snap, _ := f.o.GetStatus(context.Background(), id)
	require.NoError(t, os.Remove(snap.InputPath))
	require.Error(t, f.o.Run(context.Background(), id))
	snap, _ = f.o.GetStatus(context.Background(), id)
	assert.Contains(t, snap.Error, "read input")
}

func TestRunSkipsUnknownAndStartedJobs(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.o.Run(context.Background(), "not-a-job"))

	id, _ := f.o.Submit(context.Background(), writeSource(t, "pdf"), jobs.DefaultSettings())
	require.NoError(t, f.o.Run(context.Background(), id))
	n := len(f.hist.progress())
	require.NoError(t, f.o.Run(context.Background(), id), "redelivered token")
	assert.Len(t, f.hist.progress(), n)
}

func TestLookupsOfUnknownJob(t *testing.T) {
	f := newFixture(t)
	_, err := f.o.GetStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
	_, err = f.o.GetResult(context.Background(), "nope")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestEvictExpiredRemovesRecordAndInput(t *testing.T) {
	f := newFixture(t)
	id, _ := f.o.Submit(context.Background(), writeSource(t, "pdf"), jobs.DefaultSettings())
	require.NoError(t, f.o.Run(context.Background(), id))

	assert.Equal(t, 0, f.o.EvictExpired(time.Hour))
	_, err := os.Stat(filepath.Join(f.dir, id))
	require.NoError(t, err)

	assert.Equal(t, 1, f.o.EvictExpired(0))
	_, err = f.o.GetStatus(context.Background(), id)
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
	_, err = f.o.GetResult(context.Background(), id)
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
	_, err = os.Stat(filepath.Join(f.dir, id))
	assert.True(t, os.IsNotExist(err))
}

func TestSweeperRemovesOrphans(t *testing.T) {
	f := newFixture(t)
	old := time.Now().Add(-2 * time.Hour)

	orphan := filepath.Join(f.dir, uuid.NewString())
	require.NoError(t, os.MkdirAll(orphan, 0o755))
	require.NoError(t, os.Chtimes(orphan, old, old))
	fresh := filepath.Join(f.dir, uuid.NewString())
	require.NoError(t, os.MkdirAll(fresh, 0o755))
	other := filepath.Join(f.dir, "keep-me")
	require.NoError(t, os.MkdirAll(other, 0o755))
	require.NoError(t, os.Chtimes(other, old, old))
	upload := filepath.Join(f.dir, uploadPrefix+"123.pdf")
	require.NoError(t, os.WriteFile(upload, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(upload, old, old))

	live, _ := f.o.Submit(context.Background(), writeSource(t, "pdf"), jobs.DefaultSettings())
	liveDir := filepath.Join(f.dir, live)
	require.NoError(t, os.Chtimes(liveDir, old, old))

	s := f.o.NewSweeper(time.Hour, time.Hour)
	assert.Equal(t, 0, s.Sweep())

	for p, exists := range map[string]bool{orphan: false, upload: false, fresh: true, other: true, liveDir: true} {
		_, err := os.Stat(p)
		assert.Equal(t, exists, err == nil, p)
	}
}

func TestSweeperStartStop(t *testing.T) {
	f := newFixture(t)
	id, _ := f.o.Submit(context.Background(), writeSource(t, "pdf"), jobs.DefaultSettings())

	s := f.o.NewSweeper(5*time.Millisecond, time.Nanosecond)
	s.Start()
	assert.Eventually(t, func() bool {
		_, err := f.o.GetStatus(context.Background(), id)
		return errors.Is(err, jobs.ErrJobNotFound)
	}, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()
}

type fakeOpener struct{ err error }

type fakeDoc struct{}

func (fakeDoc) NumPage() int { return 2 }
func (fakeDoc) PageText(i int) (string, string, error) {
	if i == 0 {
		return "FLOOR PLAN", "A-101", nil
	}
	return "ELECTRICAL", "E-201", nil
}
func (fakeDoc) Close() error { return nil }

func (o fakeOpener) Open(string) (classifier.Doc, error) {
	if o.err != nil {
		return nil, o.err
	}
	return fakeDoc{}, nil
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t)
	_, err := f.o.Analyze(context.Background(), "x.pdf")
	assert.Error(t, err, "no opener configured")

	f.o.deps.Opener = fakeOpener{}
	a, err := f.o.Analyze(context.Background(), "x.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, a.TotalPages)
	assert.Equal(t, []int{1}, a.Sections[classifier.Architectural])
	assert.Equal(t, []int{2}, a.Sections[classifier.Electrical])
}

func TestEndToEndWithoutGhostscript(t *testing.T) {
	dir := t.TempDir()
	doc := pdftest.Doc{Pages: []pdftest.Page{
		pdftest.TextPage("COVER SHEET", "G-001"),
		pdftest.TextPage("FLOOR PLAN", "A-101"),
		pdftest.TextPage("LIGHTING PLAN", "E-101"),
	}}
	src, err := doc.WriteFile(t.TempDir(), "set.pdf")
	require.NoError(t, err)

	o := New(Config{TempDir: dir}, Dependencies{
		Queue:     queue.NewMemory(),
		Assembler: &pdfdoc.Assembler{ImageConcurrency: 2},
		Distiller: &bridge.Ghostscript{Binaries: []string{"gs-not-installed-here"}},
		Optimizer: bridge.Optimizer{},
	})
	s := jobs.DefaultSettings()
	s.Pages = []int{3, 1}
	id, err := o.Submit(context.Background(), src, s)
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background(), id))

	out, err := o.GetResult(context.Background(), id)
	require.NoError(t, err)
	res, err := pdfdoc.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PageCount())
}
