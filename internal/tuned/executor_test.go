package tuned

import (
	"context"
	"errors"
	"testing"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/profile"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/report"
)

func startRun(t *testing.T, store *RunStore, exec *RunExecutor, id string, input RunInput) {
	t.Helper()
	if _, err := store.Create(id, input, mustTuning(t, input.TuningYAML)); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if _, err := exec.Start(id); err != nil {
		t.Fatalf("Start error: %v", err)
	}
}

func TestExecutorAutoRunCompletes(t *testing.T) {
	store := NewRunStore()
	client := &fakeBackend{}
	exec := NewRunExecutor(store, client, nil)

	startRun(t, store, exec, "auto", RunInput{TuningYAML: tuningYAML})
	exec.Wait()

	rec, _ := store.Get("auto")
	if rec.Run.Status != RunStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", rec.Run.Status, rec.Run.Error)
	}
	if rec.Report == nil || !rec.Report.Found {
		t.Fatalf("expected a report with a result")
	}
	if got := rec.Report.Snapshot["temperature"]; got != "0.6" {
		t.Fatalf("expected temperature 0.6 recommended, got %q", got)
	}
	if len(rec.Steps) == 0 || len(rec.Steps) != len(rec.Report.Steps) {
		t.Fatalf("journal must mirror report steps: %d vs %d", len(rec.Steps), len(rec.Report.Steps))
	}
	if rec.Steps[0].Axis[:len("[prompt 1] ")] != "[prompt 1] " {
		t.Fatalf("journal steps must carry the prompt prefix, got %q", rec.Steps[0].Axis)
	}
	summary := rec.Collector.GetSummary()
	if summary.Evaluations != len(rec.Report.Evaluations()) {
		t.Fatalf("collector saw %d evaluations, report has %d", summary.Evaluations, len(rec.Report.Evaluations()))
	}
}

func TestExecutorGridRun(t *testing.T) {
	store := NewRunStore()
	exec := NewRunExecutor(store, &fakeBackend{}, nil)

	startRun(t, store, exec, "grid", RunInput{Mode: ModeGrid, TuningYAML: tuningYAML})
	exec.Wait()

	rec, _ := store.Get("grid")
	if rec.Run.Status != RunStatusCompleted || rec.Grid == nil {
		t.Fatalf("expected completed grid run, got %s (%s)", rec.Run.Status, rec.Run.Error)
	}
	if len(rec.Grid.Entries) != 2 {
		t.Fatalf("expected 2 grid entries, got %d", len(rec.Grid.Entries))
	}
	best, ok := rec.Grid.Best()
	if !ok || best.Combination != "temperature=0.6" {
		t.Fatalf("unexpected best entry %+v", best)
	}
}

func TestExecutorFailsWithoutPrompt(t *testing.T) {
	store := NewRunStore()
	client := &fakeBackend{}
	exec := NewRunExecutor(store, client, nil)

	startRun(t, store, exec, "empty", RunInput{TuningYAML: "variations: \"temperature=0.5\""})
	exec.Wait()

	rec, _ := store.Get("empty")
	if rec.Run.Status != RunStatusFailed || rec.Run.Error == "" {
		t.Fatalf("expected failed run with error, got %+v", rec.Run)
	}
	if client.callCount() != 0 {
		t.Fatalf("no benchmark call expected, got %d", client.callCount())
	}
}

func TestExecutorSerializesAndStops(t *testing.T) {
	store := NewRunStore()
	client := &fakeBackend{gate: make(chan struct{})}
	exec := NewRunExecutor(store, client, nil)

	startRun(t, store, exec, "first", RunInput{TuningYAML: tuningYAML})
	waitFor(t, "first benchmark call", func() bool { return client.callCount() == 1 })

	startRun(t, store, exec, "second", RunInput{TuningYAML: tuningYAML})
	rec, _ := store.Get("second")
	if rec.Run.Status != RunStatusPending {
		t.Fatalf("second run must wait, got %s", rec.Run.Status)
	}

	if _, err := exec.Stop("second"); err != nil {
		t.Fatalf("Stop second error: %v", err)
	}
	if _, err := exec.Stop("first"); err != nil {
		t.Fatalf("Stop first error: %v", err)
	}
	exec.Wait()

	for _, id := range []string{"first", "second"} {
		rec, _ := store.Get(id)
		if rec.Run.Status != RunStatusCancelled {
			t.Fatalf("%s: expected cancelled, got %s", id, rec.Run.Status)
		}
	}
	if client.callCount() != 1 {
		t.Fatalf("expected a single benchmark call, got %d", client.callCount())
	}

	if _, err := exec.Stop("first"); !errors.Is(err, ErrRunTerminal) {
		t.Fatalf("expected ErrRunTerminal, got %v", err)
	}
	if _, err := exec.Start("first"); !errors.Is(err, ErrRunTerminal) {
		t.Fatalf("expected ErrRunTerminal on restart, got %v", err)
	}
}

func TestExecutorStartErrors(t *testing.T) {
	exec := NewRunExecutor(NewRunStore(), &fakeBackend{}, nil)
	if _, err := exec.Start(""); !errors.Is(err, ErrRunIDMissing) {
		t.Fatalf("expected ErrRunIDMissing, got %v", err)
	}
	if _, err := exec.Start("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if _, err := exec.Stop("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound on stop, got %v", err)
	}
}

func TestExecutorApply(t *testing.T) {
	store := NewRunStore()
	client := &fakeBackend{}
	exec := NewRunExecutor(store, client, nil)

	startRun(t, store, exec, "auto", RunInput{TuningYAML: tuningYAML})
	exec.Wait()

	form, result, err := exec.Apply(context.Background(), "auto", 0)
	if err != nil || !result.OK() {
		t.Fatalf("Apply failed: %v / %v", err, result.Err)
	}
	if form.Options[profile.FieldTemperature] != "0.6" {
		t.Fatalf("expected recommended form, got %+v", form.Options)
	}
	if len(client.patches) != 1 {
		t.Fatalf("expected one patch, got %d", len(client.patches))
	}
	if _, ok := client.patches[0][profile.SpeculativeSettingKey]; !ok {
		t.Fatalf("patch must carry %s", profile.SpeculativeSettingKey)
	}

	var rankErr *report.RankError
	if _, _, err := exec.Apply(context.Background(), "auto", 99); !errors.As(err, &rankErr) {
		t.Fatalf("expected RankError, got %v", err)
	}
	if _, _, err := exec.Apply(context.Background(), "missing", 0); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}

	if _, err := store.Create("idle", RunInput{}, nil); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if _, _, err := exec.Apply(context.Background(), "idle", 0); !errors.Is(err, ErrResultsNotAvailable) {
		t.Fatalf("expected ErrResultsNotAvailable, got %v", err)
	}
}

func TestExecutorApplyBackendError(t *testing.T) {
	store := NewRunStore()
	client := &fakeBackend{}
	exec := NewRunExecutor(store, client, nil)

	startRun(t, store, exec, "auto", RunInput{TuningYAML: tuningYAML})
	exec.Wait()

	client.applyErr = errors.New("read-only backend")
	_, result, err := exec.Apply(context.Background(), "auto", 1)
	if err != nil {
		t.Fatalf("unexpected selection error: %v", err)
	}
	if result.OK() || result.Patch == nil {
		t.Fatalf("expected failed apply with patch, got %+v", result)
	}
}

func TestExecutorShutdown(t *testing.T) {
	store := NewRunStore()
	client := &fakeBackend{gate: make(chan struct{})}
	exec := NewRunExecutor(store, client, nil)

	startRun(t, store, exec, "a", RunInput{TuningYAML: tuningYAML})
	waitFor(t, "benchmark call", func() bool { return client.callCount() == 1 })
	startRun(t, store, exec, "b", RunInput{TuningYAML: tuningYAML})

	exec.Shutdown()

	for _, id := range []string{"a", "b"} {
		rec, _ := store.Get(id)
		if rec.Run.Status != RunStatusCancelled {
			t.Fatalf("%s: expected cancelled, got %s", id, rec.Run.Status)
		}
	}
}
