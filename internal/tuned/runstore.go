package tuned

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/improvement"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/metrics"
	"github.com/GoSim-25-26J-441/profile-autotune/pkg/config"
	"github.com/GoSim-25-26J-441/profile-autotune/pkg/utils"
)

// RunStatus is the lifecycle state of a tuning run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// Mode selects the search strategy of a run.
type Mode string

const (
	ModeAuto Mode = "auto"
	ModeGrid Mode = "grid"
)

// RunInput is what a client submits to start a tuning run.
type RunInput struct {
	Mode           Mode   `json:"mode,omitempty"`
	TuningYAML     string `json:"tuning_yaml"`
	CallbackURL    string `json:"callback_url,omitempty"`
	CallbackSecret string `json:"callback_secret,omitempty"`
}

// Run is the externally visible state of a tuning run.
type Run struct {
	ID              string    `json:"id"`
	Mode            Mode      `json:"mode"`
	Status          RunStatus `json:"status"`
	CreatedAtUnixMs int64     `json:"created_at_unix_ms"`
	StartedAtUnixMs int64     `json:"started_at_unix_ms"`
	EndedAtUnixMs   int64     `json:"ended_at_unix_ms"`
	Error           string    `json:"error"`
}

type RunRecord struct {
	Run       Run
	Input     RunInput
	Tuning    *config.TuningConfig
	Report    *improvement.Report
	Grid      *improvement.GridReport
	Collector *metrics.Collector
	Steps     []improvement.Step
}

var errInvalidRunID = errors.New("run_id cannot contain '/', ':' or whitespace")

type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*RunRecord
}

func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]*RunRecord),
	}
}

func nowUnixMs() int64 {
	return time.Now().UTC().UnixMilli()
}

func (s *RunStore) Create(runID string, input RunInput, tuning *config.TuningConfig) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if runID == "" {
		runID = utils.GenerateRunID()
	}
	if strings.ContainsAny(runID, "/: \t\n") {
		return nil, errInvalidRunID
	}
	if _, exists := s.runs[runID]; exists {
		return nil, fmt.Errorf("run already exists: %s", runID)
	}
	if input.Mode == "" {
		input.Mode = ModeAuto
	}

	rec := &RunRecord{
		Run: Run{
			ID:              runID,
			Mode:            input.Mode,
			Status:          RunStatusPending,
			CreatedAtUnixMs: nowUnixMs(),
		},
		Input:  input,
		Tuning: tuning,
	}
	s.runs[runID] = rec
	return rec.clone(), nil
}

// Get returns a copy of the record; the journal slice is not shared.
func (s *RunStore) Get(runID string) (*RunRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID]
	if !ok {
		return nil, false
	}
	return rec.clone(), true
}

// ListFiltered returns runs ordered by creation time, optionally filtered by
// status ("" matches all).
func (s *RunStore) ListFiltered(limit, offset int, status RunStatus) []*RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	all := make([]*RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		if status != "" && rec.Run.Status != status {
			continue
		}
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Run.CreatedAtUnixMs != all[j].Run.CreatedAtUnixMs {
			return all[i].Run.CreatedAtUnixMs < all[j].Run.CreatedAtUnixMs
		}
		return all[i].Run.ID < all[j].Run.ID
	})

	if offset >= len(all) {
		return []*RunRecord{}
	}
	all = all[offset:]
	out := make([]*RunRecord, 0, minInt(limit, len(all)))
	for _, rec := range all[:minInt(limit, len(all))] {
		out = append(out, rec.clone())
	}
	return out
}

// SetStatus moves a run to status. Terminal runs keep their final status and
// ErrRunTerminal is returned.
func (s *RunStore) SetStatus(runID string, status RunStatus, errMsg string) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if rec.Run.Status.Terminal() {
		return rec.clone(), fmt.Errorf("%w: %s", ErrRunTerminal, runID)
	}

	rec.Run.Status = status
	if errMsg != "" {
		rec.Run.Error = errMsg
	}

	switch status {
	case RunStatusRunning:
		if rec.Run.StartedAtUnixMs == 0 {
			rec.Run.StartedAtUnixMs = nowUnixMs()
		}
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		rec.Run.EndedAtUnixMs = nowUnixMs()
	}

	return rec.clone(), nil
}

func (s *RunStore) SetReport(runID string, rep *improvement.Report) error {
	return s.update(runID, func(rec *RunRecord) { rec.Report = rep })
}

func (s *RunStore) SetGrid(runID string, grid *improvement.GridReport) error {
	return s.update(runID, func(rec *RunRecord) { rec.Grid = grid })
}

func (s *RunStore) SetCollector(runID string, c *metrics.Collector) error {
	return s.update(runID, func(rec *RunRecord) { rec.Collector = c })
}

// AppendStep adds a probe to the run journal.
func (s *RunStore) AppendStep(runID string, step improvement.Step) error {
	return s.update(runID, func(rec *RunRecord) { rec.Steps = append(rec.Steps, step) })
}

// StepsSince returns journal entries from index from onwards together with
// the current run state.
func (s *RunStore) StepsSince(runID string, from int) ([]improvement.Step, Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.runs[runID]
	if !ok {
		return nil, Run{}, false
	}
	if from < 0 {
		from = 0
	}
	if from >= len(rec.Steps) {
		return nil, rec.Run, true
	}
	out := make([]improvement.Step, len(rec.Steps)-from)
	copy(out, rec.Steps[from:])
	return out, rec.Run, true
}

func (s *RunStore) update(runID string, fn func(*RunRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	fn(rec)
	return nil
}

func (r *RunRecord) clone() *RunRecord {
	out := *r
	out.Steps = append([]improvement.Step(nil), r.Steps...)
	return &out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
