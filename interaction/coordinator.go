package interaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/zhubert/handoff/config"
	"github.com/zhubert/handoff/logger"
)

// ErrTaskNotFound is returned by Poll for an id that is neither in the store
// nor recoverable from the durable record.
var ErrTaskNotFound = errors.New("task not found")

// Environment variables bounding a single poll call's wait, in milliseconds.
// HANDOFF_POLL_WAIT_MS is canonical; the rest are deprecated aliases checked
// in order. 0 or unset falls through to the configured interaction wait.
var waitEnvVars = []string{
	"HANDOFF_POLL_WAIT_MS",
	"MCP_POLL_WAIT_MS",
	"HANDOFF_GET_RESULT_WAIT_MS",
	"MCP_GET_RESULT_WAIT_MS",
}

// defaultTick is the poll loop interval.
const defaultTick = 200 * time.Millisecond

// defaultProbeInterval spaces out liveness checks inside the poll loop. The
// windows probe shells out to tasklist, so it runs at most once per second
// there; elsewhere the probe is a cheap syscall and runs every tick.
func defaultProbeInterval() time.Duration {
	if runtime.GOOS == "windows" {
		return time.Second
	}
	return 0
}

// Prober checks whether a spawned UI process is still alive.
type Prober interface {
	Alive(pid int) bool
}

// Launcher resolves and spawns the UI executable, detached. It returns the
// spawned pid and the resolved executable path.
type Launcher interface {
	Launch(requestFile, responseFile, logFile string) (pid int, uiPath string, err error)
}

// HistorySink receives answered interactions, best-effort. Failures are
// logged and never block returning the answer.
type HistorySink interface {
	Save(req *Request, response json.RawMessage) error
}

// OutcomeKind tags what a coordinator operation concluded.
type OutcomeKind int

const (
	// OutcomeStarted: a new task was registered and its UI launched.
	OutcomeStarted OutcomeKind = iota
	// OutcomeExisting: a pending task already existed; its id is returned
	// unchanged and no second UI is launched.
	OutcomeExisting
	// OutcomeAnswered: the human replied; Parts carries the answer.
	OutcomeAnswered
	// OutcomeCancelled: the human cancelled from within the dialog.
	OutcomeCancelled
	// OutcomePending: the wait budget ran out before the human answered.
	OutcomePending
	// OutcomeAbandoned: the UI process exited without writing a response.
	OutcomeAbandoned
)

// Outcome is the result of a coordinator operation. Soft conditions (pending,
// abandoned, cancelled) are outcomes, not errors: the consumer is an agent
// that needs to be told in natural language what to do next.
type Outcome struct {
	Kind          OutcomeKind
	TaskID        string
	UIPath        string        // resolved UI executable (Started only)
	Parts         []Part        // answer content (Answered/Cancelled only)
	Waited        time.Duration // how long the poll waited (Pending only)
	MaxWaitMS     int           // effective budget, 0 = unbounded (Pending only)
	UILogFile     string        // per-task UI log path, for diagnostics
	ServerLogFile string        // server log path, for diagnostics
}

// Coordinator orchestrates the start / poll / consume protocol: it enforces
// at-most-one pending interaction per process, launches the UI through the
// injected Launcher, and resolves overlapping start attempts deterministically
// via the Store's single pending slot.
type Coordinator struct {
	store      *Store
	launcher   Launcher
	prober     Prober
	history    HistorySink
	loadConfig func() (*config.Config, error)
	tempDir    string
	tick       time.Duration
	probeEvery time.Duration
	log        *slog.Logger
}

// Option is a functional option for configuring a Coordinator.
type Option func(*Coordinator)

// WithHistory sets the history sink.
func WithHistory(h HistorySink) Option {
	return func(c *Coordinator) { c.history = h }
}

// WithConfigLoader overrides how the coordinator reads config. The loader is
// invoked fresh on each poll so runtime config changes take effect without a
// restart.
func WithConfigLoader(load func() (*config.Config, error)) Option {
	return func(c *Coordinator) { c.loadConfig = load }
}

// WithTempDir overrides where request/response/log files are created.
func WithTempDir(dir string) Option {
	return func(c *Coordinator) { c.tempDir = dir }
}

// WithTick overrides the poll loop interval. This is intended for testing.
func WithTick(d time.Duration) Option {
	return func(c *Coordinator) { c.tick = d }
}

// WithProbeInterval overrides the minimum spacing between liveness probes.
func WithProbeInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.probeEvery = d }
}

// NewCoordinator creates a Coordinator around the given store, launcher, and
// liveness prober.
func NewCoordinator(store *Store, launcher Launcher, prober Prober, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:      store,
		launcher:   launcher,
		prober:     prober,
		loadConfig: config.Load,
		tempDir:    os.TempDir(),
		tick:       defaultTick,
		probeEvery: defaultProbeInterval(),
		log:        logger.WithComponent("interaction"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestFilePath returns the request file path for a task id.
func (c *Coordinator) RequestFilePath(taskID string) string {
	return filepath.Join(c.tempDir, "mcp_request_"+taskID+".json")
}

// ResponseFilePath returns the response file path for a task id.
func (c *Coordinator) ResponseFilePath(taskID string) string {
	return filepath.Join(c.tempDir, "mcp_response_"+taskID+".json")
}

// UILogFilePath returns the per-task UI log file path.
func (c *Coordinator) UILogFilePath(taskID string) string {
	return filepath.Join(c.tempDir, "handoff_ui_mcp_"+taskID+".log")
}

// cleanupTaskFiles removes a task's temp files. Idempotent.
func (c *Coordinator) cleanupTaskFiles(t Task) {
	os.Remove(t.RequestFile)
	os.Remove(t.ResponseFile)
}

// reconcile refreshes the store against reality and cleans up files of any
// tasks the sweep discarded. Returns the surviving pending task, if any.
func (c *Coordinator) reconcile() *Task {
	existing, discarded := c.store.Reconcile(c.prober.Alive)
	for _, t := range discarded {
		c.log.Info("discarding abandoned task", "taskID", t.ID, "pid", t.UIPID)
		c.cleanupTaskFiles(t)
	}
	return existing
}

// Start begins a new interaction, or returns the id of the pending one if a
// dialog is already open. It never blocks on the human: the caller is
// expected to follow up with Poll.
func (c *Coordinator) Start(ctx context.Context, req Request) (*Outcome, error) {
	if existing := c.reconcile(); existing != nil {
		c.log.Debug("start found existing pending task", "taskID", existing.ID)
		return &Outcome{Kind: OutcomeExisting, TaskID: existing.ID}, nil
	}

	taskID := uuid.NewString()
	req.ID = taskID

	task := Task{
		ID:           taskID,
		RequestFile:  c.RequestFilePath(taskID),
		ResponseFile: c.ResponseFilePath(taskID),
		CreatedAt:    time.Now(),
	}

	// Reserve the single pending slot before touching the filesystem so a
	// concurrent start cannot launch a second UI.
	if !c.store.Claim(task) {
		if existing := c.reconcile(); existing != nil {
			return &Outcome{Kind: OutcomeExisting, TaskID: existing.ID}, nil
		}
		return nil, fmt.Errorf("pending slot contention, retry")
	}

	outcome, err := c.launch(task, req)
	if err != nil {
		c.store.Abort(taskID)
		c.cleanupTaskFiles(task)
		return nil, err
	}
	return outcome, nil
}

// launch writes the request file, spawns the UI, and commits the task.
func (c *Coordinator) launch(task Task, req Request) (*Outcome, error) {
	// Clear any stale response before the request file becomes visible.
	os.Remove(task.ResponseFile)

	if req.ContinuePrompt == "" {
		if cfg, err := c.loadConfig(); err == nil {
			req.ContinuePrompt = cfg.GetContinuePrompt()
		}
	}

	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	if err := os.WriteFile(task.RequestFile, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write request file: %w", err)
	}

	uiLogFile := c.UILogFilePath(task.ID)
	pid, uiPath, err := c.launcher.Launch(task.RequestFile, task.ResponseFile, uiLogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to launch UI: %w", err)
	}

	if err := c.store.Commit(task.ID, pid); err != nil {
		c.log.Warn("failed to persist pending record", "taskID", task.ID, "error", err)
	}

	c.log.Info("interaction started", "taskID", task.ID, "pid", pid, "ui", uiPath)
	return &Outcome{
		Kind:      OutcomeStarted,
		TaskID:    task.ID,
		UIPath:    uiPath,
		UILogFile: uiLogFile,
	}, nil
}

// resolveWaitBudget determines the maximum wait for one poll call: env
// override first (aliases in documented order), then the configured
// interaction wait. 0 means wait forever.
func (c *Coordinator) resolveWaitBudget() int {
	for _, name := range waitEnvVars {
		if v := os.Getenv(name); v != "" {
			if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
				return ms
			}
		}
	}
	cfg, err := c.loadConfig()
	if err != nil {
		c.log.Warn("failed to load config for wait budget", "error", err)
		return 0
	}
	return cfg.GetInteractionWaitMS()
}

// Poll waits, bounded, for the human's answer to taskID. It returns:
//   - OutcomeAnswered / OutcomeCancelled with content parts once the response
//     file is non-empty (task resolved, files cleaned up);
//   - OutcomeAbandoned if the UI process exited without answering (task
//     resolved, files cleaned up);
//   - OutcomePending if the wait budget ran out (task untouched).
//
// The wait is cooperative: the loop sleeps in short ticks and honors ctx.
func (c *Coordinator) Poll(ctx context.Context, taskID string) (*Outcome, error) {
	task, ok := c.store.Get(taskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	maxWaitMS := c.resolveWaitBudget()
	var deadline time.Time
	if maxWaitMS > 0 {
		deadline = time.Now().Add(time.Duration(maxWaitMS) * time.Millisecond)
	}

	start := time.Now()
	log := logger.WithTask(taskID)

	var lastProbe time.Time
	for {
		// A zero pid is a launch still in flight: a concurrent start has
		// claimed the slot but not yet committed its spawned pid. Re-read
		// until the commit lands; if the task vanished instead, the launch
		// was aborted.
		if task.UIPID == 0 {
			t, ok := c.store.Get(task.ID)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, task.ID)
			}
			task = t
		}

		if raw, err := os.ReadFile(task.ResponseFile); err == nil {
			decoded := DecodeResponse(raw)
			if decoded.State != ResponseEmpty {
				return c.consume(task, decoded, log), nil
			}
		}

		if task.UIPID != 0 && time.Since(lastProbe) >= c.probeEvery {
			lastProbe = time.Now()
			if !c.prober.Alive(task.UIPID) {
				log.Info("ui exited without response", "pid", task.UIPID)
				c.cleanupTaskFiles(task)
				c.store.Resolve(task.ID)
				return &Outcome{
					Kind:          OutcomeAbandoned,
					TaskID:        task.ID,
					UILogFile:     c.UILogFilePath(task.ID),
					ServerLogFile: logger.Path(),
				}, nil
			}
		}

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return &Outcome{
				Kind:          OutcomePending,
				TaskID:        task.ID,
				Waited:        time.Since(start),
				MaxWaitMS:     maxWaitMS,
				UILogFile:     c.UILogFilePath(task.ID),
				ServerLogFile: logger.Path(),
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.tick):
		}
	}
}

// consume turns a non-empty decoded response into the final outcome: saves
// history (best-effort), removes the temp files and the store entry, and
// builds the content parts. The answer is surfaced exactly once.
func (c *Coordinator) consume(task Task, decoded Decoded, log *slog.Logger) *Outcome {
	c.saveHistory(task, decoded)

	parts := BuildParts(decoded)

	c.cleanupTaskFiles(task)
	c.store.Resolve(task.ID)

	kind := OutcomeAnswered
	if decoded.State == ResponseCancelled {
		kind = OutcomeCancelled
	}
	log.Info("interaction resolved", "cancelled", kind == OutcomeCancelled)
	return &Outcome{Kind: kind, TaskID: task.ID, Parts: parts}
}

// saveHistory forwards an answered interaction to the history sink. Empty and
// cancelled responses are not journaled. Failures are logged only.
func (c *Coordinator) saveHistory(task Task, decoded Decoded) {
	if c.history == nil {
		return
	}
	if decoded.State != ResponseAnswered && decoded.State != ResponseRaw && decoded.State != ResponseMalformed {
		return
	}

	var req *Request
	if data, err := os.ReadFile(task.RequestFile); err == nil {
		var r Request
		if err := json.Unmarshal(data, &r); err == nil {
			req = &r
		}
	}

	if err := c.history.Save(req, json.RawMessage(decoded.Raw)); err != nil {
		c.log.Warn("failed to save history entry", "taskID", task.ID, "error", err)
	}
}

// Sync composes Start and Poll: if a dialog is already pending it polls that
// task, otherwise it starts a new one and polls it.
func (c *Coordinator) Sync(ctx context.Context, req Request) (*Outcome, error) {
	if existing := c.reconcile(); existing != nil {
		return c.Poll(ctx, existing.ID)
	}

	outcome, err := c.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.Poll(ctx, outcome.TaskID)
}
