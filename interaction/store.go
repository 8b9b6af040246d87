package interaction

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// recordFileName is the single-slot durable record in the OS temp dir. A
// freshly started server process reads it to rediscover a task left pending
// by a previous process.
const recordFileName = "handoff_mcp_pending_task.json"

// DefaultRecordPath returns the default location of the durable pending
// record.
func DefaultRecordPath() string {
	return filepath.Join(os.TempDir(), recordFileName)
}

// Store holds pending tasks in memory, protected by a mutex, and mirrors the
// most recent pending task to the durable record. It is injected into the
// Coordinator at construction so tests can instantiate isolated coordinators;
// there is no package-level state.
//
// The lock is held only for map and record-slot operations — never across
// request/response file I/O, process spawning, or the poll wait loop.
type Store struct {
	mu         sync.Mutex
	tasks      map[string]*Task
	recordPath string
}

// NewStore creates an empty task store. recordPath overrides the durable
// record location; empty means DefaultRecordPath.
func NewStore(recordPath string) *Store {
	if recordPath == "" {
		recordPath = DefaultRecordPath()
	}
	return &Store{
		tasks:      make(map[string]*Task),
		recordPath: recordPath,
	}
}

// RecordPath returns the durable record location.
func (s *Store) RecordPath() string {
	return s.recordPath
}

// record is the serialized single-slot durable form of a pending task.
type record struct {
	TaskID       string `json:"task_id"`
	RequestFile  string `json:"request_file"`
	ResponseFile string `json:"response_file"`
	UIPID        int    `json:"ui_pid,omitempty"`
}

// loadRecord reads and validates the durable record. Returns nil if the
// record is missing, unreadable, or points at a request file that no longer
// exists (in which case the stale record file is removed). Caller must hold mu.
func (s *Store) loadRecord() *record {
	data, err := os.ReadFile(s.recordPath)
	if err != nil {
		return nil
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		os.Remove(s.recordPath)
		return nil
	}
	if _, err := os.Stat(rec.RequestFile); err != nil {
		os.Remove(s.recordPath)
		return nil
	}
	return &rec
}

// saveRecord writes the durable record. Caller must hold mu — the record is a
// process-wide single slot, so its update has to be serialized with the map
// mutation it mirrors or two near-simultaneous starts could lose an update.
func (s *Store) saveRecord(t *Task) error {
	data, err := json.Marshal(record{
		TaskID:       t.ID,
		RequestFile:  t.RequestFile,
		ResponseFile: t.ResponseFile,
		UIPID:        t.UIPID,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(s.recordPath, data, 0644)
}

// clearRecordIfMatches removes the durable record when it references taskID.
// Caller must hold mu.
func (s *Store) clearRecordIfMatches(taskID string) {
	rec := s.loadRecord()
	if rec != nil && rec.TaskID == taskID {
		os.Remove(s.recordPath)
	}
}

// Reconcile brings the store up to date and returns the surviving pending
// task, if any, plus the tasks that were discarded as stale (their temp files
// still need cleanup by the caller, outside the lock).
//
// Steps, mirroring what a start call needs:
//  1. If the store is empty, adopt the durable record — unless it carries no
//     UI pid, in which case it is unrecoverable and is dropped (the discarded
//     task is returned for file cleanup).
//  2. Discard pending tasks whose UI process is no longer alive.
//  3. Return the first remaining pending task.
//
// Tasks with UIPID == 0 in memory are launches in progress (claimed but not
// yet committed) and are never discarded by the liveness sweep.
func (s *Store) Reconcile(alive func(pid int) bool) (existing *Task, discarded []Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tasks) == 0 {
		if rec := s.loadRecord(); rec != nil {
			t := Task{
				ID:           rec.TaskID,
				RequestFile:  rec.RequestFile,
				ResponseFile: rec.ResponseFile,
				UIPID:        rec.UIPID,
			}
			if rec.UIPID == 0 {
				// No pid means liveness can never be established: a record
				// discovered with no in-memory backing is unrecoverable.
				os.Remove(s.recordPath)
				discarded = append(discarded, t)
				return nil, discarded
			}
			s.tasks[t.ID] = &t
		}
	}

	for id, t := range s.tasks {
		if t.UIPID == 0 {
			continue
		}
		if !alive(t.UIPID) {
			discarded = append(discarded, *t)
			delete(s.tasks, id)
			s.clearRecordIfMatches(id)
		}
	}

	for _, t := range s.tasks {
		pending := *t
		return &pending, discarded
	}
	return nil, discarded
}

// Claim inserts a new pending task before its UI is launched, reserving the
// single pending slot so a concurrent start cannot launch a second UI.
// Returns false if another pending task already holds the slot.
func (s *Store) Claim(t Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tasks) > 0 {
		return false
	}
	s.tasks[t.ID] = &t
	return true
}

// Commit records the spawned UI pid for a claimed task and persists the
// durable record.
func (s *Store) Commit(taskID string, pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return nil
	}
	t.UIPID = pid
	return s.saveRecord(t)
}

// Abort removes a claimed task whose launch failed, leaving no trace.
func (s *Store) Abort(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tasks, taskID)
	s.clearRecordIfMatches(taskID)
}

// Get returns a copy of the task, adopting it from the durable record if it
// is not in memory (e.g. the server restarted between start and poll).
func (s *Store) Get(taskID string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tasks[taskID]; ok {
		return *t, true
	}

	rec := s.loadRecord()
	if rec == nil || rec.TaskID != taskID {
		return Task{}, false
	}
	t := &Task{
		ID:           rec.TaskID,
		RequestFile:  rec.RequestFile,
		ResponseFile: rec.ResponseFile,
		UIPID:        rec.UIPID,
	}
	s.tasks[t.ID] = t
	return *t, true
}

// Resolve removes a task that reached a terminal state and clears the durable
// record if it references it.
func (s *Store) Resolve(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tasks, taskID)
	s.clearRecordIfMatches(taskID)
}

// PendingIDs returns the ids of all tasks currently held in memory.
func (s *Store) PendingIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	return ids
}
