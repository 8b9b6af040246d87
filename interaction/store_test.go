package interaction

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	return NewStore(filepath.Join(dir, "pending_task.json")), dir
}

func writeTaskFiles(t *testing.T, dir, id string) Task {
	t.Helper()
	reqFile := filepath.Join(dir, "mcp_request_"+id+".json")
	if err := os.WriteFile(reqFile, []byte(`{"id":"`+id+`"}`), 0644); err != nil {
		t.Fatal(err)
	}
	return Task{
		ID:           id,
		RequestFile:  reqFile,
		ResponseFile: filepath.Join(dir, "mcp_response_"+id+".json"),
		CreatedAt:    time.Now(),
	}
}

func alwaysAlive(int) bool { return true }
func neverAlive(int) bool  { return false }

func TestClaimReservesSingleSlot(t *testing.T) {
	s, dir := newTestStore(t)
	first := writeTaskFiles(t, dir, "task-1")
	second := writeTaskFiles(t, dir, "task-2")

	if !s.Claim(first) {
		t.Fatal("first Claim should succeed")
	}
	if s.Claim(second) {
		t.Fatal("second Claim should fail while a task is pending")
	}
	if got := s.PendingIDs(); len(got) != 1 || got[0] != "task-1" {
		t.Errorf("PendingIDs = %v", got)
	}
}

func TestCommitPersistsRecord(t *testing.T) {
	s, dir := newTestStore(t)
	task := writeTaskFiles(t, dir, "task-1")

	if !s.Claim(task) {
		t.Fatal("Claim failed")
	}
	if err := s.Commit(task.ID, 4242); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	data, err := os.ReadFile(s.RecordPath())
	if err != nil {
		t.Fatalf("record not written: %v", err)
	}
	var rec struct {
		TaskID string `json:"task_id"`
		UIPID  int    `json:"ui_pid"`
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("record not valid JSON: %v", err)
	}
	if rec.TaskID != task.ID || rec.UIPID != 4242 {
		t.Errorf("record = %+v", rec)
	}
}

func TestAbortLeavesNoTrace(t *testing.T) {
	s, dir := newTestStore(t)
	task := writeTaskFiles(t, dir, "task-1")

	s.Claim(task)
	if err := s.Commit(task.ID, 4242); err != nil {
		t.Fatal(err)
	}
	s.Abort(task.ID)

	if got := s.PendingIDs(); len(got) != 0 {
		t.Errorf("PendingIDs = %v, want empty", got)
	}
	if _, err := os.Stat(s.RecordPath()); !os.IsNotExist(err) {
		t.Error("record file should be removed")
	}
}

func TestResolveClearsRecord(t *testing.T) {
	s, dir := newTestStore(t)
	task := writeTaskFiles(t, dir, "task-1")

	s.Claim(task)
	if err := s.Commit(task.ID, 4242); err != nil {
		t.Fatal(err)
	}
	s.Resolve(task.ID)

	if _, ok := s.Get(task.ID); ok {
		t.Error("resolved task should not be gettable")
	}
	if _, err := os.Stat(s.RecordPath()); !os.IsNotExist(err) {
		t.Error("record file should be removed")
	}
}

func TestGetAdoptsRecordAfterRestart(t *testing.T) {
	s, dir := newTestStore(t)
	task := writeTaskFiles(t, dir, "task-1")

	s.Claim(task)
	if err := s.Commit(task.ID, 4242); err != nil {
		t.Fatal(err)
	}

	// Fresh store, same record path: simulates a server restart.
	restarted := NewStore(s.RecordPath())
	got, ok := restarted.Get(task.ID)
	if !ok {
		t.Fatal("Get should adopt the task from the durable record")
	}
	if got.UIPID != 4242 || got.RequestFile != task.RequestFile {
		t.Errorf("adopted task = %+v", got)
	}
}

func TestReconcileAdoptsRecord(t *testing.T) {
	s, dir := newTestStore(t)
	task := writeTaskFiles(t, dir, "task-1")
	s.Claim(task)
	if err := s.Commit(task.ID, 4242); err != nil {
		t.Fatal(err)
	}

	restarted := NewStore(s.RecordPath())
	existing, discarded := restarted.Reconcile(alwaysAlive)
	if existing == nil || existing.ID != task.ID {
		t.Fatalf("existing = %+v", existing)
	}
	if len(discarded) != 0 {
		t.Errorf("discarded = %+v", discarded)
	}
}

func TestReconcileDiscardsDeadTask(t *testing.T) {
	s, dir := newTestStore(t)
	task := writeTaskFiles(t, dir, "task-1")
	s.Claim(task)
	if err := s.Commit(task.ID, 4242); err != nil {
		t.Fatal(err)
	}

	existing, discarded := s.Reconcile(neverAlive)
	if existing != nil {
		t.Errorf("existing = %+v, want nil", existing)
	}
	if len(discarded) != 1 || discarded[0].ID != task.ID {
		t.Fatalf("discarded = %+v", discarded)
	}
	if _, err := os.Stat(s.RecordPath()); !os.IsNotExist(err) {
		t.Error("record of discarded task should be removed")
	}
}

func TestReconcileSkipsInFlightClaim(t *testing.T) {
	s, dir := newTestStore(t)
	task := writeTaskFiles(t, dir, "task-1")
	s.Claim(task) // no Commit: UIPID stays 0

	existing, discarded := s.Reconcile(neverAlive)
	if existing == nil || existing.ID != task.ID {
		t.Fatalf("in-flight claim should survive the sweep, got existing=%+v", existing)
	}
	if len(discarded) != 0 {
		t.Errorf("discarded = %+v", discarded)
	}
}

func TestReconcileDropsRecordWithoutPID(t *testing.T) {
	s, dir := newTestStore(t)
	task := writeTaskFiles(t, dir, "task-1")
	s.Claim(task)
	if err := s.Commit(task.ID, 0); err != nil {
		t.Fatal(err)
	}

	restarted := NewStore(s.RecordPath())
	existing, discarded := restarted.Reconcile(alwaysAlive)
	if existing != nil {
		t.Errorf("pidless record should be unrecoverable, got %+v", existing)
	}
	if len(discarded) != 1 {
		t.Fatalf("discarded = %+v", discarded)
	}
	if _, err := os.Stat(s.RecordPath()); !os.IsNotExist(err) {
		t.Error("pidless record should be removed")
	}
}

func TestLoadRecordIgnoresStaleRequestFile(t *testing.T) {
	s, dir := newTestStore(t)
	task := writeTaskFiles(t, dir, "task-1")
	s.Claim(task)
	if err := s.Commit(task.ID, 4242); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(task.RequestFile); err != nil {
		t.Fatal(err)
	}

	restarted := NewStore(s.RecordPath())
	if _, ok := restarted.Get(task.ID); ok {
		t.Error("record pointing at a missing request file should be ignored")
	}
	if _, err := os.Stat(s.RecordPath()); !os.IsNotExist(err) {
		t.Error("stale record should be removed")
	}
}

func TestLoadRecordIgnoresCorruptFile(t *testing.T) {
	s, _ := newTestStore(t)
	if err := os.WriteFile(s.RecordPath(), []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get("anything"); ok {
		t.Error("corrupt record should be ignored")
	}
}
