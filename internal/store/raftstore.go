package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/raft"

	"github.com/heysubinoy/flagstore/pkg/kv"
)

// defaultApplyTimeout bounds a raft.Apply when the context has no deadline.
const defaultApplyTimeout = 10 * time.Second

// raftCommand is one write replicated through the Raft log.
type raftCommand struct {
	Op    string  `json:"op"` // "set" or "exec"
	Key   string  `json:"key,omitempty"`
	Value string  `json:"value,omitempty"`
	Ops   []kv.Op `json:"ops,omitempty"`
}

// FSM applies committed Raft log entries to a local MemBackend.
type FSM struct {
	store *MemBackend
}

var _ raft.FSM = (*FSM)(nil)

// NewFSM returns an FSM that replicates into store.
func NewFSM(store *MemBackend) *FSM {
	return &FSM{store: store}
}

// Apply applies a Raft log entry to the local store. An exec command is
// applied under a single lock and its results are returned to the proposer.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd raftCommand
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return err
	}
	switch cmd.Op {
	case "set":
		if err := f.store.Set(context.Background(), cmd.Key, cmd.Value); err != nil {
			return err
		}
		return nil
	case "exec":
		results, err := f.store.Exec(context.Background(), cmd.Ops...)
		if err != nil {
			return err
		}
		return results
	default:
		return fmt.Errorf("unknown raft command %q", cmd.Op)
	}
}

// Snapshot captures the full local state.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{state: f.store.snapshot()}, nil
}

// Restore replaces the local state with a snapshot written by Persist.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var st memState
	if err := json.NewDecoder(rc).Decode(&st); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	f.store.restore(st)
	return nil
}

type fsmSnapshot struct {
	state memState
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s.state); err != nil {
		_ = sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}

// RaftBackend submits writes through Raft consensus and serves reads from
// the local replica. Writes on a follower fail with raft.ErrNotLeader.
type RaftBackend struct {
	store *MemBackend
	raft  *raft.Raft
}

var _ kv.Backend = (*RaftBackend)(nil)

// NewRaftBackend pairs the replica that r's FSM applies into with r.
func NewRaftBackend(store *MemBackend, r *raft.Raft) *RaftBackend {
	return &RaftBackend{store: store, raft: r}
}

// Raft returns the underlying raft.Raft (for API layer leader checks).
func (rs *RaftBackend) Raft() *raft.Raft {
	return rs.raft
}

// applyTimeout derives the raft.Apply timeout from ctx. An expired deadline
// is reported as context.DeadlineExceeded; raft treats a zero timeout as
// "wait forever".
func applyTimeout(ctx context.Context) (time.Duration, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return defaultApplyTimeout, nil
	}
	timeout := time.Until(deadline)
	if timeout <= 0 {
		return 0, context.DeadlineExceeded
	}
	return timeout, nil
}

// apply proposes cmd and waits for it to be applied locally. If ctx ends
// after the entry was enqueued, apply returns ctx.Err() but the entry may
// still commit.
func (rs *RaftBackend) apply(ctx context.Context, cmd raftCommand) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout, err := applyTimeout(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}

	f := rs.raft.Apply(data, timeout)
	done := make(chan error, 1)
	go func() { done <- f.Error() }()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return nil, err
		}
	}
	if err, ok := f.Response().(error); ok {
		return nil, err
	}
	return f.Response(), nil
}

// Set submits a set command to Raft.
func (rs *RaftBackend) Set(ctx context.Context, key, value string) error {
	_, err := rs.apply(ctx, raftCommand{Op: "set", Key: key, Value: value})
	return err
}

// Exec submits the whole transaction as one log entry.
func (rs *RaftBackend) Exec(ctx context.Context, ops ...kv.Op) ([]kv.Result, error) {
	for _, op := range ops {
		if err := validateOp(op); err != nil {
			return nil, err
		}
	}
	resp, err := rs.apply(ctx, raftCommand{Op: "exec", Ops: ops})
	if err != nil {
		return nil, err
	}
	results, ok := resp.([]kv.Result)
	if !ok {
		return nil, fmt.Errorf("unexpected raft response %T", resp)
	}
	return results, nil
}

// Get reads directly from the local store.
func (rs *RaftBackend) Get(ctx context.Context, key string) (string, bool, error) {
	return rs.store.Get(ctx, key)
}

// MGet reads directly from the local store.
func (rs *RaftBackend) MGet(ctx context.Context, keys ...string) ([]kv.Value, error) {
	return rs.store.MGet(ctx, keys...)
}

// SMembers reads directly from the local store.
func (rs *RaftBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	return rs.store.SMembers(ctx, key)
}
