package store

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heysubinoy/flagstore/pkg/kv"
)

type bufferSink struct {
	bytes.Buffer
	cancelled bool
}

func (s *bufferSink) ID() string    { return "test" }
func (s *bufferSink) Close() error  { return nil }
func (s *bufferSink) Cancel() error { s.cancelled = true; return nil }

func TestFSMSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	local := NewMemBackend()
	fsm := NewFSM(local)

	_, err := local.Exec(ctx, kv.SetNX("k", "v"), kv.SAdd("idx", "k"))
	require.NoError(t, err)

	snap, err := fsm.Snapshot()
	require.NoError(t, err)
	sink := &bufferSink{}
	require.NoError(t, snap.Persist(sink))
	snap.Release()
	assert.False(t, sink.cancelled)

	restored := NewMemBackend()
	require.NoError(t, NewFSM(restored).Restore(io.NopCloser(&sink.Buffer)))

	val, found, err := restored.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", val)
	members, err := restored.SMembers(ctx, "idx")
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, members)
}

func TestFSMApplyRejectsGarbage(t *testing.T) {
	fsm := NewFSM(NewMemBackend())

	_, isErr := fsm.Apply(&raft.Log{Data: []byte("{")}).(error)
	assert.True(t, isErr)
	_, isErr = fsm.Apply(&raft.Log{Data: []byte(`{"op":"drop"}`)}).(error)
	assert.True(t, isErr)
}

func TestFSMApplySet(t *testing.T) {
	ctx := context.Background()
	local := NewMemBackend()
	fsm := NewFSM(local)

	data, err := json.Marshal(raftCommand{Op: "set", Key: "k", Value: "v"})
	require.NoError(t, err)
	assert.Nil(t, fsm.Apply(&raft.Log{Data: data}))

	val, found, err := local.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", val)
}

func TestFSMApplyExecWrongType(t *testing.T) {
	ctx := context.Background()
	local := NewMemBackend()
	require.NoError(t, local.Set(ctx, "idx", "not-a-set"))
	fsm := NewFSM(local)

	data, err := json.Marshal(raftCommand{Op: "exec", Ops: []kv.Op{kv.SetNX("k", "v"), kv.SAdd("idx", "k")}})
	require.NoError(t, err)
	resp := fsm.Apply(&raft.Log{Data: data})
	err, isErr := resp.(error)
	require.True(t, isErr)
	assert.ErrorIs(t, err, kv.ErrWrongType)

	_, found, err := local.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestApplyTimeout(t *testing.T) {
	timeout, err := applyTimeout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, defaultApplyTimeout, timeout)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	timeout, err = applyTimeout(ctx)
	require.NoError(t, err)
	assert.Greater(t, timeout, time.Duration(0))
	assert.LessOrEqual(t, timeout, time.Minute)

	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	_, err = applyTimeout(expired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRaftBackendReplicatesExec(t *testing.T) {
	ctx := context.Background()
	backend := newTestRaft(t)

	results, err := backend.Exec(ctx, kv.SetNX("k", "v"), kv.SAdd("idx", "k"))
	require.NoError(t, err)
	assert.Equal(t, []kv.Result{{Applied: true}, {Applied: true}}, results)

	results, err = backend.Exec(ctx, kv.SetNX("k", "other"))
	require.NoError(t, err)
	assert.False(t, results[0].Applied)

	val, _, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	_, err = backend.Exec(ctx, kv.Op{Kind: "incr", Key: "k"})
	assert.Error(t, err)
}

func TestRaftBackendHonoursCancelledContext(t *testing.T) {
	backend := newTestRaft(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, backend.Set(ctx, "k", "v"), context.Canceled)

	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	_, err := backend.Exec(expired, kv.SetNX("k", "v"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, found, err := backend.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOpenRaftNode(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a TCP raft node")
	}
	ctx := context.Background()
	dir := t.TempDir()

	node, err := OpenRaftNode(RaftNodeConfig{
		NodeID:    "node-1",
		BindAddr:  "127.0.0.1:0",
		DataDir:   dir,
		Bootstrap: true,
	}, testLogger(t))
	require.NoError(t, err)
	defer node.Close()

	require.Eventually(t, func() bool { return node.Raft.State() == raft.Leader }, 10*time.Second, 20*time.Millisecond)

	fs := New(node.Backend, Options{Prefix: testPrefix})
	require.NoError(t, fs.CreateFlag(ctx, betaFlag()))
	got, found, err := fs.GetFlag(ctx, "beta", betaFlag().Environment)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, betaFlag(), got)
	assert.FileExists(t, dir+"/raft.db")
}
