package store

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// RaftNodeConfig describes a durable Raft node.
type RaftNodeConfig struct {
	NodeID   string
	BindAddr string
	DataDir  string
	// Bootstrap forms a new cluster of Peers (or of this node alone when
	// Peers is empty). Ignored if the data dir already holds state.
	Bootstrap bool
	Peers     []raft.Server
}

// RaftNode is a running Raft node with its replicated backend.
type RaftNode struct {
	Raft    *raft.Raft
	Backend *RaftBackend

	logStore *raftboltdb.BoltStore
}

// OpenRaftNode starts a Raft node persisting its log in BoltDB under
// cfg.DataDir.
func OpenRaftNode(cfg RaftNodeConfig, logger hclog.Logger) (*RaftNode, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create raft data dir: %w", err)
	}

	conf := raft.DefaultConfig()
	conf.LocalID = raft.ServerID(cfg.NodeID)
	conf.Logger = logger

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve raft addr: %w", err)
	}
	// An ephemeral port is only known once bound; let the transport
	// advertise the listener address in that case.
	var advertise net.Addr
	if addr.Port != 0 {
		advertise = addr
	}
	trans, err := raft.NewTCPTransportWithLogger(cfg.BindAddr, advertise, 3, 10*time.Second, logger.Named("transport"))
	if err != nil {
		return nil, fmt.Errorf("raft transport: %w", err)
	}

	snaps, err := raft.NewFileSnapshotStoreWithLogger(cfg.DataDir, 2, logger.Named("snapshots"))
	if err != nil {
		trans.Close()
		return nil, fmt.Errorf("raft snapshot store: %w", err)
	}

	boltStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft.db"))
	if err != nil {
		trans.Close()
		return nil, fmt.Errorf("raft log store: %w", err)
	}

	local := NewMemBackend()
	r, err := raft.NewRaft(conf, NewFSM(local), boltStore, boltStore, snaps, trans)
	if err != nil {
		boltStore.Close()
		trans.Close()
		return nil, fmt.Errorf("start raft: %w", err)
	}

	if cfg.Bootstrap {
		hasState, err := raft.HasExistingState(boltStore, boltStore, snaps)
		if err != nil {
			r.Shutdown()
			boltStore.Close()
			return nil, err
		}
		if !hasState {
			servers := cfg.Peers
			if len(servers) == 0 {
				servers = []raft.Server{{ID: conf.LocalID, Address: trans.LocalAddr()}}
			}
			if err := r.BootstrapCluster(raft.Configuration{Servers: servers}).Error(); err != nil {
				r.Shutdown()
				boltStore.Close()
				return nil, fmt.Errorf("bootstrap raft: %w", err)
			}
		}
	}

	return &RaftNode{
		Raft:     r,
		Backend:  NewRaftBackend(local, r),
		logStore: boltStore,
	}, nil
}

// Close shuts Raft down and releases the log store.
func (n *RaftNode) Close() error {
	if err := n.Raft.Shutdown().Error(); err != nil {
		return err
	}
	return n.logStore.Close()
}
