package kv

import (
	"context"
	"errors"
)

// ErrWrongType is returned by Exec when an op targets a key holding a value
// of the other kind. No op of the batch is applied.
var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// Backend defines the primitives a flag store needs from a key-value server.
// Implementations can be swapped out, allowing for different storage
// backends (e.g., Redis, in-memory, Raft-replicated).
//
// Values are opaque strings; encoding is the caller's concern.
type Backend interface {
	// Get retrieves the value associated with the given key.
	// Returns the value and true if the key exists, or empty string and false if not.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores a key-value pair unconditionally.
	Set(ctx context.Context, key, value string) error

	// MGet retrieves several keys in one round trip. The result has one
	// entry per key, in the order the keys were given.
	MGet(ctx context.Context, keys ...string) ([]Value, error)

	// SMembers lists the members of the set stored at key.
	// A missing key is an empty set.
	SMembers(ctx context.Context, key string) ([]string, error)

	// Exec applies ops as one indivisible transaction and reports the
	// outcome of each op, in order. On error nothing is applied.
	Exec(ctx context.Context, ops ...Op) ([]Result, error)
}

// Value is one entry of an MGet result.
type Value struct {
	Data  string
	Found bool
}

// OpKind identifies a transactional command.
type OpKind string

const (
	// OpSetNX sets Key to Value only if Key does not exist.
	OpSetNX OpKind = "setnx"
	// OpDel deletes Key if present.
	OpDel OpKind = "del"
	// OpSAdd adds Value to the set at Key.
	OpSAdd OpKind = "sadd"
	// OpSRem removes Value from the set at Key.
	OpSRem OpKind = "srem"
)

// Op is a single command inside a transaction.
type Op struct {
	Kind  OpKind `json:"kind"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// Result reports whether an op changed anything. For OpSetNX, Applied is
// false when the key already existed.
type Result struct {
	Applied bool `json:"applied"`
}

func SetNX(key, value string) Op { return Op{Kind: OpSetNX, Key: key, Value: value} }
func Del(key string) Op           { return Op{Kind: OpDel, Key: key} }
func SAdd(key, member string) Op  { return Op{Kind: OpSAdd, Key: key, Value: member} }
func SRem(key, member string) Op  { return Op{Kind: OpSRem, Key: key, Value: member} }
