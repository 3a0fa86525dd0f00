package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/heysubinoy/flagstore/pkg/kv"
)

// MemBackend is an in-memory implementation of the kv.Backend interface.
// It uses maps protected by a RWMutex for thread-safe operations.
type MemBackend struct {
	mu   sync.RWMutex
	data map[string]string
	sets map[string]map[string]struct{}
}

// Compile-time check to ensure MemBackend implements kv.Backend.
var _ kv.Backend = (*MemBackend)(nil)

// NewMemBackend creates and returns a new MemBackend instance.
func NewMemBackend() *MemBackend {
	return &MemBackend{
		data: make(map[string]string),
		sets: make(map[string]map[string]struct{}),
	}
}

// Get retrieves a value by key from the store.
func (s *MemBackend) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.data[key]
	return val, ok, nil
}

// Set stores a key-value pair in the store, replacing a set stored at key.
// Always returns nil for in-memory operations.
func (s *MemBackend) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sets, key)
	s.data[key] = value
	return nil
}

// MGet reads all keys under a single read lock.
func (s *MemBackend) MGet(_ context.Context, keys ...string) ([]kv.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]kv.Value, len(keys))
	for i, key := range keys {
		val, ok := s.data[key]
		out[i] = kv.Value{Data: val, Found: ok}
	}
	return out, nil
}

// SMembers returns the members of the set at key, sorted.
func (s *MemBackend) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]string, 0, len(s.sets[key]))
	for m := range s.sets[key] {
		members = append(members, m)
	}
	sort.Strings(members)
	return members, nil
}

// Exec validates every op and checks the kind of every target key, then
// applies them all under one write lock.
func (s *MemBackend) Exec(_ context.Context, ops ...kv.Op) ([]kv.Result, error) {
	for _, op := range ops {
		if err := validateOp(op); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range ops {
		if err := s.checkTypeLocked(op); err != nil {
			return nil, err
		}
	}
	return s.applyLocked(ops), nil
}

func (s *MemBackend) checkTypeLocked(op kv.Op) error {
	switch op.Kind {
	case kv.OpSetNX, kv.OpDel:
		if _, isSet := s.sets[op.Key]; isSet {
			return fmt.Errorf("%s %s: %w", op.Kind, op.Key, kv.ErrWrongType)
		}
	case kv.OpSAdd, kv.OpSRem:
		if _, isString := s.data[op.Key]; isString {
			return fmt.Errorf("%s %s: %w", op.Kind, op.Key, kv.ErrWrongType)
		}
	}
	return nil
}

func validateOp(op kv.Op) error {
	switch op.Kind {
	case kv.OpSetNX, kv.OpDel, kv.OpSAdd, kv.OpSRem:
		return nil
	default:
		return fmt.Errorf("unsupported op %q", op.Kind)
	}
}

func (s *MemBackend) applyLocked(ops []kv.Op) []kv.Result {
	results := make([]kv.Result, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case kv.OpSetNX:
			if _, exists := s.data[op.Key]; !exists {
				s.data[op.Key] = op.Value
				results[i].Applied = true
			}
		case kv.OpDel:
			if _, exists := s.data[op.Key]; exists {
				delete(s.data, op.Key)
				results[i].Applied = true
			}
		case kv.OpSAdd:
			set, ok := s.sets[op.Key]
			if !ok {
				set = make(map[string]struct{})
				s.sets[op.Key] = set
			}
			if _, exists := set[op.Value]; !exists {
				set[op.Value] = struct{}{}
				results[i].Applied = true
			}
		case kv.OpSRem:
			if set, ok := s.sets[op.Key]; ok {
				if _, exists := set[op.Value]; exists {
					delete(set, op.Value)
					results[i].Applied = true
				}
				if len(set) == 0 {
					delete(s.sets, op.Key)
				}
			}
		}
	}
	return results
}

// memState is the serialisable content of a MemBackend.
type memState struct {
	Data map[string]string   `json:"data"`
	Sets map[string][]string `json:"sets"`
}

func (s *MemBackend) snapshot() memState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := memState{
		Data: make(map[string]string, len(s.data)),
		Sets: make(map[string][]string, len(s.sets)),
	}
	for k, v := range s.data {
		st.Data[k] = v
	}
	for k, set := range s.sets {
		for m := range set {
			st.Sets[k] = append(st.Sets[k], m)
		}
	}
	return st
}

func (s *MemBackend) restore(st memState) {
	data := make(map[string]string, len(st.Data))
	for k, v := range st.Data {
		data[k] = v
	}
	sets := make(map[string]map[string]struct{}, len(st.Sets))
	for k, members := range st.Sets {
		set := make(map[string]struct{}, len(members))
		for _, m := range members {
			set[m] = struct{}{}
		}
		sets[k] = set
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.sets = sets
}
