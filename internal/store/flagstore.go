package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/heysubinoy/flagstore/pkg/flags"
	"github.com/heysubinoy/flagstore/pkg/kv"
)

// Options configures a FlagStore.
type Options struct {
	// Prefix is the first segment of every key.
	Prefix string
	// Tenant scopes every key. Empty means DefaultTenant.
	Tenant string
}

// FlagStore persists flags in a kv.Backend. It holds no mutable state and
// is safe for concurrent use.
type FlagStore struct {
	backend kv.Backend
	prefix  string
	tenant  string
}

// Compile-time check to ensure FlagStore implements flags.Storage.
var _ flags.Storage = (*FlagStore)(nil)

// New returns a FlagStore backed by backend.
func New(backend kv.Backend, opts Options) *FlagStore {
	return &FlagStore{
		backend: backend,
		prefix:  opts.Prefix,
		tenant:  tenantOrDefault(opts.Tenant),
	}
}

func (s *FlagStore) recordKey(name string, env flags.Environment) string {
	return recordKey(s.prefix, s.tenant, name, env)
}

func (s *FlagStore) indexKey() string {
	return indexKey(s.prefix, s.tenant)
}

// CreateFlag writes the record only if absent and indexes its name, in one
// transaction.
func (s *FlagStore) CreateFlag(ctx context.Context, flag flags.Flag) error {
	if !flag.Environment.Valid() {
		return fmt.Errorf("create %s: %w: %q", flag.Name, flags.ErrUnknownEnvironment, flag.Environment)
	}
	value, err := encodeFlag(flag)
	if err != nil {
		return fmt.Errorf("encode flag %s: %w", flag.Name, err)
	}

	results, err := s.backend.Exec(ctx,
		kv.SetNX(s.recordKey(flag.Name, flag.Environment), value),
		kv.SAdd(s.indexKey(), flag.Name),
	)
	if err != nil {
		return err
	}
	if len(results) == 0 || !results[0].Applied {
		return &flags.DuplicateFlagError{Name: flag.Name}
	}
	return nil
}

// GetFlag returns the record for (name, env). A missing record is reported
// through the bool, not as an error.
func (s *FlagStore) GetFlag(ctx context.Context, name string, env flags.Environment) (flags.Flag, bool, error) {
	if !env.Valid() {
		return flags.Flag{}, false, fmt.Errorf("get %s: %w: %q", name, flags.ErrUnknownEnvironment, env)
	}
	key := s.recordKey(name, env)
	data, found, err := s.backend.Get(ctx, key)
	if err != nil || !found {
		return flags.Flag{}, false, err
	}
	flag, err := decodeFlag(data)
	if err != nil {
		return flags.Flag{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return flag, true, nil
}

// ListFlags probes every environment of every indexed name with a single
// multi-get. Results are ordered by name, then by flags.Environments.
func (s *FlagStore) ListFlags(ctx context.Context) ([]flags.Flag, error) {
	names, err := s.backend.SMembers(ctx, s.indexKey())
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return []flags.Flag{}, nil
	}
	sort.Strings(names)

	keys := make([]string, 0, len(names)*len(flags.Environments))
	for _, name := range names {
		for _, env := range flags.Environments {
			keys = append(keys, s.recordKey(name, env))
		}
	}

	values, err := s.backend.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}

	out := make([]flags.Flag, 0, len(names))
	for i, v := range values {
		if !v.Found {
			continue
		}
		flag, err := decodeFlag(v.Data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		out = append(out, flag)
	}
	return out, nil
}

// UpdateFlag reads the record, merges patch and writes it back. The read
// and the write are separate round trips: concurrent updates of the same
// record are last-writer-wins.
//
// A patched name only changes the payload; the record stays under the key
// of the name it was created with.
func (s *FlagStore) UpdateFlag(ctx context.Context, name string, env flags.Environment, patch flags.Patch) (flags.Flag, error) {
	current, found, err := s.GetFlag(ctx, name, env)
	if err != nil {
		return flags.Flag{}, err
	}
	if !found {
		return flags.Flag{}, &flags.FlagNotFoundError{Name: name}
	}

	updated := patch.Apply(current)
	value, err := encodeFlag(updated)
	if err != nil {
		return flags.Flag{}, fmt.Errorf("encode flag %s: %w", name, err)
	}
	if err := s.backend.Set(ctx, s.recordKey(name, env), value); err != nil {
		return flags.Flag{}, err
	}
	return updated, nil
}

// DeleteFlag removes name from every environment and from the index, in
// one transaction.
func (s *FlagStore) DeleteFlag(ctx context.Context, name string) error {
	ops := make([]kv.Op, 0, len(flags.Environments)+1)
	for _, env := range flags.Environments {
		ops = append(ops, kv.Del(s.recordKey(name, env)))
	}
	ops = append(ops, kv.SRem(s.indexKey(), name))

	_, err := s.backend.Exec(ctx, ops...)
	return err
}
