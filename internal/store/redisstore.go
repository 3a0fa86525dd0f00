package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/heysubinoy/flagstore/pkg/kv"
)

// RedisBackend implements kv.Backend on a Redis server. Transactions run
// as a Lua script, which Redis executes without interleaving other clients.
type RedisBackend struct {
	Client redis.UniversalClient
}

var _ kv.Backend = (*RedisBackend)(nil)

func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{Client: client}
}

// NewRedisBackendFromURL connects to redisURL (redis://...) and checks the
// connection.
func NewRedisBackendFromURL(ctx context.Context, redisURL string) (*RedisBackend, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, err
	}
	return NewRedisBackend(rdb), nil
}

func (s *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisBackend) Set(ctx context.Context, key, value string) error {
	return s.Client.Set(ctx, key, value, 0).Err()
}

func (s *RedisBackend) MGet(ctx context.Context, keys ...string) ([]kv.Value, error) {
	vals, err := s.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]kv.Value, len(vals))
	for i, v := range vals {
		switch v := v.(type) {
		case nil:
		case string:
			out[i] = kv.Value{Data: v, Found: true}
		default:
			return nil, fmt.Errorf("mget %s: unexpected reply type %T", keys[i], v)
		}
	}
	return out, nil
}

func (s *RedisBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.Client.SMembers(ctx, key).Result()
}

// execScript applies a batch of ops in one server-side step. Every key is
// type-checked before the first write, so a batch either fails untouched
// or applies completely. ARGV holds kind, value pairs, one per key.
var execScript = redis.NewScript(`
for i = 1, #KEYS do
  local kind = ARGV[2*i-1]
  local t = redis.call('TYPE', KEYS[i]).ok
  if kind == 'setnx' or kind == 'del' then
    if t ~= 'none' and t ~= 'string' then
      return redis.error_reply('WRONGTYPE ' .. KEYS[i] .. ' holds a ' .. t .. ', want string')
    end
  elseif kind == 'sadd' or kind == 'srem' then
    if t ~= 'none' and t ~= 'set' then
      return redis.error_reply('WRONGTYPE ' .. KEYS[i] .. ' holds a ' .. t .. ', want set')
    end
  else
    return redis.error_reply('ERR unsupported op ' .. kind)
  end
end
local results = {}
for i = 1, #KEYS do
  local kind = ARGV[2*i-1]
  local value = ARGV[2*i]
  if kind == 'setnx' then
    results[i] = redis.call('SETNX', KEYS[i], value)
  elseif kind == 'del' then
    results[i] = redis.call('DEL', KEYS[i])
  elseif kind == 'sadd' then
    results[i] = redis.call('SADD', KEYS[i], value)
  else
    results[i] = redis.call('SREM', KEYS[i], value)
  end
end
return results
`)

// Exec runs ops through execScript and maps each integer reply to a Result.
func (s *RedisBackend) Exec(ctx context.Context, ops ...kv.Op) ([]kv.Result, error) {
	if len(ops) == 0 {
		return []kv.Result{}, nil
	}
	keys := make([]string, len(ops))
	args := make([]interface{}, 0, 2*len(ops))
	for i, op := range ops {
		if err := validateOp(op); err != nil {
			return nil, err
		}
		keys[i] = op.Key
		args = append(args, string(op.Kind), op.Value)
	}

	replies, err := execScript.Run(ctx, s.Client, keys, args...).Int64Slice()
	if err != nil {
		return nil, err
	}
	if len(replies) != len(ops) {
		return nil, fmt.Errorf("exec: got %d replies for %d ops", len(replies), len(ops))
	}

	results := make([]kv.Result, len(ops))
	for i, n := range replies {
		results[i].Applied = n > 0
	}
	return results, nil
}

// Close closes the underlying client.
func (s *RedisBackend) Close() error {
	return s.Client.Close()
}
