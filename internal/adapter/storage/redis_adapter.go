package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

const (
	stockKeyPrefix       = "stock:"
	partIndexKeyPrefix   = "stock-index:"
	idempotencyKeyPrefix = "idempotency:"
	idempotencyKeyTTL    = 24 * time.Hour
)

// applyDeltasScript validates every leg before writing any of them, so a
// batch is all-or-nothing inside Redis.
//
// KEYS[1..n] stock hashes, KEYS[n+1..2n] part location indexes.
// ARGV[1] = n, then per leg: delta, expected ("" = none), location id.
// Returns {0, qty1, ver1, ...} or {code, leg, current} with code
// 1 = insufficient stock, 2 = expected quantity mismatch.
var applyDeltasScript = redis.NewScript(`
local n = tonumber(ARGV[1])

for i = 1, n do
	local current = tonumber(redis.call('HGET', KEYS[i], 'qty') or '0')
	local delta = tonumber(ARGV[3*i - 1])
	local expected = ARGV[3*i]
	if expected ~= '' and tonumber(expected) ~= current then
		return {2, i, current}
	end
	if current + delta < 0 then
		return {1, i, current}
	end
end

local result = {0}
for i = 1, n do
	local qty = redis.call('HINCRBY', KEYS[i], 'qty', tonumber(ARGV[3*i - 1]))
	local ver = redis.call('HINCRBY', KEYS[i], 'ver', 1)
	redis.call('SADD', KEYS[n + i], ARGV[3*i + 1])
	table.insert(result, qty)
	table.insert(result, ver)
end
return result
`)

// RedisAdapter is the ledger hot path and the idempotency guard.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func stockKey(key domain.StockKey) string {
	return stockKeyPrefix + string(key.PartID) + ":" + key.LocationID.String()
}

func partIndexKey(partID domain.PartID) string {
	return partIndexKeyPrefix + string(partID)
}

func (r *RedisAdapter) GetQuantity(ctx context.Context, key domain.StockKey) (int, error) {
	qty, err := r.client.HGet(ctx, stockKey(key), "qty").Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return qty, nil
}

func (r *RedisAdapter) ListByPart(ctx context.Context, partID domain.PartID) ([]domain.StockEntry, error) {
	members, err := r.client.SMembers(ctx, partIndexKey(partID)).Result()
	if err != nil {
		return nil, err
	}

	locations := make([]domain.LocationID, 0, len(members))
	for _, m := range members {
		id, err := domain.ParseLocationID(m)
		if err != nil {
			continue
		}
		locations = append(locations, id)
	}
	sort.Slice(locations, func(i, j int) bool { return locations[i] < locations[j] })

	pipe := r.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(locations))
	for i, loc := range locations {
		cmds[i] = pipe.HMGet(ctx, stockKey(domain.StockKey{PartID: partID, LocationID: loc}), "qty", "ver")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make([]domain.StockEntry, 0, len(locations))
	for i, loc := range locations {
		vals := cmds[i].Val()
		out = append(out, domain.StockEntry{
			PartID:     partID,
			LocationID: loc,
			Quantity:   redisInt(vals, 0),
			Version:    redisInt(vals, 1),
		})
	}
	return out, nil
}

func (r *RedisAdapter) ApplyDeltas(ctx context.Context, deltas []domain.StockDelta) ([]domain.StockEntry, error) {
	merged := domain.MergeDeltas(deltas)
	n := len(merged)
	if n == 0 {
		return nil, nil
	}

	keys := make([]string, 0, 2*n)
	for _, d := range merged {
		keys = append(keys, stockKey(d.Key))
	}
	for _, d := range merged {
		keys = append(keys, partIndexKey(d.Key.PartID))
	}

	args := make([]interface{}, 0, 1+3*n)
	args = append(args, n)
	for _, d := range merged {
		expected := ""
		if d.Expected != domain.NoExpectation {
			expected = strconv.Itoa(d.Expected)
		}
		args = append(args, d.Delta, expected, d.Key.LocationID.String())
	}

	result, err := applyDeltasScript.Run(ctx, r.client, keys, args...).Int64Slice()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("apply deltas: empty script result")
	}

	if code := result[0]; code != 0 {
		leg := merged[result[1]-1]
		current := int(result[2])
		if code == 2 {
			return nil, &domain.StockError{Key: leg.Key, Available: current, Requested: leg.Expected, Err: domain.ErrVersionConflict}
		}
		return nil, &domain.StockError{Key: leg.Key, Available: current, Requested: -leg.Delta, Err: domain.ErrInsufficientStock}
	}

	now := time.Now().UTC()
	out := make([]domain.StockEntry, n)
	for i, d := range merged {
		out[i] = domain.StockEntry{
			PartID:     d.Key.PartID,
			LocationID: d.Key.LocationID,
			Quantity:   int(result[1+2*i]),
			Version:    int(result[2+2*i]),
			UpdatedAt:  now,
		}
	}
	return out, nil
}

// SetStock seeds a quantity outside the ledger rules (migration, tests).
func (r *RedisAdapter) SetStock(ctx context.Context, key domain.StockKey, quantity int) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, stockKey(key), "qty", quantity)
	pipe.HIncrBy(ctx, stockKey(key), "ver", 1)
	pipe.SAdd(ctx, partIndexKey(key.PartID), key.LocationID.String())
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func redisInt(vals []interface{}, i int) int {
	if i >= len(vals) || vals[i] == nil {
		return 0
	}
	s, ok := vals[i].(string)
	if !ok {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}
