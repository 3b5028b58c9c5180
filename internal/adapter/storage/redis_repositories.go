package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

const (
	transferKeyPrefix         = "transfer:"
	transferLocationKeyPrefix = "transfers:location:"
	transferPartKeyPrefix     = "transfers:part:"
	transferPendingKey        = "transfers:pending"
	saleKeyPrefix             = "sale:"
	salePendingKeyPrefix      = "sales:pending:"
	catalogPartsKey           = "catalog:parts"
	catalogLocationsKey       = "catalog:locations"
)

// createRecordScript stores a new record and indexes it in one step.
//
// KEYS[1] record, KEYS[2] queue zset, KEYS[3..] id sets.
// ARGV[1] json, ARGV[2] id, ARGV[3] queue score ("" = not queued).
// Returns 0 when the record already exists.
var createRecordScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1])
for i = 3, #KEYS do
	redis.call('SADD', KEYS[i], ARGV[2])
end
if ARGV[3] ~= '' then
	redis.call('ZADD', KEYS[2], ARGV[3], ARGV[2])
end
return 1
`)

// updateRecordScript replaces a record only at the expected version.
//
// KEYS[1] record, KEYS[2] queue zset.
// ARGV[1] json, ARGV[2] id, ARGV[3] queue score ("" = leave queue),
// ARGV[4] expected version.
// Returns -1 missing, 0 version mismatch, 1 stored.
var updateRecordScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
	return -1
end
if tonumber(cjson.decode(current)['version']) ~= tonumber(ARGV[4]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1])
if ARGV[3] ~= '' then
	redis.call('ZADD', KEYS[2], ARGV[3], ARGV[2])
else
	redis.call('ZREM', KEYS[2], ARGV[2])
end
return 1
`)

// RedisTransferRepository keeps transfers next to the Redis ledger so
// in-transit units survive a restart.
type RedisTransferRepository struct {
	client *redis.Client
}

func NewRedisTransferRepository(client *redis.Client) *RedisTransferRepository {
	return &RedisTransferRepository{client: client}
}

func (r *RedisTransferRepository) Create(ctx context.Context, t domain.Transfer) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode transfer: %w", err)
	}
	keys := []string{
		transferKeyPrefix + t.ID,
		transferPendingKey,
		transferLocationKeyPrefix + t.OriginLocation.String(),
		transferLocationKeyPrefix + t.DestinationLocation.String(),
		transferPartKeyPrefix + string(t.PartID),
	}
	created, err := createRecordScript.Run(ctx, r.client, keys, raw, t.ID, pendingTransferScore(t)).Int()
	if err != nil {
		return fmt.Errorf("create transfer: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("transfer %s already exists", t.ID)
	}
	return nil
}

func (r *RedisTransferRepository) Get(ctx context.Context, id string) (*domain.Transfer, error) {
	var t domain.Transfer
	if err := getJSON(ctx, r.client, transferKeyPrefix+id, &t); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: transfer %s", domain.ErrNotFound, id)
		}
		return nil, err
	}
	return &t, nil
}

func (r *RedisTransferRepository) Update(ctx context.Context, t domain.Transfer, expectedVersion int) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode transfer: %w", err)
	}
	keys := []string{transferKeyPrefix + t.ID, transferPendingKey}
	res, err := updateRecordScript.Run(ctx, r.client, keys, raw, t.ID, pendingTransferScore(t), expectedVersion).Int()
	if err != nil {
		return fmt.Errorf("update transfer: %w", err)
	}
	return updateResult(res, "transfer", t.ID)
}

func (r *RedisTransferRepository) ListByLocation(ctx context.Context, locationID domain.LocationID) ([]domain.Transfer, error) {
	return r.listSet(ctx, transferLocationKeyPrefix+locationID.String(), func(t domain.Transfer) bool {
		return t.OriginLocation == locationID || t.DestinationLocation == locationID
	})
}

func (r *RedisTransferRepository) ListByPart(ctx context.Context, partID domain.PartID) ([]domain.Transfer, error) {
	return r.listSet(ctx, transferPartKeyPrefix+string(partID), func(t domain.Transfer) bool {
		return t.PartID == partID
	})
}

func (r *RedisTransferRepository) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.Transfer, error) {
	ids, err := r.client.ZRangeByScore(ctx, transferPendingKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending transfers: %w", err)
	}
	return r.load(ctx, ids, func(t domain.Transfer) bool {
		return t.Status == domain.TransferStatusPending && t.RequestedAt.Before(cutoff)
	})
}

func (r *RedisTransferRepository) listSet(ctx context.Context, key string, keep func(domain.Transfer) bool) ([]domain.Transfer, error) {
	ids, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	return r.load(ctx, ids, keep)
}

func (r *RedisTransferRepository) load(ctx context.Context, ids []string, keep func(domain.Transfer) bool) ([]domain.Transfer, error) {
	all, err := mgetJSON[domain.Transfer](ctx, r.client, transferKeyPrefix, ids)
	if err != nil {
		return nil, err
	}
	out := []domain.Transfer{}
	for _, t := range all {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

func pendingTransferScore(t domain.Transfer) string {
	if t.Status != domain.TransferStatusPending {
		return ""
	}
	return strconv.FormatInt(t.RequestedAt.UnixMilli(), 10)
}

// RedisSaleRepository keeps the cashier queue per location in a sorted set
// scored by creation time.
type RedisSaleRepository struct {
	client *redis.Client
}

func NewRedisSaleRepository(client *redis.Client) *RedisSaleRepository {
	return &RedisSaleRepository{client: client}
}

func (r *RedisSaleRepository) Create(ctx context.Context, sale domain.PendingSale) error {
	raw, err := json.Marshal(sale)
	if err != nil {
		return fmt.Errorf("encode sale: %w", err)
	}
	keys := []string{saleKeyPrefix + sale.ID, salePendingKeyPrefix + sale.LocationID.String()}
	created, err := createRecordScript.Run(ctx, r.client, keys, raw, sale.ID, pendingSaleScore(sale)).Int()
	if err != nil {
		return fmt.Errorf("create sale: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("sale %s already exists", sale.ID)
	}
	return nil
}

func (r *RedisSaleRepository) Get(ctx context.Context, id string) (*domain.PendingSale, error) {
	var sale domain.PendingSale
	if err := getJSON(ctx, r.client, saleKeyPrefix+id, &sale); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: sale %s", domain.ErrNotFound, id)
		}
		return nil, err
	}
	return &sale, nil
}

func (r *RedisSaleRepository) Update(ctx context.Context, sale domain.PendingSale, expectedVersion int) error {
	raw, err := json.Marshal(sale)
	if err != nil {
		return fmt.Errorf("encode sale: %w", err)
	}
	keys := []string{saleKeyPrefix + sale.ID, salePendingKeyPrefix + sale.LocationID.String()}
	res, err := updateRecordScript.Run(ctx, r.client, keys, raw, sale.ID, pendingSaleScore(sale), expectedVersion).Int()
	if err != nil {
		return fmt.Errorf("update sale: %w", err)
	}
	return updateResult(res, "sale", sale.ID)
}

func (r *RedisSaleRepository) ListPending(ctx context.Context, locationID domain.LocationID) ([]domain.PendingSale, error) {
	ids, err := r.client.ZRange(ctx, salePendingKeyPrefix+locationID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending sales: %w", err)
	}
	all, err := mgetJSON[domain.PendingSale](ctx, r.client, saleKeyPrefix, ids)
	if err != nil {
		return nil, err
	}
	out := []domain.PendingSale{}
	for _, s := range all {
		if s.LocationID == locationID && s.Status == domain.SaleStatusAwaitingPayment {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func pendingSaleScore(s domain.PendingSale) string {
	if s.Status != domain.SaleStatusAwaitingPayment {
		return ""
	}
	return strconv.FormatInt(s.CreatedAt.UnixMilli(), 10)
}

// RedisCatalog holds parts and locations as JSON hash fields. The catalog
// of one network is small enough to filter in process.
type RedisCatalog struct {
	client *redis.Client
}

func NewRedisCatalog(client *redis.Client) *RedisCatalog {
	return &RedisCatalog{client: client}
}

func (c *RedisCatalog) Search(ctx context.Context, query string, limit int) ([]domain.Part, error) {
	vals, err := c.client.HVals(ctx, catalogPartsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("search parts: %w", err)
	}
	q := strings.ToLower(query)
	out := []domain.Part{}
	for _, raw := range vals {
		var p domain.Part
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode part: %w", err)
		}
		if partMatches(p, q) {
			out = append(out, p)
		}
	}
	return limitParts(out, limit), nil
}

func (c *RedisCatalog) GetPart(ctx context.Context, id domain.PartID) (*domain.Part, error) {
	raw, err := c.client.HGet(ctx, catalogPartsKey, string(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: part %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query part: %w", err)
	}
	var p domain.Part
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode part: %w", err)
	}
	return &p, nil
}

func (c *RedisCatalog) Locations(ctx context.Context) ([]domain.Location, error) {
	vals, err := c.client.HVals(ctx, catalogLocationsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	out := make([]domain.Location, 0, len(vals))
	for _, raw := range vals {
		var l domain.Location
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return nil, fmt.Errorf("decode location: %w", err)
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *RedisCatalog) SavePart(ctx context.Context, p domain.Part) error {
	raw, err := json.Marshal(catalogFields(p))
	if err != nil {
		return fmt.Errorf("encode part: %w", err)
	}
	return c.client.HSet(ctx, catalogPartsKey, string(p.ID), raw).Err()
}

func (c *RedisCatalog) SaveLocation(ctx context.Context, l domain.Location) error {
	raw, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}
	return c.client.HSet(ctx, catalogLocationsKey, l.ID.String(), raw).Err()
}

func getJSON(ctx context.Context, client *redis.Client, key string, dst interface{}) error {
	raw, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// mgetJSON skips ids whose record is gone.
func mgetJSON[T any](ctx context.Context, client *redis.Client, prefix string, ids []string) ([]T, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = prefix + id
	}
	vals, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load %s*: %w", prefix, err)
	}

	out := make([]T, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var item T
		if err := json.Unmarshal([]byte(s), &item); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		out = append(out, item)
	}
	return out, nil
}

func updateResult(res int, kind, id string) error {
	switch res {
	case -1:
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, id)
	case 0:
		return domain.ErrVersionConflict
	}
	return nil
}
