package redis

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/openclob/pointsbook/pkg/core"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOptions represents configuration options for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

var defaultOptions = &RedisOptions{
	Addr:     "localhost:6379",
	Password: "",
	DB:       0,
}

// SetDefaultRedisOptions sets the default options for Redis connections
func SetDefaultRedisOptions(options *RedisOptions) {
	defaultOptions = options
}

// GetRedisClient creates a new Redis client using the default options
func GetRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     defaultOptions.Addr,
		Password: defaultOptions.Password,
		DB:       defaultOptions.DB,
	})
}

// RedisBackend implements the core.Store interface with Redis storage.
// Records are JSON values addressed by the hex form of the engine's
// packed composite keys, so external indexers can scan them directly.
// The Store contract reports no errors upward; Redis failures are logged
// and reads degrade to the zero value, which is only acceptable because
// the engine is the sole writer and a broken connection is fatal for the
// process anyway.
type RedisBackend struct {
	client *redis.Client
	ctx    context.Context
	prefix string
	logger *zap.Logger
}

// NewRedisBackend creates a new instance of RedisBackend
func NewRedisBackend(client *redis.Client, prefix string, logger *zap.Logger) *RedisBackend {
	return &RedisBackend{
		client: client,
		ctx:    context.Background(),
		prefix: prefix,
		logger: logger,
	}
}

func (b *RedisBackend) metaKey() string {
	return fmt.Sprintf("%s:meta", b.prefix)
}

func (b *RedisBackend) marketKey(id core.MarketID) string {
	return fmt.Sprintf("%s:market:%d", b.prefix, id)
}

func (b *RedisBackend) bookKey(class core.ClassKey) string {
	return fmt.Sprintf("%s:book:%d:%d", b.prefix, class.Market, class.Outcome)
}

func (b *RedisBackend) levelKey(key core.LevelKey) string {
	return fmt.Sprintf("%s:level:%s", b.prefix, hex.EncodeToString(key.Bytes()))
}

func (b *RedisBackend) orderKey(key core.OrderKey) string {
	return fmt.Sprintf("%s:order:%s", b.prefix, hex.EncodeToString(key.Bytes()))
}

func (b *RedisBackend) pointsKey(user core.UserID) string {
	return fmt.Sprintf("%s:points:%d", b.prefix, user)
}

func (b *RedisBackend) sharesKey(user core.UserID, class core.ClassKey) string {
	return fmt.Sprintf("%s:shares:%d:%d:%d", b.prefix, user, class.Market, class.Outcome)
}

func (b *RedisBackend) get(key string, out any) bool {
	data, err := b.client.Get(b.ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			b.logger.Error("failed to get record",
				zap.String("key", key),
				zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		b.logger.Error("failed to unmarshal record",
			zap.String("key", key),
			zap.Error(err))
		return false
	}
	return true
}

func (b *RedisBackend) put(key string, in any) {
	data, err := json.Marshal(in)
	if err != nil {
		b.logger.Error("failed to marshal record",
			zap.String("key", key),
			zap.Error(err))
		return
	}
	if err := b.client.Set(b.ctx, key, data, 0).Err(); err != nil {
		b.logger.Error("failed to store record",
			zap.String("key", key),
			zap.Error(err))
	}
}

// Meta returns the engine-wide counters.
func (b *RedisBackend) Meta() core.EngineMeta {
	var meta core.EngineMeta
	b.get(b.metaKey(), &meta)
	return meta
}

// PutMeta stores the engine-wide counters.
func (b *RedisBackend) PutMeta(meta core.EngineMeta) {
	b.put(b.metaKey(), meta)
}

// Market retrieves a market record by id, nil when absent.
func (b *RedisBackend) Market(id core.MarketID) *core.Market {
	var m core.Market
	if !b.get(b.marketKey(id), &m) {
		return nil
	}
	return &m
}

// PutMarket stores a market record.
func (b *RedisBackend) PutMarket(m *core.Market) {
	b.put(b.marketKey(m.ID), m)
}

// Book retrieves the per-book aggregate, zero value when absent.
func (b *RedisBackend) Book(class core.ClassKey) core.BookState {
	var book core.BookState
	b.get(b.bookKey(class), &book)
	return book
}

// PutBook stores the per-book aggregate.
func (b *RedisBackend) PutBook(class core.ClassKey, book core.BookState) {
	b.put(b.bookKey(class), book)
}

// Level retrieves a price level record, zero value when absent.
func (b *RedisBackend) Level(key core.LevelKey) core.Level {
	var level core.Level
	b.get(b.levelKey(key), &level)
	return level
}

// PutLevel stores a price level record. An emptied level is deleted;
// reading it back yields the zero value, which is equivalent.
func (b *RedisBackend) PutLevel(key core.LevelKey, level core.Level) {
	k := b.levelKey(key)
	if level.Total == 0 && level.Head == 0 {
		if err := b.client.Del(b.ctx, k).Err(); err != nil {
			b.logger.Error("failed to delete level",
				zap.String("key", k),
				zap.Error(err))
		}
		return
	}
	b.put(k, level)
}

// Order retrieves an order record by key, nil when absent.
func (b *RedisBackend) Order(key core.OrderKey) *core.Order {
	var order core.Order
	if !b.get(b.orderKey(key), &order) {
		return nil
	}
	return &order
}

// PutOrder stores an order record. Closed orders stay readable.
func (b *RedisBackend) PutOrder(key core.OrderKey, order *core.Order) {
	b.put(b.orderKey(key), order)
}

// Points retrieves a user's Points balance, zero value when absent.
func (b *RedisBackend) Points(user core.UserID) core.Balance {
	var bal core.Balance
	b.get(b.pointsKey(user), &bal)
	return bal
}

// PutPoints stores a user's Points balance.
func (b *RedisBackend) PutPoints(user core.UserID, bal core.Balance) {
	b.put(b.pointsKey(user), bal)
}

// Shares retrieves a user's balance of one share class.
func (b *RedisBackend) Shares(user core.UserID, class core.ClassKey) core.Balance {
	var bal core.Balance
	b.get(b.sharesKey(user, class), &bal)
	return bal
}

// PutShares stores a user's balance of one share class.
func (b *RedisBackend) PutShares(user core.UserID, class core.ClassKey, bal core.Balance) {
	b.put(b.sharesKey(user, class), bal)
}

// Ensure RedisBackend implements Store
var _ core.Store = (*RedisBackend)(nil)
