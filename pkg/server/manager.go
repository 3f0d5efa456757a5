package server

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	redisClient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/zap"

	"github.com/openclob/pointsbook/pkg/backend/memory"
	"github.com/openclob/pointsbook/pkg/backend/redis"
	"github.com/openclob/pointsbook/pkg/core"
	"github.com/openclob/pointsbook/pkg/logging"
	"github.com/openclob/pointsbook/pkg/messaging"
)

var (
	// ErrEngineExists is returned when trying to create an engine that already exists
	ErrEngineExists = errors.New("engine with this name already exists")

	// ErrEngineNotFound is returned when trying to access a non-existent engine
	ErrEngineNotFound = errors.New("engine not found")
)

// EngineInfo contains metadata about a trading engine
type EngineInfo struct {
	Name      string
	Backend   string
	CreatedAt time.Time
}

// EngineManager manages multiple named trading engines, each behind its
// own command sequencer.
type EngineManager struct {
	mu         sync.RWMutex
	sequencers map[string]*Sequencer
	info       map[string]*EngineInfo
	redisPool  map[string]*redisClient.Client

	sender   messaging.MessageSender
	feed     *Feed
	treasury core.UserID
	zap      *zap.Logger
}

// NewEngineManager creates a new EngineManager. The sender and feed are
// shared across all engines and may be nil.
func NewEngineManager(sender messaging.MessageSender, feed *Feed) *EngineManager {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		zapLogger = zap.NewNop()
	}
	return &EngineManager{
		sequencers: make(map[string]*Sequencer),
		info:       make(map[string]*EngineInfo),
		redisPool:  make(map[string]*redisClient.Client),
		sender:     sender,
		feed:       feed,
		zap:        zapLogger,
	}
}

// SetTreasury sets the protocol fee account wired into every engine
// created afterwards.
func (m *EngineManager) SetTreasury(user core.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.treasury = user
}

// CreateMemoryEngine creates a new engine with in-memory backend
func (m *EngineManager) CreateMemoryEngine(ctx context.Context, name string) (*EngineInfo, error) {
	logger := logging.FromContext(ctx).With().Str("engine", name).Logger()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sequencers[name]; exists {
		logger.Error().Msg("Engine already exists")
		return nil, ErrEngineExists
	}

	backend := memory.NewMemoryBackend()
	info := m.register(name, "memory", backend)

	logger.Info().Str("backend", "memory").Msg("Created new memory engine")
	return info, nil
}

// CreateRedisEngine creates a new engine with Redis backend. Clients
// are pooled per addr:db so engines sharing a Redis instance share one
// connection pool.
func (m *EngineManager) CreateRedisEngine(ctx context.Context, name string, options map[string]string) (*EngineInfo, error) {
	logger := logging.FromContext(ctx).With().Str("engine", name).Logger()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sequencers[name]; exists {
		logger.Error().Msg("Engine already exists")
		return nil, ErrEngineExists
	}

	addr := "localhost:6379"
	password := ""
	dbStr := "0"
	prefix := name

	if val, ok := options["addr"]; ok && val != "" {
		addr = val
	}
	if val, ok := options["password"]; ok {
		password = val
	}
	if val, ok := options["db"]; ok && val != "" {
		dbStr = val
	}
	if val, ok := options["prefix"]; ok && val != "" {
		prefix = val
	}

	redisKey := addr + ":" + dbStr

	client, exists := m.redisPool[redisKey]
	if !exists {
		db, _ := strconv.Atoi(dbStr)

		client = redisClient.NewClient(&redisClient.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		})

		if _, err := client.Ping(ctx).Result(); err != nil {
			logger.Error().Err(err).Msg("Failed to connect to Redis")
			return nil, err
		}

		m.redisPool[redisKey] = client
	}

	backend := redis.NewRedisBackend(client, prefix, m.zap)
	info := m.register(name, "redis", backend)

	logger.Info().
		Str("backend", "redis").
		Str("addr", addr).
		Str("db", dbStr).
		Str("prefix", prefix).
		Msg("Created new Redis engine")
	return info, nil
}

// register builds the engine and sequencer and stores them. Caller
// holds the write lock.
func (m *EngineManager) register(name, backendName string, store core.Store) *EngineInfo {
	engine := core.NewEngine(store)
	engine.SetTreasury(m.treasury)
	if m.sender != nil {
		engine.SetSender(m.sender)
	}

	seq := NewSequencer(name, engine, m.feed)
	seq.Start()
	m.sequencers[name] = seq

	info := &EngineInfo{
		Name:      name,
		Backend:   backendName,
		CreatedAt: time.Now(),
	}
	m.info[name] = info
	return info
}

// GetEngine retrieves an engine's sequencer by name
func (m *EngineManager) GetEngine(ctx context.Context, name string) (*Sequencer, *EngineInfo, error) {
	logger := logging.FromContext(ctx).With().Str("engine", name).Logger()

	m.mu.RLock()
	defer m.mu.RUnlock()

	seq, exists := m.sequencers[name]
	if !exists {
		logger.Debug().Msg("Engine not found")
		return nil, nil, ErrEngineNotFound
	}

	info := m.info[name]
	logger.Debug().Msg("Retrieved engine")
	return seq, info, nil
}

// DeleteEngine stops an engine's sequencer and removes it
func (m *EngineManager) DeleteEngine(ctx context.Context, name string) error {
	logger := logging.FromContext(ctx).With().Str("engine", name).Logger()

	m.mu.Lock()
	defer m.mu.Unlock()

	seq, exists := m.sequencers[name]
	if !exists {
		logger.Debug().Msg("Engine not found")
		return ErrEngineNotFound
	}

	seq.Stop()
	delete(m.sequencers, name)
	delete(m.info, name)

	logger.Info().Msg("Deleted engine")
	return nil
}

// ListEngines returns information about all engines
func (m *EngineManager) ListEngines(ctx context.Context) []*EngineInfo {
	logger := logging.FromContext(ctx)

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*EngineInfo, 0, len(m.info))
	for _, info := range m.info {
		result = append(result, info)
	}

	logger.Debug().Int("count", len(result)).Msg("Listed engines")
	return result
}

// Close stops all sequencers and closes pooled Redis clients
func (m *EngineManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, seq := range m.sequencers {
		seq.Stop()
	}
	for _, client := range m.redisPool {
		client.Close()
	}

	m.sequencers = make(map[string]*Sequencer)
	m.info = make(map[string]*EngineInfo)
	m.redisPool = make(map[string]*redisClient.Client)
}

// LogEngineSummary logs summary information about an engine
func LogEngineSummary(logger zerolog.Logger, info *EngineInfo) {
	logger.Info().
		Str("name", info.Name).
		Str("backend", info.Backend).
		Time("created_at", info.CreatedAt).
		Msg("Engine summary")
}
