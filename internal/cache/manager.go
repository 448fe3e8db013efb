package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrCacheMiss 缓存未命中
	ErrCacheMiss = errors.New("cache miss")

	// ErrClosed 管理器已关闭
	ErrClosed = errors.New("cache manager is closed")
)

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Config Redis 音频缓存配置
type Config struct {
	Addr       string        `yaml:"addr" json:"addr"`
	Password   string        `yaml:"password" json:"password"`
	DB         int           `yaml:"db" json:"db"`
	KeyPrefix  string        `yaml:"key_prefix" json:"key_prefix"`
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"` // SetAudio 未指定 TTL 时使用
	PoolSize   int           `yaml:"pool_size" json:"pool_size"`

	// HealthCheckInterval 后台 Ping 间隔，0 表示关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		KeyPrefix:           "voicerelay:tts:",
		DefaultTTL:          24 * time.Hour,
		PoolSize:            10,
		HealthCheckInterval: 30 * time.Second,
	}
}

const dialTimeout = 5 * time.Second

// Manager 以 Redis 字符串保存合成音频，键为 KeyPrefix + 调用方给出的键
type Manager struct {
	client *redis.Client
	cfg    Config
	logger *zap.Logger

	closed    atomic.Bool
	healthy   atomic.Bool
	stop      chan struct{}
	closeOnce sync.Once
}

// NewManager 连接 Redis，连不上时返回错误
func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	m := &Manager{
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "audio_cache")),
		stop:   make(chan struct{}),
	}
	m.healthy.Store(true)
	if cfg.HealthCheckInterval > 0 {
		go m.monitor(cfg.HealthCheckInterval)
	}

	m.logger.Info("audio cache connected", zap.String("addr", cfg.Addr), zap.String("key_prefix", cfg.KeyPrefix))
	return m, nil
}

// GetAudio 读取缓存的音频，未命中返回 ErrCacheMiss
func (m *Manager) GetAudio(ctx context.Context, key string) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	audio, err := m.client.Get(ctx, m.cfg.KeyPrefix+key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrCacheMiss
	case err != nil:
		return nil, m.wrap("get", err)
	}
	return audio, nil
}

// SetAudio 写入音频，ttl 为 0 时使用 DefaultTTL
func (m *Manager) SetAudio(ctx context.Context, key string, audio []byte, ttl time.Duration) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if ttl == 0 {
		ttl = m.cfg.DefaultTTL
	}
	if err := m.client.Set(ctx, m.cfg.KeyPrefix+key, audio, ttl).Err(); err != nil {
		return m.wrap("set", err)
	}
	return nil
}

// Ping 检查 Redis 连接，供就绪检查使用
func (m *Manager) Ping(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return m.wrap("ping", m.client.Ping(ctx).Err())
}

// Healthy 返回最近一次后台检查的结果，未开启后台检查时恒为 true
func (m *Manager) Healthy() bool {
	return m.healthy.Load()
}

// Close 停止后台检查并关闭连接池，可重复调用
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		close(m.stop)
		err = m.client.Close()
	})
	return err
}

// wrap 把关闭后的竞争请求统一为 ErrClosed
func (m *Manager) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.ErrClosed) || m.closed.Load() {
		return ErrClosed
	}
	return fmt.Errorf("cache %s failed: %w", op, err)
}

// monitor 定时 Ping，仅在健康状态变化时记日志
func (m *Manager) monitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		err := m.Ping(ctx)
		cancel()
		if errors.Is(err, ErrClosed) {
			return
		}

		ok := err == nil
		if m.healthy.Swap(ok) == ok {
			continue
		}
		if ok {
			m.logger.Info("audio cache recovered")
		} else {
			m.logger.Warn("audio cache unreachable", zap.Error(err))
		}
	}
}
