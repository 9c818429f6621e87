package retrain

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultStream      = "updown:retrain:requests"
	defaultArtifactKey = "updown:retrain:artifact"
	maxStreamLen       = 1000
)

// redisCmds es el subconjunto de *redis.Client que usa el canal.
type redisCmds interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// RedisConfig configura el canal sobre Redis.
type RedisConfig struct {
	URL         string
	Stream      string
	ArtifactKey string
}

// RedisChannel publica pedidos en un stream (XADD) y lee el artefacto de un hash
// {path, version} que escribe el pipeline.
type RedisChannel struct {
	client      redisCmds
	closer      func() error
	stream      string
	artifactKey string
	now         func() time.Time
}

// NewRedisChannel conecta y verifica con un PING.
func NewRedisChannel(cfg RedisConfig) (*RedisChannel, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("retrain.NewRedisChannel: invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("retrain.NewRedisChannel: redis ping failed: %w", err)
	}

	ch := newRedisChannel(client, cfg)
	ch.closer = client.Close
	return ch, nil
}

func newRedisChannel(client redisCmds, cfg RedisConfig) *RedisChannel {
	if cfg.Stream == "" {
		cfg.Stream = defaultStream
	}
	if cfg.ArtifactKey == "" {
		cfg.ArtifactKey = defaultArtifactKey
	}
	return &RedisChannel{
		client:      client,
		stream:      cfg.Stream,
		artifactKey: cfg.ArtifactKey,
		now:         time.Now,
	}
}

// RequestRetrain agrega un pedido al stream, acotado a los últimos 1000.
func (c *RedisChannel) RequestRetrain(ctx context.Context, reason string) error {
	err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.stream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]any{
			"reason":       reason,
			"requested_at": c.now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("retrain.RequestRetrain: xadd %s: %w", c.stream, err)
	}
	return nil
}

// LatestArtifact lee el hash del artefacto. Sin hash, ok=false.
func (c *RedisChannel) LatestArtifact(ctx context.Context) (string, string, bool, error) {
	fields, err := c.client.HGetAll(ctx, c.artifactKey).Result()
	if err != nil {
		return "", "", false, fmt.Errorf("retrain.LatestArtifact: hgetall %s: %w", c.artifactKey, err)
	}
	path := fields["path"]
	if path == "" {
		return "", "", false, nil
	}
	version := fields["version"]
	if version == "" {
		version = path
	}
	return path, version, true, nil
}

// Close cierra la conexión.
func (c *RedisChannel) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}
