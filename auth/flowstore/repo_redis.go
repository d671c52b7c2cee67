package flowstore

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	statePrefix = "oauth:state:"
	oncePrefix  = "once:"
)

var (
	ErrEmptyConnectionURL = errors.New("redis: empty connection URL")
	ErrFailedToParseURL   = errors.New("redis: failed to parse connection URL")
	ErrConnectionFailed   = errors.New("redis: failed to establish connection")
)

var (
	_ StateRepo = (*RedisRepo)(nil)
	_ OnceRepo  = (*RedisRepo)(nil)
)

// RedisRepo shares flow state between replicas. GETDEL and SET NX give the
// take-once and claim-once guarantees.
type RedisRepo struct {
	client redis.UniversalClient
}

func NewRedisRepo(client redis.UniversalClient) *RedisRepo {
	return &RedisRepo{client: client}
}

// OpenRedis parses a redis:// or rediss:// URL and pings the server, retrying
// with a linear backoff.
func OpenRedis(ctx context.Context, url string, attempts int, interval time.Duration) (redis.UniversalClient, error) {
	if url == "" {
		return nil, ErrEmptyConnectionURL
	}
	if !strings.HasPrefix(url, "redis://") && !strings.HasPrefix(url, "rediss://") {
		return nil, ErrFailedToParseURL
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(ErrFailedToParseURL, err.Error())
	}

	for i := range max(attempts, 1) {
		client := redis.NewClient(opts)
		err = client.Ping(ctx).Err()
		if err == nil {
			return client, nil
		}
		_ = client.Close()
		log.Warn().Err(err).Int("attempt", i+1).Msg("redis not ready")

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ErrConnectionFailed, ctx.Err().Error())
		case <-time.After(time.Duration(i+1) * interval):
		}
	}
	return nil, errors.Wrap(ErrConnectionFailed, err.Error())
}

func (r *RedisRepo) Put(ctx context.Context, state string, flow *FlowState, ttl time.Duration) error {
	if state == "" || flow == nil {
		return errors.New("[RedisRepo.Put] state and flow are required")
	}
	data, err := json.Marshal(flow)
	if err != nil {
		return errors.Wrap(err, "[RedisRepo.Put] marshal")
	}
	return errors.Wrap(r.client.Set(ctx, statePrefix+state, data, ttl).Err(), "[RedisRepo.Put] set")
}

func (r *RedisRepo) Take(ctx context.Context, state string) (*FlowState, error) {
	data, err := r.client.GetDel(ctx, statePrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[RedisRepo.Take] getdel")
	}
	var flow FlowState
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, errors.Wrap(err, "[RedisRepo.Take] unmarshal")
	}
	return &flow, nil
}

func (r *RedisRepo) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, oncePrefix+key, 1, ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "[RedisRepo.Claim] setnx")
	}
	return ok, nil
}

// Ping reports whether the server is reachable.
func (r *RedisRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
