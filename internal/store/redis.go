package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore adapts go-redis/v9 to the Store interface for multi-process
// deployments where several monitor-service instances (API, ingestor,
// reporter) must share grouping and occurrence state.
type RedisStore struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisStore parses dsn, pings the server and wraps it as a Store.
func NewRedisStore(dsn string) (*RedisStore, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis DSN: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, ctx: context.Background()}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Set(key string, value []byte, ttl time.Duration) error {
	return s.client.Set(s.ctx, key, value, ttl).Err()
}

func (s *RedisStore) Get(key string) ([]byte, error) {
	val, err := s.client.Get(s.ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return val, err
}

func (s *RedisStore) Delete(key string) error {
	return s.client.Del(s.ctx, key).Err()
}

func (s *RedisStore) Del(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(s.ctx, keys...).Err()
}

func (s *RedisStore) Exists(key string) (bool, error) {
	n, err := s.client.Exists(s.ctx, key).Result()
	return n > 0, err
}

func (s *RedisStore) SetNX(key string, value []byte, ttl time.Duration) (bool, error) {
	return s.client.SetNX(s.ctx, key, value, ttl).Result()
}

// Expire sets (or refreshes) a TTL on any key regardless of type. A
// non-positive ttl removes any existing expiration (Redis PERSIST).
func (s *RedisStore) Expire(key string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.client.Persist(s.ctx, key).Err()
	}
	return s.client.Expire(s.ctx, key, ttl).Err()
}

func (s *RedisStore) HSet(key string, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	return s.client.HSet(s.ctx, key, values).Err()
}

func (s *RedisStore) HGetAll(key string) (map[string]string, error) {
	return s.client.HGetAll(s.ctx, key).Result()
}

func (s *RedisStore) HIncrBy(key, field string, incr int64) (int64, error) {
	return s.client.HIncrBy(s.ctx, key, field, incr).Result()
}

func (s *RedisStore) LPush(key string, values ...any) error {
	if len(values) == 0 {
		return nil
	}
	return s.client.LPush(s.ctx, key, values...).Err()
}

func (s *RedisStore) LRem(key string, count int64, value any) error {
	return s.client.LRem(s.ctx, key, count, value).Err()
}

func (s *RedisStore) Rotate(key string) (string, error) {
	val, err := s.client.RPopLPush(s.ctx, key, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	return val, err
}

func (s *RedisStore) LLen(key string) (int64, error) {
	return s.client.LLen(s.ctx, key).Result()
}

func (s *RedisStore) SAdd(key string, members ...any) error {
	if len(members) == 0 {
		return nil
	}
	return s.client.SAdd(s.ctx, key, members...).Err()
}

func (s *RedisStore) SPopN(key string, count int64) ([]string, error) {
	return s.client.SPopN(s.ctx, key, count).Result()
}

func (s *RedisStore) SMembers(key string) ([]string, error) {
	return s.client.SMembers(s.ctx, key).Result()
}

func (s *RedisStore) ZAdd(key string, member string, score float64) error {
	return s.client.ZAdd(s.ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (s *RedisStore) ZIncrBy(key string, member string, incr float64) (float64, error) {
	return s.client.ZIncrBy(s.ctx, key, incr, member).Result()
}

func (s *RedisStore) ZScore(key string, member string) (float64, bool, error) {
	score, err := s.client.ZScore(s.ctx, key, member).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return score, true, nil
}

func (s *RedisStore) ZRank(key string, member string) (int64, bool, error) {
	rank, err := s.client.ZRank(s.ctx, key, member).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rank, true, nil
}

func (s *RedisStore) ZCard(key string) (int64, error) {
	return s.client.ZCard(s.ctx, key).Result()
}

func (s *RedisStore) ZRangeByScore(key string, min, max float64) ([]ZMember, error) {
	res, err := s.client.ZRangeByScoreWithScores(s.ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprint(min),
		Max: fmt.Sprint(max),
	}).Result()
	if err != nil {
		return nil, err
	}
	return toZMembers(res), nil
}

func (s *RedisStore) ZRevRangeByScore(key string, min, max float64) ([]ZMember, error) {
	res, err := s.client.ZRevRangeByScoreWithScores(s.ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprint(min),
		Max: fmt.Sprint(max),
	}).Result()
	if err != nil {
		return nil, err
	}
	return toZMembers(res), nil
}

func (s *RedisStore) ZRemRangeByScore(key string, min, max float64) (int64, error) {
	return s.client.ZRemRangeByScore(s.ctx, key, fmt.Sprint(min), fmt.Sprint(max)).Result()
}

func toZMembers(zs []redis.Z) []ZMember {
	members := make([]ZMember, len(zs))
	for i, z := range zs {
		members[i] = ZMember{Member: fmt.Sprint(z.Member), Score: z.Score}
	}
	return members
}

func (s *RedisStore) Publish(channel string, message []byte) error {
	return s.client.Publish(s.ctx, channel, message).Err()
}

// redisSubscription adapts go-redis's *redis.PubSub to the Subscription
// interface, translating *redis.Message into our transport-agnostic Message.
type redisSubscription struct {
	pubsub  *redis.PubSub
	msgChan chan *Message
	done    chan struct{}
}

func (r *redisSubscription) Channel() <-chan *Message {
	return r.msgChan
}

func (r *redisSubscription) Close() error {
	close(r.done)
	return r.pubsub.Close()
}

func (s *RedisStore) Subscribe(channel string) (Subscription, error) {
	pubsub := s.client.Subscribe(s.ctx, channel)
	if _, err := pubsub.Receive(s.ctx); err != nil {
		return nil, err
	}

	sub := &redisSubscription{
		pubsub:  pubsub,
		msgChan: make(chan *Message, 10),
		done:    make(chan struct{}),
	}

	go func() {
		redisCh := pubsub.Channel()
		for {
			select {
			case <-sub.done:
				return
			case m, ok := <-redisCh:
				if !ok {
					return
				}
				select {
				case sub.msgChan <- &Message{Channel: m.Channel, Payload: []byte(m.Payload)}:
				default:
				}
			}
		}
	}()

	return sub, nil
}
