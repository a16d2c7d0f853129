package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefixes
	keyJobStatus = "download:job:"
	keyProgress  = "download:progress:"

	defaultSnapshotTTL = time.Hour
)

var ErrJobNotFound = errors.New("job not found")

// SnapshotStore persists job snapshots outside the process, so status
// polls keep working after the in-memory record is dropped.
type SnapshotStore interface {
	Save(ctx context.Context, s Snapshot) error
	Load(ctx context.Context, id string) (*Snapshot, error)
}

// RedisStore keeps snapshots in Redis with a TTL and announces every save
// on download:progress:<id>.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store on an existing client
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Save writes the snapshot and publishes it
func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyJobStatus+snap.ID, data, s.ttl)
	pipe.Publish(ctx, keyProgress+snap.ID, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// Load retrieves a snapshot by job ID
func (s *RedisStore) Load(ctx context.Context, id string) (*Snapshot, error) {
	data, err := s.client.Get(ctx, keyJobStatus+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &snap, nil
}

// Subscribe listens for snapshots of one job
func (s *RedisStore) Subscribe(ctx context.Context, id string) *SnapshotSubscription {
	pubsub := s.client.Subscribe(ctx, keyProgress+id)
	return &SnapshotSubscription{pubsub: pubsub, ch: pubsub.Channel()}
}

// SnapshotSubscription wraps a Redis pub/sub subscription for job updates
type SnapshotSubscription struct {
	pubsub *redis.PubSub
	ch     <-chan *redis.Message
}

// Channel returns a channel that receives job snapshots. It is closed
// when the subscription is closed.
func (s *SnapshotSubscription) Channel() <-chan Snapshot {
	out := make(chan Snapshot)

	go func() {
		defer close(out)
		for msg := range s.ch {
			var snap Snapshot
			if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
				continue
			}
			out <- snap
		}
	}()

	return out
}

// Close closes the subscription
func (s *SnapshotSubscription) Close() error {
	return s.pubsub.Close()
}
