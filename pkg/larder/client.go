package larder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxQuotaRetries bounds optimistic transaction retries when concurrent
// consumers race on one quota key.
const maxQuotaRetries = 16

// Client provides namespace-scoped Redis operations for cached entries,
// quota counters and entry events.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb       *redis.Client
	namespace string
}

// NewClient creates a new larder client for the specified namespace.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - namespace: key prefix isolating this deployment (must not be empty)
//
// Returns an error if namespace is empty.
func NewClient(redisOpts *redis.Options, namespace string) (*Client, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}

	return &Client{
		rdb:       redis.NewClient(redisOpts),
		namespace: namespace,
	}, nil
}

// Namespace returns the key namespace of this client.
func (c *Client) Namespace() string {
	return c.namespace
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// GetEntry retrieves the cached entry for (kind, subject), expired or not.
// Returns (nil, redis.Nil) if no entry exists. Use IsNotFound() to check.
func (c *Client) GetEntry(ctx context.Context, kind Kind, subject Subject) (*Entry, error) {
	key := EntryKey(c.namespace, kind, subject)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read entry from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	entry, err := HashToEntry(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize entry: %w", err)
	}

	return entry, nil
}

// PutEntry writes an entry, replacing any existing entry for the same
// (kind, subject), and publishes a put event.
//
// The Redis key is set to expire at ExpiresAt plus retention. Logical expiry
// is decided on read from ExpiresAt, so an expired entry stays readable for
// the retention window.
func (c *Client) PutEntry(ctx context.Context, e *Entry, retention time.Duration) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid entry: %w", err)
	}

	hash, err := EntryToHash(e)
	if err != nil {
		return fmt.Errorf("failed to serialize entry: %w", err)
	}

	key := EntryKey(c.namespace, e.Kind, e.Subject)
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, hash)
		pipe.ExpireAt(ctx, key, e.ExpiresAt.Add(retention))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write entry to Redis: %w", err)
	}

	return c.publish(ctx, EntryEvent{
		Type:       EventPut,
		Kind:       e.Kind,
		SubjectKey: e.Subject.Key(),
		EntryID:    e.ID,
		AtMs:       time.Now().UnixMilli(),
	})
}

// InvalidateEntry deletes the entry for (kind, subject).
// Returns true if an entry was removed. A removal publishes an invalidate event.
func (c *Client) InvalidateEntry(ctx context.Context, kind Kind, subject Subject) (bool, error) {
	key := EntryKey(c.namespace, kind, subject)
	n, err := c.rdb.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete entry: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if err := c.publish(ctx, EntryEvent{
		Type:       EventInvalidate,
		Kind:       kind,
		SubjectKey: subject.Key(),
		AtMs:       time.Now().UnixMilli(),
	}); err != nil {
		return true, err
	}
	return true, nil
}

// InvalidateUserEntries deletes every entry of kind belonging to userID.
// With a non-empty scope only entries narrowed to that scope are removed.
// Returns the number of entries deleted.
func (c *Client) InvalidateUserEntries(ctx context.Context, kind Kind, userID, scope string) (int, error) {
	keys, err := c.scanKeys(ctx, UserEntryPattern(c.namespace, kind, userID, scope))
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete user entries: %w", err)
	}

	if err := c.publish(ctx, EntryEvent{
		Type:       EventInvalidate,
		Kind:       kind,
		SubjectKey: Subject{UserID: userID, Scope: scope}.Key(),
		AtMs:       time.Now().UnixMilli(),
	}); err != nil {
		return int(n), err
	}
	return int(n), nil
}

// ListEntries returns every stored entry, newest first. Entries that fail to
// decode are skipped and reported in the returned error slice.
func (c *Client) ListEntries(ctx context.Context) ([]*Entry, []error, error) {
	keys, err := c.scanKeys(ctx, EntryScanPattern(c.namespace))
	if err != nil {
		return nil, nil, err
	}

	entries := make([]*Entry, 0, len(keys))
	var skipped []error
	for _, key := range keys {
		hashData, err := c.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read entry %s: %w", key, err)
		}
		if len(hashData) == 0 {
			// Expired between SCAN and HGETALL
			continue
		}
		entry, err := HashToEntry(hashData)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("entry %s: %w", key, err))
			continue
		}
		entries = append(entries, entry)
	}

	SortEntries(entries)
	return entries, skipped, nil
}

// ConsumeQuota applies one generation attempt to the (userID, kind) counter.
//
// The counter is created lazily. If its LastReset falls on an earlier
// calendar day than now (in loc), it is reset to zero with LastReset = now
// before evaluation. A counter at or above limit is left unchanged and the
// call returns allowed=false; otherwise the count is incremented.
//
// The read-modify-write runs as an optimistic WATCH/MULTI transaction, so
// concurrent consumers never over-count.
func (c *Client) ConsumeQuota(ctx context.Context, userID string, kind Kind, limit int, now time.Time, loc *time.Location) (*QuotaCounter, bool, error) {
	key := QuotaKey(c.namespace, userID, kind)

	var (
		counter *QuotaCounter
		allowed bool
	)

	txf := func(tx *redis.Tx) error {
		hashData, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}

		current := &QuotaCounter{LastReset: now}
		dirty := len(hashData) == 0
		if !dirty {
			current, err = HashToQuotaCounter(hashData)
			if err != nil {
				return err
			}
		}

		if !SameCalendarDay(current.LastReset, now, loc) {
			current = &QuotaCounter{LastReset: now}
			dirty = true
		}

		allowed = current.Count < limit
		if allowed {
			current.Count++
			dirty = true
		}
		counter = current

		if !dirty {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, QuotaCounterToHash(current))
			return nil
		})
		return err
	}

	for i := 0; i < maxQuotaRetries; i++ {
		err := c.rdb.Watch(ctx, txf, key)
		if err == nil {
			return counter, allowed, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, false, fmt.Errorf("failed to update quota counter: %w", err)
	}

	return nil, false, fmt.Errorf("failed to update quota counter: too much contention on %s", key)
}

// GetQuota reads the (userID, kind) counter without modifying it.
// Returns (nil, redis.Nil) if the counter has never been created.
func (c *Client) GetQuota(ctx context.Context, userID string, kind Kind) (*QuotaCounter, error) {
	hashData, err := c.rdb.HGetAll(ctx, QuotaKey(c.namespace, userID, kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read quota counter: %w", err)
	}
	if len(hashData) == 0 {
		return nil, redis.Nil
	}
	counter, err := HashToQuotaCounter(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize quota counter: %w", err)
	}
	return counter, nil
}

func (c *Client) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func (c *Client) publish(ctx context.Context, event EntryEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal entry event: %w", err)
	}
	if err := c.rdb.Publish(ctx, EntryEventsChannel(c.namespace), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish entry event: %w", err)
	}
	return nil
}

// Subscription represents an active Pub/Sub subscription to entry events.
type Subscription struct {
	events <-chan *EntryEvent
	errors <-chan error
	cancel context.CancelFunc
	once   sync.Once
}

// Events returns the channel delivering entry events.
// The channel is closed when the subscription is closed.
func (s *Subscription) Events() <-chan *EntryEvent {
	return s.events
}

// Errors returns the channel delivering decode errors.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeEntryEvents subscribes to entry put/invalidate events for this namespace.
// The subscription is confirmed before returning, so events published after
// this call are delivered.
func (c *Client) SubscribeEntryEvents(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, EntryEventsChannel(c.namespace))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to entry events: %w", err)
	}

	eventsChan := make(chan *EntryEvent, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event EntryEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal entry event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error indicates a missing entry or counter.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
