// Package presence broadcasts live cursor positions between workshop
// participants. Delivery is best-effort, most-recent-wins: nothing here is
// persisted, and the only state kept is the latest cursor per user so late
// joiners can render the current set without replaying history.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cursor is the wire payload broadcast on a workshop's topic.
type Cursor struct {
	UserID    string  `json:"userId"`
	UserName  string  `json:"userName"`
	UserColor string  `json:"userColor"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// Entry is a snapshot row: the latest cursor for a user plus when it was
// last broadcast. Staleness is the consumer's call, not the channel's.
type Entry struct {
	Cursor Cursor    `json:"cursor"`
	SeenAt time.Time `json:"seenAt"`
}

// DefaultTTL is the recommended staleness cutoff for rendering cursors.
const DefaultTTL = 5 * time.Second

// snapshotRetention bounds how long an abandoned workshop keeps its cursor
// hash in Redis.
const snapshotRetention = 10 * time.Minute

// Channel is the Redis-backed presence transport: one pub/sub topic per
// workshop plus a hash holding the latest cursor per user.
type Channel struct {
	client *redis.Client
	prefix string
}

// NewChannel connects to Redis and verifies the connection.
func NewChannel(redisURL string) (*Channel, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Channel{client: client, prefix: "presence:"}, nil
}

// NewChannelWithClient creates a channel from an existing Redis client.
func NewChannelWithClient(client *redis.Client) *Channel {
	return &Channel{client: client, prefix: "presence:"}
}

func (c *Channel) topic(workshopID string) string {
	return c.prefix + "topic:" + workshopID
}

func (c *Channel) snapshotKey(workshopID string) string {
	return c.prefix + "snap:" + workshopID
}

// Publish broadcasts the caller's cursor to every other subscriber of the
// workshop and records it as the user's latest position. Fire-and-forget:
// there is no acknowledgment and no delivery guarantee.
func (c *Channel) Publish(ctx context.Context, workshopID string, cursor Cursor) error {
	payload, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("encode cursor: %w", err)
	}
	entry, err := json.Marshal(Entry{Cursor: cursor, SeenAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode snapshot entry: %w", err)
	}

	key := c.snapshotKey(workshopID)
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, cursor.UserID, entry)
	pipe.Expire(ctx, key, snapshotRetention)
	pipe.Publish(ctx, c.topic(workshopID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish cursor: %w", err)
	}
	return nil
}

// Snapshot returns the latest known cursor per user, excluding selfUserID.
// A newly joined subscriber calls this once to render the current set; the
// channel never replays older positions.
func (c *Channel) Snapshot(ctx context.Context, workshopID, selfUserID string) ([]Entry, error) {
	raw, err := c.client.HGetAll(ctx, c.snapshotKey(workshopID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read presence snapshot: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for userID, value := range raw {
		if userID == selfUserID {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			// A malformed entry only loses one cursor; drop it.
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Active filters a snapshot down to cursors seen within ttl of now.
func Active(entries []Entry, ttl time.Duration, now time.Time) []Entry {
	active := entries[:0:0]
	for _, entry := range entries {
		if now.Sub(entry.SeenAt) <= ttl {
			active = append(active, entry)
		}
	}
	return active
}

// Leave removes a user's cursor from the workshop snapshot. Best-effort,
// called when a participant disconnects cleanly.
func (c *Channel) Leave(ctx context.Context, workshopID, userID string) error {
	if err := c.client.HDel(ctx, c.snapshotKey(workshopID), userID).Err(); err != nil {
		return fmt.Errorf("remove cursor: %w", err)
	}
	return nil
}

// Subscribe registers callback for cursor updates from other participants
// of the workshop. The caller's own published positions are filtered out by
// selfUserID. The returned function cancels the subscription; once it
// returns, no further callbacks fire. Transport hiccups are recovered by
// the client's automatic resubscription and are never surfaced.
func (c *Channel) Subscribe(ctx context.Context, workshopID, selfUserID string, callback func(Cursor)) (func(), error) {
	sub := c.client.Subscribe(ctx, c.topic(workshopID))
	// Force the subscription to be established before returning, so a
	// Publish immediately after Subscribe is not lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe presence: %w", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		messages := sub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var cursor Cursor
				if err := json.Unmarshal([]byte(msg.Payload), &cursor); err != nil {
					log.Printf("presence: drop malformed cursor payload: %v", err)
					continue
				}
				if cursor.UserID == selfUserID {
					continue
				}
				select {
				case <-done:
					return
				default:
				}
				callback(cursor)
			}
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
			wg.Wait()
		})
	}
	return unsubscribe, nil
}

// Ping checks if Redis is reachable.
func (c *Channel) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Channel) Close() error {
	return c.client.Close()
}
