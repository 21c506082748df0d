package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestChannel(t *testing.T) (*Channel, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	channel, err := NewChannel("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create presence channel: %v", err)
	}
	t.Cleanup(func() { channel.Close() })
	return channel, s
}

func TestNewChannel(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	channel, err := NewChannel("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewChannel failed: %v", err)
	}
	defer channel.Close()

	if err := channel.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSubscriberReceivesOtherUsersCursor(t *testing.T) {
	channel, _ := setupTestChannel(t)
	ctx := context.Background()

	received := make(chan Cursor, 1)
	unsubscribe, err := channel.Subscribe(ctx, "ws-1", "user-b", func(c Cursor) {
		received <- c
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsubscribe()

	cursor := Cursor{UserID: "user-a", UserName: "Avery", UserColor: "#ff6b6b", X: 10, Y: 20}
	if err := channel.Publish(ctx, "ws-1", cursor); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got != cursor {
			t.Fatalf("expected %+v, got %+v", cursor, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received the published cursor")
	}
}

func TestSubscriberNeverReceivesOwnCursor(t *testing.T) {
	channel, _ := setupTestChannel(t)
	ctx := context.Background()

	otherReceived := make(chan Cursor, 1)
	selfReceived := make(chan Cursor, 1)

	unsubscribe, err := channel.Subscribe(ctx, "ws-1", "user-a", func(c Cursor) {
		if c.UserID == "user-a" {
			selfReceived <- c
			return
		}
		otherReceived <- c
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsubscribe()

	if err := channel.Publish(ctx, "ws-1", Cursor{UserID: "user-a", X: 1, Y: 2}); err != nil {
		t.Fatalf("publish self: %v", err)
	}
	if err := channel.Publish(ctx, "ws-1", Cursor{UserID: "user-b", X: 3, Y: 4}); err != nil {
		t.Fatalf("publish other: %v", err)
	}

	// The other user's cursor arriving proves the self publish, sent
	// earlier on the same topic, was already filtered.
	select {
	case <-otherReceived:
	case <-time.After(2 * time.Second):
		t.Fatal("never received user-b's cursor")
	}
	select {
	case got := <-selfReceived:
		t.Fatalf("received own cursor through subscription: %+v", got)
	default:
	}
}

func TestLateJoinerSeesSnapshotOfLastKnownPositions(t *testing.T) {
	channel, _ := setupTestChannel(t)
	ctx := context.Background()

	// Client A publishes before B ever subscribes.
	if err := channel.Publish(ctx, "ws-1", Cursor{UserID: "user-a", UserName: "Avery", X: 10, Y: 20}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	entries, err := channel.Snapshot(ctx, "ws-1", "user-b")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 snapshot entry, got %d", len(entries))
	}
	if entries[0].Cursor.UserID != "user-a" || entries[0].Cursor.X != 10 || entries[0].Cursor.Y != 20 {
		t.Fatalf("unexpected snapshot entry: %+v", entries[0])
	}
}

func TestSnapshotKeepsOnlyLatestPositionPerUser(t *testing.T) {
	channel, _ := setupTestChannel(t)
	ctx := context.Background()

	if err := channel.Publish(ctx, "ws-1", Cursor{UserID: "user-a", X: 1, Y: 1}); err != nil {
		t.Fatalf("publish first: %v", err)
	}
	if err := channel.Publish(ctx, "ws-1", Cursor{UserID: "user-a", X: 9, Y: 9}); err != nil {
		t.Fatalf("publish second: %v", err)
	}

	entries, err := channel.Snapshot(ctx, "ws-1", "")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected at most one cursor per user, got %d entries", len(entries))
	}
	if entries[0].Cursor.X != 9 || entries[0].Cursor.Y != 9 {
		t.Fatalf("expected the superseding position, got %+v", entries[0].Cursor)
	}
}

func TestSnapshotExcludesSelf(t *testing.T) {
	channel, _ := setupTestChannel(t)
	ctx := context.Background()

	if err := channel.Publish(ctx, "ws-1", Cursor{UserID: "user-a", X: 1, Y: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	entries, err := channel.Snapshot(ctx, "ws-1", "user-a")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("snapshot should exclude the requesting user, got %+v", entries)
	}
}

func TestUnsubscribeStopsCallbacks(t *testing.T) {
	channel, _ := setupTestChannel(t)
	ctx := context.Background()

	var mu sync.Mutex
	count := 0
	unsubscribe, err := channel.Subscribe(ctx, "ws-1", "user-b", func(Cursor) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	unsubscribe()
	// Safe to call twice.
	unsubscribe()

	if err := channel.Publish(ctx, "ws-1", Cursor{UserID: "user-a", X: 5, Y: 5}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("callback fired %d times after unsubscribe", count)
	}
}

func TestTopicsAreIsolatedPerWorkshop(t *testing.T) {
	channel, _ := setupTestChannel(t)
	ctx := context.Background()

	received := make(chan Cursor, 1)
	unsubscribe, err := channel.Subscribe(ctx, "ws-1", "user-b", func(c Cursor) {
		received <- c
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsubscribe()

	if err := channel.Publish(ctx, "ws-2", Cursor{UserID: "user-a", X: 1, Y: 1}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-received:
		t.Fatalf("received cursor from another workshop: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}

	entries, err := channel.Snapshot(ctx, "ws-1", "")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("ws-1 snapshot should be empty, got %+v", entries)
	}
}

func TestLeaveRemovesCursorFromSnapshot(t *testing.T) {
	channel, _ := setupTestChannel(t)
	ctx := context.Background()

	if err := channel.Publish(ctx, "ws-1", Cursor{UserID: "user-a", X: 1, Y: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := channel.Leave(ctx, "ws-1", "user-a"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	entries, err := channel.Snapshot(ctx, "ws-1", "")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty snapshot after leave, got %+v", entries)
	}
}

func TestActiveFiltersStaleEntries(t *testing.T) {
	now := time.Now()
	entries := []Entry{
		{Cursor: Cursor{UserID: "fresh"}, SeenAt: now.Add(-time.Second)},
		{Cursor: Cursor{UserID: "stale"}, SeenAt: now.Add(-time.Minute)},
	}

	active := Active(entries, DefaultTTL, now)
	if len(active) != 1 {
		t.Fatalf("expected 1 active entry, got %d", len(active))
	}
	if active[0].Cursor.UserID != "fresh" {
		t.Fatalf("expected the fresh cursor to survive, got %s", active[0].Cursor.UserID)
	}
}
