package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/match-lifecycle/internal/domain"
)

func newTestHub(t *testing.T, authorize MatchAuthorizer) *Hub {
	t.Helper()
	hub := NewHub(authorize, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func connect(t *testing.T, hub *Hub, playerID string) *Client {
	t.Helper()
	c := NewClient(hub, nil, playerID, hub.logger)
	hub.Register(c)
	require.Eventually(t, func() bool { return hub.GetSubscriberCount(PlayerChannel(playerID)) > 0 }, time.Second, 5*time.Millisecond)
	return c
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	return Message{}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected message: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func testMatch() *domain.Match {
	return &domain.Match{
		ID:     "m-1",
		Status: domain.MatchPendingApproval,
		TeamA:  domain.Team{Players: [2]domain.Slot{{PlayerID: "ana"}, {PlayerID: "bea"}}},
		TeamB:  domain.Team{Players: [2]domain.Slot{{PlayerID: "carla"}, {PlayerID: "dani"}}},
	}
}

func TestHub_MatchUpdateReachesParticipantsOnce(t *testing.T) {
	allowAll := func(context.Context, string, string) error { return nil }
	hub := newTestHub(t, allowAll)
	ana := connect(t, hub, "ana")
	outsider := connect(t, hub, "eva")

	require.NoError(t, hub.Subscribe(context.Background(), ana, MatchChannel("m-1")))
	require.Eventually(t, func() bool { return hub.GetSubscriberCount(MatchChannel("m-1")) == 1 }, time.Second, 5*time.Millisecond)

	hub.BroadcastMatchUpdate(testMatch())

	msg := receive(t, ana)
	assert.Equal(t, MessageTypeMatchUpdate, msg.Type)
	assert.Equal(t, "match:m-1", msg.Channel)
	// subscribed to both the match and its own channel, still delivered once
	assertSilent(t, ana)
	assertSilent(t, outsider)
}

func TestHub_RankingUpdate(t *testing.T) {
	hub := newTestHub(t, nil)
	ana := connect(t, hub, "ana")
	bea := connect(t, hub, "bea")

	require.NoError(t, hub.Subscribe(context.Background(), ana, RegionChannel("catalonia/barcelona")))
	require.Eventually(t, func() bool { return hub.GetSubscriberCount(RegionChannel("catalonia/barcelona")) == 1 }, time.Second, 5*time.Millisecond)

	hub.BroadcastRankingUpdate("catalonia/barcelona", []domain.RankingEntry{{Rank: 1, PlayerID: "carla", Rating: 1800}})

	msg := receive(t, ana)
	assert.Equal(t, MessageTypeRankingUpdate, msg.Type)
	assertSilent(t, bea)
}

func TestHub_SubscribeAuthorization(t *testing.T) {
	onlyParticipants := func(_ context.Context, matchID, playerID string) error {
		if testMatch().IsParticipant(playerID) && matchID == "m-1" {
			return nil
		}
		return domain.ErrNotParticipant
	}
	hub := newTestHub(t, onlyParticipants)
	ana := connect(t, hub, "ana")
	eva := connect(t, hub, "eva")
	ctx := context.Background()

	tests := []struct {
		name    string
		client  *Client
		channel string
		wantErr error
	}{
		{"participant follows match", ana, MatchChannel("m-1"), nil},
		{"outsider cannot follow match", eva, MatchChannel("m-1"), domain.ErrForbidden},
		{"anyone follows a region", eva, RegionChannel("madrid/madrid"), nil},
		{"own player channel", eva, PlayerChannel("eva"), nil},
		{"someone else's player channel", eva, PlayerChannel("ana"), domain.ErrForbidden},
		{"unknown channel", ana, "lobby", domain.ErrForbidden},
		{"empty match id", ana, "match:", domain.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := hub.Subscribe(ctx, tt.client, tt.channel)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHub_Unregister(t *testing.T) {
	hub := newTestHub(t, nil)
	ana := connect(t, hub, "ana")
	assert.Equal(t, 1, hub.GetTotalConnections())

	hub.Unregister(ana)
	require.Eventually(t, func() bool { return hub.GetTotalConnections() == 0 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, hub.GetSubscriberCount(PlayerChannel("ana")))

	_, open := <-ana.send
	assert.False(t, open)
}
