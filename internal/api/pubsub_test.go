package api_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/codejudge/internal/api"
	"github.com/victornm/codejudge/internal/domain"
	"github.com/victornm/codejudge/internal/event"
)

func TestAPI_PublishLeaderboardUpdated(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, rdb, _ := makePubsub(t)
	sub := subscribe(t, rdb, "cj:contest:c1", "cj:user:alice", "cj:user:bob")

	err := a.PublishLeaderboardUpdated(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: domain.Leaderboard{
			ContestID: "c1",
			Page:      1,
			Limit:     10,
			Entries: []domain.LeaderboardRow{
				{Rank: 1, Username: "alice", TotalScore: 800},
				{Rank: 2, Username: "bob", TotalScore: 300},
			},
		},
	})
	require.NoError(t, err)

	got := make(map[string]api.Notification)
	for i := 0; i < 3; i++ {
		msg, err := sub.ReceiveMessage(ctx)
		require.NoError(t, err)

		var n api.Notification
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
		got[msg.Channel] = n
	}

	require.Contains(t, got, "cj:contest:c1")
	assert.Equal(t, domain.EventNameLeaderboardUpdated, got["cj:contest:c1"].Event)
	data := got["cj:contest:c1"].Data.(map[string]any)
	assert.Equal(t, "c1", data["contest_id"])
	assert.Len(t, data["entries"], 2)

	assert.Equal(t, got["cj:contest:c1"], got["cj:user:alice"])
	assert.Equal(t, got["cj:contest:c1"], got["cj:user:bob"])
}

func TestAPI_PublishSubmissionJudged(t *testing.T) {
	tests := map[string]struct {
		username string
		channel  string
	}{
		"addressed by username like leaderboard updates": {
			username: "alice",
			channel:  "cj:user:alice",
		},
		"falls back to the user id": {
			channel: "cj:user:u1",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_, rdb, bus := makePubsub(t)
			sub := subscribe(t, rdb, tt.channel)

			bus.Publish(ctx, domain.EventSubmissionJudged{
				Submission: domain.Submission{
					ID:        "s1",
					UserID:    "u1",
					ProblemID: "p1",
					Code:      "secret",
					Verdict:   domain.VerdictWrongAnswer,
				},
				Username: tt.username,
			})
			bus.Stop()

			msg, err := sub.ReceiveMessage(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.channel, msg.Channel)

			var n api.Notification
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
			assert.Equal(t, domain.EventNameSubmissionJudged, n.Event)

			data := n.Data.(map[string]any)
			assert.Equal(t, "s1", data["submission_id"])
			assert.Equal(t, "WrongAnswer", data["verdict"])
			assert.NotContains(t, data, "code", "notifications do not carry source code")
		})
	}
}

func makePubsub(t *testing.T) (*api.API, *redis.Client, *event.Bus) {
	t.Helper()

	m := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	bus := event.NewBus()
	a := api.New(api.Config{
		EventBus:     bus,
		Judge:        &fakeJudge{},
		Submissions:  &fakeSubmissions{},
		Contests:     &fakeContests{},
		Leaderboard:  &fakeLeaderboard{},
		Redis:        rdb,
		PubsubPrefix: "cj",
	})

	return a, rdb, bus
}

func subscribe(t *testing.T, rdb *redis.Client, channels ...string) *redis.PubSub {
	t.Helper()

	sub := rdb.Subscribe(context.Background(), channels...)
	t.Cleanup(func() { _ = sub.Close() })

	// Wait for every subscription to be confirmed before publishing.
	for range channels {
		_, err := sub.Receive(context.Background())
		require.NoError(t, err)
	}

	return sub
}
