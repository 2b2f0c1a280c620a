package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/codejudge/internal/domain"
)

const maxConcurrent = 100

type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// PublishLeaderboardUpdated broadcasts the top of a leaderboard on the contest channel
// and notifies every user listed on it.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data := newLeaderboard(&e.Leaderboard)

	if err := a.publishNotification(ctx, a.contestChannel(data.ContestID), e.Name(), data); err != nil {
		return err
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		entry := entry
		eg.Go(func() error {
			return a.publishNotification(ctx, a.userChannel(entry.Username), e.Name(), data)
		})
	}

	return eg.Wait()
}

// PublishSubmissionJudged notifies the author of a submission about its verdict
// on the same user channel that carries leaderboard updates.
func (a *API) PublishSubmissionJudged(ctx context.Context, e domain.EventSubmissionJudged) error {
	s := e.Submission
	data := newSubmission(&s)
	data.Code = ""

	user := e.Username
	if user == "" {
		user = s.UserID
	}

	return a.publishNotification(ctx, a.userChannel(user), e.Name(), data)
}

func (a *API) contestChannel(contestID string) string {
	return a.channel("contest:" + contestID)
}

// userChannel is keyed by username.
func (a *API) userChannel(user string) string {
	return a.channel("user:" + user)
}

func (a *API) channel(name string) string {
	if a.prefix == "" {
		return name
	}
	return a.prefix + ":" + name
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}
