package domain

const (
	EventNameSubmissionJudged   = "submission.judged"
	EventNameScoreRecorded      = "score.recorded"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

// EventSubmissionJudged carries the username of the author next to the submission,
// notifications address users by the name they appear with on leaderboards.
type EventSubmissionJudged struct {
	Submission Submission
	Username   string
}

func (EventSubmissionJudged) Name() string { return EventNameSubmissionJudged }

// EventScoreRecorded is published after a positive contest score reached the leaderboard.
type EventScoreRecorded struct {
	Contest Contest
	Entry   LeaderboardEntry
}

func (EventScoreRecorded) Name() string { return EventNameScoreRecorded }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
