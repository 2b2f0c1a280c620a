package api

import (
	"time"

	"github.com/victornm/codejudge/internal/domain"
	"github.com/victornm/codejudge/internal/judge"
)

type (
	TestCase struct {
		Input          string `json:"input" mapstructure:"input"`
		ExpectedOutput string `json:"output" mapstructure:"output"`
	}

	JudgeRequest struct {
		Language  string     `json:"language" mapstructure:"language" binding:"required"`
		Code      string     `json:"code" mapstructure:"code" binding:"required"`
		TestCases []TestCase `json:"test_cases" mapstructure:"test_cases"`
	}

	CodeRequest struct {
		Language string `json:"language" binding:"required"`
		Code     string `json:"code" binding:"required"`
	}

	RunCustomRequest struct {
		Language string `json:"language" binding:"required"`
		Code     string `json:"code" binding:"required"`
		Input    string `json:"input"`
	}

	TestResult struct {
		TestCase       int    `json:"test_case"`
		Passed         bool   `json:"passed"`
		Input          string `json:"input"`
		ExpectedOutput string `json:"expected_output"`
		Output         string `json:"output"`
		ErrorMessage   string `json:"error_message,omitempty"`
	}

	JudgeResult struct {
		Verdict      domain.Verdict `json:"verdict"`
		PassedCases  int            `json:"passed_cases"`
		TotalCases   int            `json:"total"`
		Details      []TestResult   `json:"details"`
		ErrorMessage *string        `json:"error_message"`
	}

	RunCustomResult struct {
		Verdict      domain.Verdict `json:"verdict"`
		Output       string         `json:"output"`
		ErrorMessage *string        `json:"error_message"`
	}

	Submission struct {
		SubmissionID string          `json:"submission_id"`
		UserID       string          `json:"user_id"`
		ProblemID    string          `json:"problem_id"`
		ContestID    string          `json:"contest_id,omitempty"`
		Language     domain.Language `json:"language"`
		Code         string          `json:"code,omitempty"`
		Score        int             `json:"score"`
		SubmittedAt  time.Time       `json:"submitted_at"`
		JudgeResult
	}

	ContestSubmission struct {
		Submission
		TotalScore        *int `json:"total_score,omitempty"`
		Rank              *int `json:"rank,omitempty"`
		LeaderboardFailed bool `json:"leaderboard_failed,omitempty"`
	}

	Contest struct {
		ContestID    string    `json:"contest_id"`
		Title        string    `json:"title"`
		StartTime    time.Time `json:"start_time"`
		EndTime      time.Time `json:"end_time"`
		Participants int       `json:"participants"`
	}

	LeaderboardQuery struct {
		ContestID string `mapstructure:"contest_id"`
		Page      int    `form:"page" mapstructure:"page"`
		Limit     int    `form:"limit" mapstructure:"limit"`
	}

	Leaderboard struct {
		ContestID string             `json:"contest_id"`
		Page      int                `json:"page"`
		Limit     int                `json:"limit"`
		Entries   []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		Rank          int                   `json:"rank"`
		Username      string                `json:"username"`
		TotalScore    int                   `json:"total_score"`
		ProblemScores []domain.ProblemScore `json:"problem_scores"`
	}
)

func (r JudgeRequest) toDomain() judge.Request {
	req := judge.Request{
		Language:  domain.Language(r.Language),
		Code:      r.Code,
		TestCases: make([]domain.TestCase, 0, len(r.TestCases)),
	}
	for _, tc := range r.TestCases {
		req.TestCases = append(req.TestCases, domain.TestCase{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
		})
	}
	return req
}

func newJudgeResult(r *domain.JudgeResult) JudgeResult {
	return JudgeResult{
		Verdict:      r.Verdict,
		PassedCases:  r.PassedCases,
		TotalCases:   r.TotalCases,
		Details:      newTestResults(r.Details),
		ErrorMessage: optional(r.ErrorMessage),
	}
}

func newTestResults(details []domain.TestResult) []TestResult {
	out := make([]TestResult, 0, len(details))
	for _, d := range details {
		out = append(out, TestResult{
			TestCase:       d.Index,
			Passed:         d.Passed,
			Input:          d.Input,
			ExpectedOutput: d.ExpectedOutput,
			Output:         d.Output,
			ErrorMessage:   d.ErrorMessage,
		})
	}
	return out
}

func newSubmission(s *domain.Submission) Submission {
	return Submission{
		SubmissionID: s.ID,
		UserID:       s.UserID,
		ProblemID:    s.ProblemID,
		ContestID:    s.ContestID,
		Language:     s.Language,
		Code:         s.Code,
		Score:        s.Score,
		SubmittedAt:  s.SubmittedAt,
		JudgeResult: JudgeResult{
			Verdict:      s.Verdict,
			PassedCases:  s.PassedCases,
			TotalCases:   s.TotalCases,
			Details:      newTestResults(s.Details),
			ErrorMessage: optional(s.ErrorMessage),
		},
	}
}

func newLeaderboard(l *domain.Leaderboard) Leaderboard {
	out := Leaderboard{
		ContestID: l.ContestID,
		Page:      l.Page,
		Limit:     l.Limit,
		Entries:   make([]LeaderboardEntry, 0, len(l.Entries)),
	}
	for _, e := range l.Entries {
		scores := e.ProblemScores
		if scores == nil {
			scores = []domain.ProblemScore{}
		}
		out.Entries = append(out.Entries, LeaderboardEntry{
			Rank:          e.Rank,
			Username:      e.Username,
			TotalScore:    e.TotalScore,
			ProblemScores: scores,
		})
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
