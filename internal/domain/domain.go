package domain

import (
	"time"
)

// Language is a programming language accepted by the judge.
type Language string

const (
	LanguagePython Language = "python"
	LanguageJava   Language = "java"
	LanguageCpp    Language = "cpp"
)

// Languages lists every supported language.
var Languages = []Language{LanguagePython, LanguageJava, LanguageCpp}

// Valid reports whether l is one of the supported languages.
func (l Language) Valid() bool {
	for _, s := range Languages {
		if l == s {
			return true
		}
	}
	return false
}

// Verdict is the final classification of a submission.
type Verdict string

const (
	VerdictPending          Verdict = "Pending"
	VerdictAccepted         Verdict = "Accepted"
	VerdictWrongAnswer      Verdict = "WrongAnswer"
	VerdictCompilationError Verdict = "CompilationError"
	VerdictRuntimeError     Verdict = "RuntimeError"
)

// TestCase is one input/expected output pair of a problem.
type TestCase struct {
	Input          string
	ExpectedOutput string
	Hidden         bool
}

// TestResult is the outcome of running a submission against a single test case.
// Index is 1-based.
type TestResult struct {
	Index          int
	Passed         bool
	Input          string
	ExpectedOutput string
	Output         string
	ErrorMessage   string
}

// JudgeResult is what the judge produces for one piece of code.
type JudgeResult struct {
	Verdict      Verdict
	PassedCases  int
	TotalCases   int
	Details      []TestResult
	ErrorMessage string
}

// Submission is a judged attempt of a user on a problem. It is never mutated once the verdict is set.
type Submission struct {
	ID           string
	UserID       string
	ProblemID    string
	ContestID    string
	Language     Language
	Code         string
	Verdict      Verdict
	Details      []TestResult
	PassedCases  int
	TotalCases   int
	ErrorMessage string
	Score        int
	SubmittedAt  time.Time
}

// Problem is the judging view of a problem: its identity and ordered test cases.
type Problem struct {
	ProblemID string
	Title     string
	TestCases []TestCase
}

type ContestStatus string

const (
	ContestUpcoming  ContestStatus = "upcoming"
	ContestOngoing   ContestStatus = "ongoing"
	ContestCompleted ContestStatus = "completed"
)

// Contest is a timed competition over a fixed set of problems.
type Contest struct {
	ContestID    string
	Title        string
	StartTime    time.Time
	EndTime      time.Time
	Problems     []ContestProblem
	Participants []string
}

// ContestProblem binds a problem to a contest with its base points.
type ContestProblem struct {
	ProblemID string
	Points    int
}

// Status returns the contest status at the given time.
func (c Contest) Status(now time.Time) ContestStatus {
	switch {
	case now.Before(c.StartTime):
		return ContestUpcoming
	case now.After(c.EndTime):
		return ContestCompleted
	default:
		return ContestOngoing
	}
}

// Points returns the base points of a problem in the contest, and whether the problem belongs to it.
func (c Contest) Points(problemID string) (int, bool) {
	for _, p := range c.Problems {
		if p.ProblemID == problemID {
			return p.Points, true
		}
	}
	return 0, false
}

// HasParticipant reports whether the user joined the contest.
func (c Contest) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// ProblemScore is the best score of a user on one contest problem.
type ProblemScore struct {
	ProblemID string `json:"problem_id"`
	Score     int    `json:"score"`
}

// LeaderboardEntry is the authoritative standing of one user in a contest.
// TotalScore is always the sum of ProblemScores, Rank is the 1-based position in the contest.
type LeaderboardEntry struct {
	UserID        string
	Username      string
	TotalScore    int
	ProblemScores []ProblemScore
	SubmissionIDs []string
	Rank          int
}

// Leaderboard is one page of a contest leaderboard, sorted by score in descending order.
type Leaderboard struct {
	ContestID string
	Page      int
	Limit     int
	Entries   []LeaderboardRow
}

// LeaderboardRow is a ranked row of a leaderboard page.
type LeaderboardRow struct {
	Rank          int
	Username      string
	TotalScore    int
	ProblemScores []ProblemScore
}
