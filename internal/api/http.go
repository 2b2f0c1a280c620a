package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/codejudge/internal/contest"
	"github.com/victornm/codejudge/internal/domain"
	"github.com/victornm/codejudge/internal/errors"
	"github.com/victornm/codejudge/internal/leaderboard"
	"github.com/victornm/codejudge/internal/submission"
)

// Identity headers are set by the gateway after authenticating the caller.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUsername = "X-Username"

	ctxKeyUserID   = "user_id"
	ctxKeyUsername = "username"
)

func (a *API) registerRoutes(r gin.IRouter) {
	v1 := r.Group("/api/v1")

	v1.POST("/judge", a.judgeCode)
	v1.GET("/contests/:contestId/leaderboard", a.getLeaderboard)
	v1.POST("/contests/:contestId/leaderboard/rebuild", a.rebuildLeaderboard)

	problems := v1.Group("/problems/:problemId")
	problems.POST("/run", a.runCode)
	problems.POST("/run/custom", a.runCustom)

	user := v1.Group("", identify)
	user.POST("/problems/:problemId/submissions", a.submit)
	user.GET("/submissions", a.listSubmissions)
	user.GET("/submissions/:submissionId", a.getSubmission)
	user.POST("/contests/:contestId/join", a.joinContest)
	user.POST("/contests/:contestId/problems/:problemId/submissions", a.submitContest)
}

func identify(c *gin.Context) {
	userID := c.GetHeader(HeaderUserID)
	if userID == "" {
		abort(c, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("missing %s header", HeaderUserID)))
		return
	}

	username := c.GetHeader(HeaderUsername)
	if username == "" {
		username = userID
	}

	c.Set(ctxKeyUserID, userID)
	c.Set(ctxKeyUsername, username)
	c.Next()
}

func (a *API) judgeCode(c *gin.Context) {
	var req JudgeRequest
	if !bind(c, &req) {
		return
	}

	res, err := a.judge.Judge(c.Request.Context(), req.toDomain())
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, newJudgeResult(res))
}

func (a *API) runCode(c *gin.Context) {
	var req CodeRequest
	if !bind(c, &req) {
		return
	}

	res, err := a.submissions.Run(c.Request.Context(), submission.RunRequest{
		ProblemID: c.Param("problemId"),
		Language:  domain.Language(req.Language),
		Code:      req.Code,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, newJudgeResult(res))
}

func (a *API) runCustom(c *gin.Context) {
	var req RunCustomRequest
	if !bind(c, &req) {
		return
	}

	res, err := a.submissions.RunCustom(c.Request.Context(), submission.RunCustomRequest{
		Language: domain.Language(req.Language),
		Code:     req.Code,
		Input:    req.Input,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, RunCustomResult{
		Verdict:      res.Verdict,
		Output:       res.Output,
		ErrorMessage: optional(res.ErrorMessage),
	})
}

func (a *API) submit(c *gin.Context) {
	var req CodeRequest
	if !bind(c, &req) {
		return
	}

	sub, err := a.submissions.Submit(c.Request.Context(), submission.SubmitRequest{
		UserID:    c.GetString(ctxKeyUserID),
		Username:  c.GetString(ctxKeyUsername),
		ProblemID: c.Param("problemId"),
		Language:  domain.Language(req.Language),
		Code:      req.Code,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, newSubmission(sub))
}

func (a *API) getSubmission(c *gin.Context) {
	sub, err := a.submissions.Get(c.Request.Context(), c.GetString(ctxKeyUserID), c.Param("submissionId"))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, newSubmission(sub))
}

func (a *API) listSubmissions(c *gin.Context) {
	var q struct {
		ProblemID string `form:"problem_id"`
		Limit     int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid query: %v", err)))
		return
	}

	subs, err := a.submissions.ListByUser(c.Request.Context(), submission.ListRequest{
		UserID:    c.GetString(ctxKeyUserID),
		ProblemID: q.ProblemID,
		Limit:     q.Limit,
	})
	if err != nil {
		abort(c, err)
		return
	}

	out := make([]Submission, 0, len(subs))
	for i := range subs {
		out = append(out, newSubmission(&subs[i]))
	}

	c.JSON(http.StatusOK, gin.H{"submissions": out})
}

func (a *API) joinContest(c *gin.Context) {
	ct, err := a.contests.Join(c.Request.Context(), contest.JoinRequest{
		ContestID: c.Param("contestId"),
		UserID:    c.GetString(ctxKeyUserID),
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, Contest{
		ContestID:    ct.ContestID,
		Title:        ct.Title,
		StartTime:    ct.StartTime,
		EndTime:      ct.EndTime,
		Participants: len(ct.Participants),
	})
}

func (a *API) submitContest(c *gin.Context) {
	var req CodeRequest
	if !bind(c, &req) {
		return
	}

	resp, err := a.submissions.SubmitContest(c.Request.Context(), submission.SubmitContestRequest{
		ContestID: c.Param("contestId"),
		ProblemID: c.Param("problemId"),
		UserID:    c.GetString(ctxKeyUserID),
		Username:  c.GetString(ctxKeyUsername),
		Language:  domain.Language(req.Language),
		Code:      req.Code,
	})
	if err != nil {
		abort(c, err)
		return
	}

	out := ContestSubmission{
		Submission:        newSubmission(&resp.Submission),
		LeaderboardFailed: resp.LeaderboardFailed,
	}
	if resp.Entry != nil {
		out.TotalScore = &resp.Entry.TotalScore
		out.Rank = &resp.Entry.Rank
	}

	c.JSON(http.StatusCreated, out)
}

func (a *API) getLeaderboard(c *gin.Context) {
	var q LeaderboardQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid query: %v", err)))
		return
	}

	l, err := a.leaderboard.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		ContestID: c.Param("contestId"),
		Page:      q.Page,
		Limit:     q.Limit,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, newLeaderboard(l))
}

func (a *API) rebuildLeaderboard(c *gin.Context) {
	if err := a.leaderboard.Rebuild(c.Request.Context(), c.Param("contestId")); err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request: %v", err)))
		return false
	}
	return true
}

func abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal || e.Code == errors.CodeUnavailable {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e})
}
