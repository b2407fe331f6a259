// Package intake is the judge worker's inbound HTTP surface: liveness,
// authenticated submission intake, and the test-data refresh trigger.
package intake

import (
	"context"
	"crypto/subtle"
	"net/http"

	"judgeworker/internal/model"
	"judgeworker/internal/pool"
	"judgeworker/internal/taskcache"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SnapshotCache is the subset of taskcache.Cache the intake API depends on.
type SnapshotCache interface {
	Resolve(ctx context.Context, taskID int64, park func(snapshotPath string))
}

// JobSubmitter is the subset of pool.Pool the intake API depends on.
type JobSubmitter interface {
	Submit(job pool.Job) bool
}

// JudgeRequestBody is the wire shape of POST /judge, per spec.md §6.
type JudgeRequestBody struct {
	TaskID           int64  `json:"task_id" binding:"required"`
	SubmissionID     int64  `json:"submission_id" binding:"required"`
	Language         string `json:"language" binding:"required"`
	SourceCode       string `json:"source_code" binding:"required"`
	InOngoingContest bool   `json:"in_ongoing_contest"`
}

// TestDataRefreshHook lets deployments plug in their own out-of-band test
// data update mechanism for POST /pull_test_cases. The default is a no-op,
// per spec.md's explicit "MAY be a no-op" allowance (Open Question #1).
type TestDataRefreshHook interface {
	Refresh(ctx context.Context) error
}

// NoopRefreshHook is the default TestDataRefreshHook.
type NoopRefreshHook struct{}

// Refresh does nothing.
func (NoopRefreshHook) Refresh(ctx context.Context) error { return nil }

// Reporter delivers a finished JudgeOutcome to the frontend; implemented
// by internal/report.
type Reporter interface {
	Report(ctx context.Context, outcome model.JudgeOutcome)
}

// Server wires the gin engine for the intake API.
type Server struct {
	secret      string
	cache       SnapshotCache
	pool        JobSubmitter
	reporter    Reporter
	refreshHook TestDataRefreshHook
	log         *zap.Logger
}

// New builds a Server. refreshHook may be nil, defaulting to NoopRefreshHook.
func New(secret string, cache SnapshotCache, workerPool JobSubmitter, reporter Reporter, refreshHook TestDataRefreshHook, log *zap.Logger) *Server {
	if refreshHook == nil {
		refreshHook = NoopRefreshHook{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{secret: secret, cache: cache, pool: workerPool, reporter: reporter, refreshHook: refreshHook, log: log}
}

// Engine builds the gin.Engine serving this Server's routes.
func (s *Server) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ping", s.handlePing)

	authed := r.Group("/")
	authed.Use(sharedSecretMiddleware(s.secret))
	authed.POST("/judge", s.handleJudge)
	authed.POST("/pull_test_cases", s.handlePullTestCases)

	return r
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// sharedSecretMiddleware enforces the X-Auth-Token header via constant-time
// compare, the same extraction-then-compare shape as the teacher's bearer
// token middleware, adapted from Bearer/JWT to a flat shared secret.
func sharedSecretMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-Auth-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			c.JSON(http.StatusOK, gin.H{"success": false})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) handleJudge(c *gin.Context) {
	var body JudgeRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}

	submission := model.Submission{
		ID:               body.SubmissionID,
		Language:         body.Language,
		SourceCode:       body.SourceCode,
		InOngoingContest: body.InOngoingContest,
	}

	s.cache.Resolve(c.Request.Context(), body.TaskID, func(snapshotPath string) {
		s.enqueue(body.TaskID, submission, snapshotPath)
	})

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) enqueue(taskID int64, submission model.Submission, snapshotPath string) {
	taskInfo, err := taskcache.ReadTaskInfo(taskID, snapshotPath)
	if err != nil {
		s.log.Error("read task info failed, dropping submission", zap.Int64("task_id", taskID), zap.Error(err))
		s.reporter.Report(context.Background(), model.JudgeOutcome{
			SubmissionID: submission.ID, Aborted: true, Verdict: model.VerdictSE,
		})
		return
	}

	req := model.JudgeRequest{TaskInfo: taskInfo, Submission: submission, SnapshotPath: snapshotPath}
	accepted := s.pool.Submit(pool.Job{
		Request: req,
		Callback: func(outcome model.JudgeOutcome) {
			s.reporter.Report(context.Background(), outcome)
		},
	})
	if !accepted {
		s.log.Warn("worker pool rejected submission during shutdown", zap.Int64("submission_id", submission.ID))
	}
}

func (s *Server) handlePullTestCases(c *gin.Context) {
	if err := s.refreshHook.Refresh(c.Request.Context()); err != nil {
		s.log.Error("test data refresh hook failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
