// Package report delivers judge outcomes back to the frontend over HTTP,
// with bounded retry on server errors and indefinite retry on connection
// failures for the terminal report.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"judgeworker/internal/model"

	"go.uber.org/zap"
)

// Config controls the report client's endpoint, auth, and retry policy.
type Config struct {
	FrontendURL string
	Secret      string
	MaxRetries  int // bounded retries on HTTP 502; <= 0 uses the default of 5
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	HTTPClient  *http.Client
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return c
}

// Client posts JudgeOutcomes to {FrontendURL}/submission/{id}/report.
type Client struct {
	cfg Config
	log *zap.Logger
}

// New builds a Client.
func New(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{cfg: cfg.withDefaults(), log: log}
}

// reportBody is the wire payload: either a terminal verdict (compile error,
// system error) or the per-case result list, per spec.md §5.
type reportBody struct {
	Verdict         model.Verdict          `json:"verdict,omitempty"`
	TestCaseResults []model.TestCaseResult `json:"test_case_results,omitempty"`
}

// Report delivers outcome, retrying indefinitely on connection failure and
// up to cfg.MaxRetries times (exponential backoff) on HTTP 502. It does not
// return an error: a report that cannot be delivered is logged and dropped
// rather than blocking its caller forever once retries are exhausted.
func (c *Client) Report(ctx context.Context, outcome model.JudgeOutcome) {
	body := reportBody{TestCaseResults: outcome.Results}
	if outcome.Aborted {
		body = reportBody{Verdict: outcome.Verdict}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		c.log.Error("report payload marshal failed", zap.Int64("submission_id", outcome.SubmissionID), zap.Error(err))
		return
	}

	retryCount := 0
	for {
		status, err := c.post(ctx, outcome.SubmissionID, payload)
		if err == nil && status == http.StatusOK {
			return
		}

		if err != nil {
			// Connection-level failure: retry indefinitely, spec.md §6.
			c.log.Warn("report delivery connection failure, retrying indefinitely",
				zap.Int64("submission_id", outcome.SubmissionID), zap.Error(err))
			delay := computeBackoff(retryCount, c.cfg.BaseDelay, c.cfg.MaxDelay)
			if !sleep(ctx, delay) {
				return
			}
			retryCount++
			continue
		}

		if status == http.StatusBadGateway {
			if retryCount >= c.cfg.MaxRetries {
				c.log.Error("report delivery exhausted retries on 502",
					zap.Int64("submission_id", outcome.SubmissionID), zap.Int("retries", retryCount))
				return
			}
			delay := computeBackoff(retryCount, c.cfg.BaseDelay, c.cfg.MaxDelay)
			if !sleep(ctx, delay) {
				return
			}
			retryCount++
			continue
		}

		c.log.Error("report delivery rejected by frontend",
			zap.Int64("submission_id", outcome.SubmissionID), zap.Int("status", status))
		return
	}
}

func (c *Client) post(ctx context.Context, submissionID int64, payload []byte) (int, error) {
	url := fmt.Sprintf("%s/submission/%d/report", c.cfg.FrontendURL, submissionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Auth-Token", c.cfg.Secret)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// computeBackoff mirrors the teacher's ComputePoolBackoff: doubling delay
// from base, capped at max.
func computeBackoff(retryCount int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if retryCount <= 0 {
		if max > 0 && base > max {
			return max
		}
		return base
	}
	delay := base
	for i := 0; i < retryCount; i++ {
		if max > 0 && delay >= max {
			return max
		}
		if max > 0 && delay > max/2 {
			delay = max
			break
		}
		delay *= 2
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}

// sleep waits out delay or returns false if ctx is canceled first.
func sleep(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
