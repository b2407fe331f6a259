// Package pool runs a fixed set of judge workers, each bound to one
// sandbox box id, draining a shared job queue.
package pool

import (
	"context"
	"sync"

	"judgeworker/internal/judge"
	"judgeworker/internal/model"

	"go.uber.org/zap"
)

// BoxCleaner is the subset of sandbox.Driver a worker needs for sandbox
// lifecycle around a judge run.
type BoxCleaner interface {
	Init(ctx context.Context, boxID int) (string, error)
	Cleanup(ctx context.Context, boxID int) error
}

// Job is one submission to judge plus the callback to deliver its outcome
// to (the report client, in production; a test double in tests).
type Job struct {
	Request  model.JudgeRequest
	Callback func(model.JudgeOutcome)
}

// Pool owns N worker goroutines, indexed 0..N-1, each bound to sandbox box
// id == its index. Spec.md describes OS processes here for interpreter-
// fault isolation; this worker uses goroutines with panic recovery per
// job instead — see SPEC_FULL.md's redesign note.
type Pool struct {
	queue    chan Job
	pipeline *judge.Pipeline
	cleaner  BoxCleaner
	log      *zap.Logger
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New builds a Pool with the given worker count and queue depth.
func New(workers, queueDepth int, pipeline *judge.Pipeline, cleaner BoxCleaner, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pool{
		queue:    make(chan Job, queueDepth),
		pipeline: pipeline,
		cleaner:  cleaner,
		log:      log,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}
	return p
}

// Submit enqueues a job. Returns false if the pool has been shut down and
// can no longer accept work; callers should surface that as a transient
// failure to their caller rather than judging nothing.
func (p *Pool) Submit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.queue <- job
	return true
}

// Shutdown is drain-first: no new jobs are accepted once this call starts,
// but everything already queued still runs to completion before Shutdown
// returns.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) runWorker(boxID int) {
	defer p.wg.Done()

	ctx := context.Background()
	if _, err := p.cleaner.Init(ctx, boxID); err != nil {
		p.log.Error("worker sandbox init failed", zap.Int("box_id", boxID), zap.Error(err))
	}

	for job := range p.queue {
		p.runJob(ctx, boxID, job)
	}
}

func (p *Pool) runJob(ctx context.Context, boxID int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("judge worker recovered from panic",
				zap.Int("box_id", boxID), zap.Int64("submission_id", job.Request.Submission.ID),
				zap.Any("panic", r))
			job.Callback(model.JudgeOutcome{
				SubmissionID: job.Request.Submission.ID,
				Aborted:      true,
				Verdict:      model.VerdictSE,
			})
		}
	}()

	outcome := p.pipeline.Judge(ctx, job.Request, boxID)

	if err := p.cleaner.Cleanup(ctx, boxID); err != nil {
		p.log.Error("worker sandbox cleanup failed", zap.Int("box_id", boxID), zap.Error(err))
		outcome = model.JudgeOutcome{
			SubmissionID: job.Request.Submission.ID,
			Aborted:      true,
			Verdict:      model.VerdictSE,
		}
	}

	job.Callback(outcome)
}
