// Package schedule runs the ingestion job periodically.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/TobiSchelling/trendcrawler/internal/collect"
	"github.com/TobiSchelling/trendcrawler/internal/logger"
)

// Job is one ingestion run.
type Job interface {
	Collect(ctx context.Context, feeds []string, opts collect.Options) (*collect.Result, error)
}

// Scheduler triggers a Job on a cron spec. Runs never overlap.
type Scheduler struct {
	cron  *cron.Cron
	job   Job
	feeds []string
	opts  collect.Options
	log   logger.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	lastErr error
	last    *collect.Result
}

// New creates a Scheduler. spec accepts standard five-field cron
// expressions and descriptors such as "@every 30m".
func New(spec string, job Job, feeds []string, opts collect.Options, log logger.Logger) (*Scheduler, error) {
	log = logger.OrNop(log)
	cl := cronLogger{log}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   c,
		job:    job,
		feeds:  feeds,
		opts:   opts,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}

	if _, err := c.AddFunc(spec, func() { s.RunOnce(s.ctx) }); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

// Start begins scheduling in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels any running job and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// Next reports when the job fires next. Zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunOnce runs the job immediately and records the outcome.
func (s *Scheduler) RunOnce(ctx context.Context) (*collect.Result, error) {
	s.log.Infow("collect job starting", "feeds", len(s.feeds))
	start := time.Now()

	res, err := s.job.Collect(ctx, s.feeds, s.opts)

	s.mu.Lock()
	s.last, s.lastErr = res, err
	s.mu.Unlock()

	if err != nil {
		s.log.Errorw("collect job failed", "error", err)
		return res, err
	}
	s.log.Infow("collect job done",
		"found", res.TotalFound,
		"new", res.NewArticles,
		"duplicates", res.Duplicates,
		"failed_sources", len(res.FailedSources),
		"took", time.Since(start).Round(time.Millisecond),
	)
	return res, nil
}

// Last returns the outcome of the most recent run.
func (s *Scheduler) Last() (*collect.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.lastErr
}

// cronLogger routes cron's own messages through the application logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
