package workers

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"game-wager-system/models"
	"game-wager-system/services"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

// JobHandler runs one scheduled job for the referenced record.
type JobHandler func(ctx context.Context, refID string) error

// JobRunner polls the scheduled_jobs table and dispatches due jobs by kind.
// Each job is claimed before it runs and is never retried automatically; a
// failed job keeps its error in last_error for an operator.
type JobRunner struct {
	DB        *gorm.DB
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time

	handlers  map[models.JobKind]JobHandler
	scheduler gocron.Scheduler
	stopOnce  sync.Once
}

func NewJobRunner(db *gorm.DB, interval time.Duration) *JobRunner {
	return &JobRunner{
		DB:        db,
		Interval:  interval,
		BatchSize: 50,
		Now:       func() time.Time { return time.Now().UTC() },
		handlers:  map[models.JobKind]JobHandler{},
	}
}

// Handle registers the handler for a job kind.
func (r *JobRunner) Handle(kind models.JobKind, h JobHandler) {
	r.handlers[kind] = h
}

// Start polls every Interval until ctx is cancelled or Stop is called.
func (r *JobRunner) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(r.Interval),
		gocron.NewTask(func() {
			if n, err := r.RunDue(ctx); err != nil {
				log.Printf("[JOBS] ❌ poll failed: %v", err)
			} else if n > 0 {
				log.Printf("[JOBS] ran %d job(s)", n)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("register poll job: %w", err)
	}
	r.scheduler = sched
	sched.Start()
	log.Printf("🔁 [JOBS] polling scheduled jobs every %s", r.Interval)

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

func (r *JobRunner) Stop() {
	if r.scheduler == nil {
		return
	}
	r.stopOnce.Do(func() {
		if err := r.scheduler.Shutdown(); err != nil {
			log.Printf("[JOBS] ⚠️ scheduler shutdown: %v", err)
			return
		}
		log.Println("⏹️ [JOBS] job runner stopped")
	})
}

// RunDue claims and runs every job that is due now. It returns how many jobs
// this call ran, including failed ones.
func (r *JobRunner) RunDue(ctx context.Context) (int, error) {
	jobs, err := services.DueJobs(ctx, r.DB, r.Now(), r.BatchSize)
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}
		claimed, err := services.ClaimJob(ctx, r.DB, job.ID, r.Now())
		if err != nil {
			return ran, err
		}
		if !claimed {
			continue
		}

		runErr := r.dispatch(ctx, job)
		if runErr != nil {
			log.Printf("[JOBS] ❌ %s for %s failed: %v", job.Kind, job.RefID, runErr)
		} else {
			log.Printf("[JOBS] ✅ %s for %s done", job.Kind, job.RefID)
		}
		if err := services.FinishJob(ctx, r.DB, job.ID, runErr, r.Now()); err != nil {
			return ran, err
		}
		ran++
	}
	return ran, nil
}

func (r *JobRunner) dispatch(ctx context.Context, job models.ScheduledJob) (err error) {
	h, ok := r.handlers[job.Kind]
	if !ok {
		return fmt.Errorf("no handler for job kind %q", job.Kind)
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return h(ctx, job.RefID)
}
