package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"hradmin/internal/platform/metrics"
)

const (
	JobWorkspaceSweep = "workspace_sweep"
	JobSessionPurge   = "session_purge"
)

// Task is one unit of background work. Its result is stored as the run's
// details.
type Task func(context.Context) (any, error)

// Service runs background tasks on a single worker. When DB is set every run
// is recorded in job_runs.
type Service struct {
	DB        *pgxpool.Pool
	queue     chan job
	schedules []schedule
}

type job struct {
	Type string
	Run  Task
}

type schedule struct {
	jobType  string
	interval time.Duration
	run      Task
}

func New(db *pgxpool.Pool) *Service {
	return &Service{
		DB:    db,
		queue: make(chan job, 128),
	}
}

// Every registers run to be enqueued each interval once Start is called.
// Non-positive intervals are ignored.
func (s *Service) Every(jobType string, interval time.Duration, run Task) {
	if interval <= 0 {
		return
	}
	s.schedules = append(s.schedules, schedule{jobType: jobType, interval: interval, run: run})
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	for _, sch := range s.schedules {
		go s.schedule(ctx, sch)
	}
}

func (s *Service) Enqueue(jobType string, run Task) {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType)
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run Task) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if s.DB != nil {
		if err := s.DB.QueryRow(ctx, `
      INSERT INTO job_runs (job_type, status)
      VALUES ($1,$2)
      RETURNING id
    `, j.Type, "running").Scan(&runID); err != nil {
			slog.Warn("job run insert failed", "err", err)
		}
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	metrics.JobRunsTotal.WithLabelValues(j.Type, status).Inc()

	if runID != "" {
		detailsJSON, marshalErr := json.Marshal(details)
		if marshalErr != nil {
			slog.Warn("job details marshal failed", "err", marshalErr)
			detailsJSON = []byte("{}")
		}
		if _, updErr := s.DB.Exec(ctx, `
      UPDATE job_runs
      SET status = $1, details_json = $2, completed_at = now()
      WHERE id = $3
    `, status, detailsJSON, runID); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}

func (s *Service) schedule(ctx context.Context, sch schedule) {
	ticker := time.NewTicker(sch.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(sch.jobType, sch.run)
		}
	}
}
