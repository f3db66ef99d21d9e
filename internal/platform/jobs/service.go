package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"payrollengine/internal/platform/logging"
)

const (
	JobPayrollCycle      = "payroll_cycle"
	JobSettlementAdvice  = "settlement_advice"
	defaultQueueCapacity = 128
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunFunc does the work of one job and returns details kept with the run.
type RunFunc func(context.Context) (any, error)

// RunLog records job runs. Start returns the run id.
type RunLog interface {
	Start(ctx context.Context, jobType string) (string, error)
	Finish(ctx context.Context, runID, status string, details []byte) error
}

type Service struct {
	runs   RunLog
	logger logrus.FieldLogger
	queue  chan job
}

type job struct {
	Type string
	Run  RunFunc
}

func New(runs RunLog, logger logrus.FieldLogger) *Service {
	return &Service{
		runs:   runs,
		logger: logging.OrDiscard(logger),
		queue:  make(chan job, defaultQueueCapacity),
	}
}

// Start runs the queue worker until ctx ends.
func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
}

// Schedule enqueues run every interval until ctx ends. A non-positive
// interval schedules nothing.
func (s *Service) Schedule(ctx context.Context, jobType string, interval time.Duration, run RunFunc) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Enqueue(jobType, run)
			}
		}
	}()
}

// Enqueue drops the job with a warning when the queue is full.
func (s *Service) Enqueue(jobType string, run RunFunc) bool {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
		return true
	default:
		s.logger.WithField("jobType", jobType).Warn("job queue full")
		return false
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run RunFunc) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				s.logger.WithField("jobType", j.Type).WithError(err).Warn("job run failed")
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if s.runs != nil {
		id, err := s.runs.Start(ctx, j.Type)
		if err != nil {
			logging.LogError(s.logger, "jobs", "runJob", err, logrus.Fields{"jobType": j.Type})
		}
		runID = id
	}

	details, err := j.Run(ctx)
	status := RunStatusCompleted
	if err != nil {
		status = RunStatusFailed
	}
	if runID == "" {
		return details, err
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		s.logger.WithError(marshalErr).Warn("job details marshal failed")
		detailsJSON = []byte("{}")
	}
	if err != nil {
		detailsJSON, _ = json.Marshal(map[string]any{"error": err.Error(), "details": json.RawMessage(detailsJSON)})
	}
	if updErr := s.runs.Finish(context.WithoutCancel(ctx), runID, status, detailsJSON); updErr != nil {
		logging.LogError(s.logger, "jobs", "runJob", updErr, logrus.Fields{"jobType": j.Type, "runId": runID})
	}
	return details, err
}

// PGRunLog keeps runs in job_runs.
type PGRunLog struct {
	DB *pgxpool.Pool
}

func NewPGRunLog(db *pgxpool.Pool) *PGRunLog {
	return &PGRunLog{DB: db}
}

func (l *PGRunLog) Start(ctx context.Context, jobType string) (string, error) {
	var runID string
	err := l.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, status)
    VALUES ($1,$2)
    RETURNING id::text
  `, jobType, RunStatusRunning).Scan(&runID)
	return runID, err
}

func (l *PGRunLog) Finish(ctx context.Context, runID, status string, details []byte) error {
	_, err := l.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id::text = $3
  `, status, details, runID)
	return err
}
