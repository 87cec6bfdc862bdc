// Package scheduler runs the periodic maintenance jobs: audit retention
// sweeps, daily digests and full rescans.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/memshield/memshield/internal/audit"
	"github.com/memshield/memshield/internal/notifications"
	"github.com/memshield/memshield/internal/queue"
	"github.com/memshield/memshield/internal/store"
)

type Config struct {
	// Cron specs. Empty disables the job.
	RetentionSweepSpec string
	DailyDigestSpec    string
	RescanSpec         string

	// EventRetention is how long persisted security events are kept.
	EventRetention time.Duration
}

type Scheduler struct {
	cron     *cron.Cron
	config   Config
	store    *store.Store
	queue    *queue.Queue
	auditLog *audit.Log
	notify   *notifications.Service
	logger   *slog.Logger
}

func New(cfg Config, st *store.Store, q *queue.Queue, log *audit.Log, notify *notifications.Service, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
		config:   cfg,
		store:    st,
		queue:    q,
		auditLog: log,
		notify:   notify,
		logger:   logger,
	}
}

// Start registers the configured jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	type job struct {
		name string
		spec string
		fn   func()
	}

	jobs := []job{
		{"retention_sweep", s.config.RetentionSweepSpec, s.runRetentionSweep},
		{"daily_digest", s.config.DailyDigestSpec, s.runDailyDigest},
		{"full_rescan", s.config.RescanSpec, s.runFullRescan},
	}

	count := 0
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, j.fn); err != nil {
			return fmt.Errorf("scheduling %s (%q): %w", j.name, j.spec, err)
		}
		s.logger.Info("scheduled job", "job", j.name, "spec", j.spec)
		count++
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs_count", count)
	return nil
}

// Stop stops the cron loop and returns a context that completes when
// running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runRetentionSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.config.EventRetention)
	deleted, err := s.store.DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention sweep failed", "error", err)
		return
	}
	s.logger.Info("retention sweep completed", "deleted", deleted, "cutoff", cutoff)
}

func (s *Scheduler) runDailyDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	report := s.auditLog.Report()
	if err := s.notify.NotifyDailyDigest(ctx, report); err != nil {
		s.logger.Error("daily digest failed", "error", err)
		return
	}
	s.logger.Info("daily digest sent", "security_score", report.SecurityScore)
}

func (s *Scheduler) runFullRescan() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	job := &queue.Job{Type: queue.JobRescanAll}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.Error("rescan enqueue failed", "error", err)
		return
	}
	s.logger.Info("full rescan enqueued", "job_id", job.ID)
}
