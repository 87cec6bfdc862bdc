package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memshield/memshield/internal/guard"
	"github.com/memshield/memshield/internal/models"
	"github.com/memshield/memshield/internal/store"
)

// Worker drains the rescan queue: it re-runs the scan pipeline over stored
// entries and updates their content and scan records. Entries that are
// blocked under the current rule set are quarantined by replacing their
// stored content with the categorical sanitized form.
type Worker struct {
	id      string
	queue   *Queue
	store   *store.Store
	scanner *guard.Scanner
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running bool
	mu      sync.Mutex
}

type WorkerConfig struct {
	Queue   *Queue
	Store   *store.Store
	Scanner *guard.Scanner
	Logger  *slog.Logger
}

func NewWorker(cfg WorkerConfig) *Worker {
	hostname, _ := os.Hostname()
	workerID := fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		id:      workerID,
		queue:   cfg.Queue,
		store:   cfg.Store,
		scanner: cfg.Scanner,
		logger:  logger.With("worker", workerID),
	}
}

func (w *Worker) ID() string {
	return w.id
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.logger.Info("worker starting")

	w.wg.Add(1)
	go w.heartbeatLoop()

	w.wg.Add(1)
	go w.processLoop()

	w.wg.Add(1)
	go w.staleSweepLoop()

	return nil
}

func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopping")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) heartbeatLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.queue.WorkerHeartbeat(w.ctx, w.id)
		}
	}
}

func (w *Worker) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(w.ctx, w.id)
			if err != nil {
				w.logger.Error("dequeue failed", "error", err)
				time.Sleep(5 * time.Second)
				continue
			}

			if job == nil {
				time.Sleep(1 * time.Second)
				continue
			}

			w.logger.Info("processing job", "job_id", job.ID, "type", job.Type)

			if err := w.processJob(job); err != nil {
				w.logger.Error("job failed", "job_id", job.ID, "error", err)
				w.queue.Requeue(w.ctx, job, err.Error())
			} else {
				w.logger.Info("job completed", "job_id", job.ID)
				w.queue.Complete(w.ctx, job, true)
			}
		}
	}
}

func (w *Worker) processJob(job *Job) error {
	switch job.Type {
	case JobRescanEntry:
		return w.rescanEntry(job)
	case JobRescanAll:
		return w.enqueueAll(job)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (w *Worker) rescanEntry(job *Job) error {
	if job.EntryID == nil {
		return fmt.Errorf("rescan_entry job without entry id")
	}

	entry, err := w.store.GetEntry(w.ctx, *job.EntryID)
	if err != nil {
		return fmt.Errorf("getting entry: %w", err)
	}
	if entry == nil {
		// Entry was deleted after the job was enqueued.
		return nil
	}

	result := w.scanner.ScanContent(entry.Content)

	record := &models.ScanRecord{
		EntryID:          &entry.ID,
		Classification:   result.Classification,
		Blocked:          result.Blocked,
		RedactionApplied: result.RedactionApplied,
		Confidence:       result.Confidence,
		DetectedPatterns: result.DetectedPatterns,
		Warnings:         result.Warnings,
	}
	if err := w.store.CreateScanRecord(w.ctx, record); err != nil {
		return fmt.Errorf("storing scan record: %w", err)
	}

	if result.SanitizedContent != entry.Content {
		if err := w.store.UpdateEntryContent(w.ctx, entry.ID, result.SanitizedContent); err != nil {
			return fmt.Errorf("updating entry content: %w", err)
		}
		if result.Blocked {
			w.logger.Warn("quarantined stored entry",
				"entry_id", entry.ID, "patterns", result.DetectedPatterns)
		}
	}

	progress, _ := w.queue.GetProgress(w.ctx, job.ID)
	if progress == nil {
		progress = &JobProgress{JobID: job.ID, Status: StatusRunning, WorkerID: w.id}
	}
	progress.ScannedEntries++
	if result.Blocked {
		progress.BlockedEntries++
	}
	if result.RedactionApplied {
		progress.Redacted++
	}
	_ = w.queue.UpdateProgress(w.ctx, progress)

	return nil
}

// enqueueAll fans a rescan_all job out into one rescan_entry job per stored
// entry, paging through the store.
func (w *Worker) enqueueAll(job *Job) error {
	const pageSize = 500
	offset := 0
	total := 0

	for {
		entries, _, err := w.store.ListEntries(w.ctx, store.ListEntryFilters{
			Limit:  pageSize,
			Offset: offset,
		})
		if err != nil {
			return fmt.Errorf("listing entries: %w", err)
		}
		if len(entries) == 0 {
			break
		}

		for i := range entries {
			id := entries[i].ID
			child := &Job{
				Type:     JobRescanEntry,
				EntryID:  &id,
				Priority: job.Priority,
			}
			if err := w.queue.Enqueue(w.ctx, child); err != nil {
				return fmt.Errorf("enqueueing entry rescan: %w", err)
			}
			total++
		}

		offset += pageSize
	}

	progress, _ := w.queue.GetProgress(w.ctx, job.ID)
	if progress == nil {
		progress = &JobProgress{JobID: job.ID, Status: StatusRunning, WorkerID: w.id}
	}
	progress.TotalEntries = total
	_ = w.queue.UpdateProgress(w.ctx, progress)

	w.logger.Info("enqueued full rescan", "entries", total)
	return nil
}

func (w *Worker) staleSweepLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			cleaned, err := w.queue.CleanupStaleJobs(w.ctx, 30*time.Minute)
			if err != nil {
				w.logger.Error("stale job sweep failed", "error", err)
			} else if cleaned > 0 {
				w.logger.Info("requeued stale jobs", "count", cleaned)
			}
		}
	}
}
