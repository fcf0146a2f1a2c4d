/*
outbox.go - Sync outbox dispatcher

PURPOSE:
  Pushes locally committed records to the remote store. The billing Service
  enqueues a SyncItem in the same transaction as the record it describes;
  the Dispatcher drains due items in creation order.

RETRY:
  A failed delivery is retried with exponential backoff
  (BaseBackoff * 2^(attempts-1), capped at MaxBackoff). After MaxAttempts
  failed attempts, or on a permanent error, the item is marked failed and
  skipped from then on.

IDEMPOTENCY:
  Payloads carry the record ID. The remote treats a re-delivered create as
  a duplicate, which HTTPRemote reports as success.

AFTER BATCH:
  When a batch delivered at least one item, AfterBatch runs. The server
  wires it to billing.Service.ReconcileAll so balances are re-derived from
  the records after every sync.

SEE ALSO:
  - http.go: HTTPRemote
  - billing/store.go: SyncItem
*/
package outbox

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/aasavchauhan/Water-Supply-Management-System/billing"
	"github.com/aasavchauhan/Water-Supply-Management-System/metrics"
)

// Queue provides access to outbox items.
type Queue interface {
	Pending(ctx context.Context, now time.Time, limit int) ([]billing.SyncItem, error)
	MarkDone(ctx context.Context, id string) error
	MarkRetry(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error
	MarkFailed(ctx context.Context, id string, attempts int, lastErr string) error
	CountByStatus(ctx context.Context) (map[billing.SyncStatus]int, error)
}

// Remote delivers one item.
type Remote interface {
	Push(ctx context.Context, item billing.SyncItem) error
}

// PermanentError marks a delivery failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Config controls batch size and retry behavior.
type Config struct {
	BatchSize   int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:   50,
		MaxAttempts: 5,
		BaseBackoff: 30 * time.Second,
		MaxBackoff:  30 * time.Minute,
	}
}

// Report summarizes one RunOnce call.
type Report struct {
	Sent    int
	Retried int
	Failed  int
}

// Dispatcher drains the outbox.
type Dispatcher struct {
	Queue      Queue
	Remote     Remote
	Config     Config
	Now        func() time.Time
	Logger     *log.Logger
	AfterBatch func(ctx context.Context) error
}

// NewDispatcher constructs a dispatcher with DefaultConfig.
func NewDispatcher(queue Queue, remote Remote) *Dispatcher {
	return &Dispatcher{
		Queue:  queue,
		Remote: remote,
		Config: DefaultConfig(),
		Now:    time.Now,
		Logger: log.Default(),
	}
}

// RunOnce delivers up to BatchSize due items.
func (d *Dispatcher) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	if d == nil || d.Queue == nil || d.Remote == nil {
		return report, nil
	}
	start := time.Now()
	defer func() { metrics.ObserveSyncBatch(time.Since(start)) }()

	cfg := d.Config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}

	now := d.Now()
	items, err := d.Queue.Pending(ctx, now, cfg.BatchSize)
	if err != nil {
		return report, err
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		pushErr := d.Remote.Push(ctx, item)
		if pushErr == nil {
			if err := d.Queue.MarkDone(ctx, item.ID); err != nil {
				return report, err
			}
			report.Sent++
			metrics.IncSyncItem("sent")
			continue
		}

		attempts := item.Attempts + 1
		var perm *PermanentError
		if errors.As(pushErr, &perm) || attempts >= cfg.MaxAttempts {
			d.Logger.Printf("[Outbox] giving up on %s %s/%s after %d attempts: %v",
				item.Operation, item.EntityType, item.EntityID, attempts, pushErr)
			if err := d.Queue.MarkFailed(ctx, item.ID, attempts, pushErr.Error()); err != nil {
				return report, err
			}
			report.Failed++
			metrics.IncSyncItem("failed")
			continue
		}

		next := now.Add(Backoff(cfg, attempts))
		if err := d.Queue.MarkRetry(ctx, item.ID, attempts, next, pushErr.Error()); err != nil {
			return report, err
		}
		report.Retried++
		metrics.IncSyncItem("retry")
	}

	if report.Sent > 0 && d.AfterBatch != nil {
		if err := d.AfterBatch(ctx); err != nil {
			d.Logger.Printf("[Outbox] after-batch hook: %v", err)
		}
	}
	if len(items) > 0 {
		d.Logger.Printf("[Outbox] batch: %d sent, %d retried, %d failed", report.Sent, report.Retried, report.Failed)
	}
	return report, nil
}

// Backoff returns the wait before the next attempt after attempts failures.
func Backoff(cfg Config, attempts int) time.Duration {
	base := cfg.BaseBackoff
	if base <= 0 {
		base = DefaultConfig().BaseBackoff
	}
	if attempts < 1 {
		attempts = 1
	}
	wait := base
	for i := 1; i < attempts; i++ {
		wait *= 2
		if cfg.MaxBackoff > 0 && wait >= cfg.MaxBackoff {
			return cfg.MaxBackoff
		}
	}
	if cfg.MaxBackoff > 0 && wait > cfg.MaxBackoff {
		return cfg.MaxBackoff
	}
	return wait
}
