// Package driver orchestrates repeated pipeline runs: fetch a batch from the
// configured source, process it, publish the results, and wait or reconnect
// as the outcome dictates.
package driver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/daslan/birdwatch/internal/domain"
)

// Config controls the driver's timing behavior.
type Config struct {
	// Streaming selects the long-lived-connection mode: the fetch blocks
	// until an event arrives and the loop re-enters processing without an
	// idle delay.
	Streaming bool

	// PollInterval is the delay between cycles in polling mode.
	PollInterval time.Duration

	// Backoff is the wait before retrying after a source failure, and the
	// rate-limit wait when the source gave no hint.
	Backoff time.Duration

	// FetchTimeout bounds a single polling fetch. Exceeding it is treated
	// like any other source failure. Ignored in streaming mode, where the
	// fetch legitimately blocks until an event arrives.
	FetchTimeout time.Duration
}

// Driver runs the fetch/process/publish loop against one Source.
type Driver struct {
	source      domain.Source
	pipeline    *domain.Pipeline
	broadcaster domain.Broadcaster
	cfg         Config
	logger      *slog.Logger
}

// New creates a Driver.
func New(source domain.Source, pipeline *domain.Pipeline, broadcaster domain.Broadcaster, cfg Config, logger *slog.Logger) *Driver {
	return &Driver{
		source:      source,
		pipeline:    pipeline,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run drives the loop until ctx is cancelled. Source failures are never
// fatal: the driver backs off and retries indefinitely. An in-flight batch
// always finishes processing and publishing before the loop observes
// cancellation. Closable sources (the stream connection) are closed on the
// way out.
func (d *Driver) Run(ctx context.Context) error {
	defer func() {
		if closer, ok := d.source.(io.Closer); ok {
			closer.Close()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		batch, err := d.fetch(ctx)
		switch {
		case err == nil:
			// A fetched batch always finishes persisting and publishing,
			// even when cancellation lands mid-cycle; the loop observes
			// the cancel on its next iteration.
			d.pipeline.ProcessBatch(context.WithoutCancel(ctx), batch)
			if !d.cfg.Streaming {
				if !d.sleep(ctx, d.cfg.PollInterval) {
					return nil
				}
			}

		case errors.Is(err, context.Canceled):
			return nil

		default:
			var rl *domain.RateLimitedError
			if errors.As(err, &rl) {
				wait := rl.RetryAfter
				if wait <= 0 {
					wait = d.cfg.Backoff
				}
				d.logger.Warn("source rate limited, backing off", "wait", wait)
				if !d.sleep(ctx, wait) {
					return nil
				}
				continue
			}

			d.logger.Error("source fetch failed, reconnecting", "error", err)
			d.broadcaster.Broadcast(domain.EventStreamError, map[string]string{
				"message": "upstream source unavailable",
			})
			if !d.sleep(ctx, d.cfg.Backoff) {
				return nil
			}
		}
	}
}

// fetch loads the watermark and performs one source fetch. In polling mode
// the fetch carries a bounded timeout; a deadline hit surfaces like any
// transport failure.
func (d *Driver) fetch(ctx context.Context) (domain.RawBatch, error) {
	since, err := d.pipeline.Watermark(ctx)
	if err != nil {
		d.logger.Warn("failed to load watermark, fetching without cursor", "error", err)
		since = time.Time{}
	}

	if !d.cfg.Streaming && d.cfg.FetchTimeout > 0 {
		fetchCtx, cancel := context.WithTimeout(ctx, d.cfg.FetchTimeout)
		defer cancel()
		return d.source.FetchBatch(fetchCtx, since)
	}
	return d.source.FetchBatch(ctx, since)
}

// sleep waits for the given duration, returning false if ctx was cancelled
// first.
func (d *Driver) sleep(ctx context.Context, duration time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(duration):
		return true
	}
}
