package trainer

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/disttrain/pkg/errors"
	"github.com/cenkalti/backoff/v5"
)

// newBackoff yields unit, 2*unit, 4*unit, ... without jitter, so every rank
// waits the same time after the same failed attempt.
func newBackoff(unit time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = unit
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = unit << 20
	b.Reset()

	return b
}

func (svc *service) TrainWithRetries(ctx context.Context, maxRetries int) Outcome {
	if maxRetries < 1 {
		maxRetries = 1
	}
	b := newBackoff(svc.cfg.BackoffUnit)

	// The service stays InProgress across attempts and reaches a terminal
	// status once, after the last one.
	svc.enter()

	out := Outcome{Status: Failed}
	for attempt := range maxRetries {
		out.Attempts = attempt + 1

		report, err := svc.attempt(ctx)
		if err == nil {
			svc.finish(nil)

			return Outcome{
				Success:  true,
				Status:   Completed,
				Attempts: attempt + 1,
				Report:   report,
			}
		}
		out.Err = err

		kind := errors.KindOf(err)
		args := []any{
			slog.Int("rank", svc.group.Rank()),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", maxRetries),
			slog.String("kind", kind.String()),
			slog.Any("error", err),
		}
		if kind != errors.Retryable {
			svc.logger.Error("training failed with a fatal error", args...)

			break
		}
		if ctx.Err() != nil {
			svc.logger.Warn("training cancelled", args...)

			break
		}

		delay := b.NextBackOff()
		svc.logger.Warn("training attempt failed", append(args, slog.Duration("backoff", delay))...)
		if err := svc.sleep(ctx, delay); err != nil {
			break
		}
	}
	svc.finish(out.Err)

	return out
}
