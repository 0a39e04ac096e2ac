package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/park285/Cheese-Arena/internal/obslog"
	"go.uber.org/zap"
)

// DefaultRecoverInterval paces the terminal-session sweep.
const DefaultRecoverInterval = time.Minute

// Recover completes a terminal session whose reconciliation failed earlier.
// It reports false when nothing was pending.
func (e *Engine) Recover(ctx context.Context, sessionID string) (bool, error) {
	unlock := e.locks.Lock(sessionID)
	defer unlock()
	s, err := e.cache.Get(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	if s == nil || !s.Phase.Terminal() {
		return false, nil
	}
	if err := e.finish(ctx, s); err != nil {
		return false, err
	}
	return true, nil
}

// RecoverPending sweeps every cached session and completes the terminal ones.
// It returns how many were completed; failures are joined and the rest still run.
func (e *Engine) RecoverPending(ctx context.Context) (int, error) {
	ids, err := e.cache.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	var (
		done int
		errs []error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		ok, err := e.Recover(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("recover %s: %w", id, err))
			continue
		}
		if ok {
			done++
		}
	}
	if done > 0 || len(errs) > 0 {
		obslog.L().Info("match_recover_sweep", zap.Int("scanned", len(ids)), zap.Int("recovered", done), zap.Int("failed", len(errs)))
	}
	return done, errors.Join(errs...)
}

// RunRecovery sweeps once at start and then every interval until ctx is done.
func (e *Engine) RunRecovery(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultRecoverInterval
	}
	sweep := func() {
		if _, err := e.RecoverPending(ctx); err != nil && ctx.Err() == nil {
			obslog.L().Warn("match_recover_sweep_error", zap.Error(err))
		}
	}
	// 기동 직후 한 번, 이후 주기적으로 스윕
	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sweep()
		}
	}
}
