// Package reconcile copies a finished session from the cache into the
// durable store and evicts it.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/park285/Cheese-Arena/internal/domain"
	"github.com/park285/Cheese-Arena/internal/obslog"
	"github.com/park285/Cheese-Arena/internal/sessioncache"
	"github.com/park285/Cheese-Arena/internal/store"
	"go.uber.org/zap"
)

// Request carries the final fields merged over the cached snapshot.
// Empty Result/WinnerID fall back to what the snapshot already records.
type Request struct {
	SessionID string
	Result    domain.Result
	WinnerID  string
	Method    string
	Ratings   *store.RatingChange
}

// Report says whether a snapshot was found and what the store kept.
type Report struct {
	Reconciled bool
	Outcome    store.Outcome
}

type Reconciler struct {
	cache sessioncache.Store
	store store.Store
	now   func() time.Time
}

func New(cache sessioncache.Store, st store.Store) *Reconciler {
	return &Reconciler{cache: cache, store: st, now: time.Now}
}

// Reconcile is idempotent. A missing snapshot is treated as already done.
// The cache entry survives a failed durable write so the call can be retried.
func (r *Reconciler) Reconcile(ctx context.Context, req Request) (Report, error) {
	snap, err := r.cache.Get(ctx, req.SessionID)
	if err != nil {
		return Report{}, fmt.Errorf("reconcile read snapshot: %w", err)
	}
	if snap == nil {
		obslog.L().Debug("match_reconcile_noop", zap.String("session_id", req.SessionID))
		return Report{}, nil
	}

	f := store.Final{
		MatchID:   snap.ID,
		Kind:      snap.Kind,
		WhiteID:   snap.WhiteID,
		WhiteName: snap.WhiteName,
		BlackID:   snap.BlackID,
		BlackName: snap.BlackName,
		FEN:       snap.FEN,
		MovesSAN:  snap.MovesSAN,
		MovesUCI:  snap.MovesUCI,
		Result:    snap.Result,
		WinnerID:  snap.WinnerID,
		Method:    req.Method,
		StartedAt: snap.CreatedAt,
		EndedAt:   r.now(),
		Ratings:   req.Ratings,
	}
	if req.Result != domain.ResultNone {
		f.Result = req.Result
	}
	if req.WinnerID != "" {
		f.WinnerID = req.WinnerID
	}
	if f.Result == domain.ResultNone {
		return Report{}, fmt.Errorf("reconcile %s: no final result", req.SessionID)
	}

	out, err := r.store.Finalize(ctx, f)
	if err != nil {
		obslog.L().Error("match_reconcile_error",
			zap.String("session_id", req.SessionID),
			zap.String("result", string(f.Result)),
			zap.Error(err),
		)
		return Report{}, fmt.Errorf("reconcile finalize: %w", err)
	}

	// 영속 기록 성공 후에만 캐시 정리
	if err := r.cache.DeleteDrawOffer(ctx, req.SessionID); err != nil {
		obslog.L().Warn("match_reconcile_draw_evict_error", zap.String("session_id", req.SessionID), zap.Error(err))
	}
	if err := r.cache.Delete(ctx, req.SessionID); err != nil {
		// durable row is final; a retry finalizes as a no-op and evicts
		return Report{}, fmt.Errorf("reconcile evict: %w", err)
	}

	obslog.L().Info("match_reconcile",
		zap.String("session_id", req.SessionID),
		zap.String("result", string(f.Result)),
		zap.String("winner_id", f.WinnerID),
		zap.Bool("applied", out.Applied),
		zap.Int("moves", len(f.MovesUCI)),
	)
	return Report{Reconciled: true, Outcome: out}, nil
}
