package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dualwallet/internal/constant"
	"dualwallet/internal/model"

	"github.com/cenkalti/backoff/v4"
	"github.com/zeromicro/go-zero/core/logx"
)

// HistorySource is the read side of the transfer record store.
type HistorySource interface {
	List(ctx context.Context, opts model.ListOptions) ([]*model.TransferRecord, error)
	Filter(ctx context.Context, filter model.TransferFilter, limit int) ([]*model.TransferRecord, error)
}

type HistoryQuery struct {
	Filter model.TransferFilter
	Limit  int
}

// History is a loaded page of transfers. Failed is set, with an empty page,
// when every attempt failed.
type History struct {
	Records  []*model.TransferRecord
	Failed   bool
	Attempts int
}

type HistoryConfig struct {
	Attempts int
	Backoff  time.Duration
	Timeout  time.Duration
}

// HistoryLoader reads transfer history with bounded exponential backoff and a
// timeout per attempt, so callers never hang on a slow store.
type HistoryLoader struct {
	source HistorySource
	cfg    HistoryConfig
}

func NewHistoryLoader(source HistorySource, cfg HistoryConfig) *HistoryLoader {
	if cfg.Attempts <= 0 {
		cfg.Attempts = constant.DefaultHistoryRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = constant.DefaultHistoryBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = constant.DefaultHistoryTimeout
	}
	return &HistoryLoader{source: source, cfg: cfg}
}

// Budget is the longest a Load can take: every attempt timing out plus the
// waits between them.
func (h *HistoryLoader) Budget() time.Duration {
	total := time.Duration(h.cfg.Attempts) * h.cfg.Timeout
	wait := h.cfg.Backoff
	for i := 1; i < h.cfg.Attempts; i++ {
		total += wait
		wait *= 2
	}
	return total
}

func (h *HistoryLoader) Load(ctx context.Context, q HistoryQuery) (*History, error) {
	logger := logx.WithContext(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.cfg.Backoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = h.cfg.Backoff << uint(h.cfg.Attempts)
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(h.cfg.Attempts-1)), ctx)

	var (
		records  []*model.TransferRecord
		attempts int
		timedOut bool
	)
	op := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
		defer cancel()

		recs, err := h.query(attemptCtx, q)
		if err != nil {
			timedOut = errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		records = recs
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Errorf("loading transfers failed (attempt %d/%d), retrying in %s: %v", attempts, h.cfg.Attempts, wait, err)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		logger.Errorf("loading transfers gave up after %d attempts: %v", attempts, err)
		history := &History{Records: []*model.TransferRecord{}, Failed: true, Attempts: attempts}
		if timedOut {
			return history, newError(ErrLoadTimeout, fmt.Sprintf("transfer history did not load after %d attempts", attempts),
				"retry loading the history", err)
		}
		return history, fmt.Errorf("load transfers: %w", err)
	}

	if records == nil {
		records = []*model.TransferRecord{}
	}
	return &History{Records: records, Attempts: attempts}, nil
}

func (h *HistoryLoader) query(ctx context.Context, q HistoryQuery) ([]*model.TransferRecord, error) {
	if q.Filter == (model.TransferFilter{}) {
		return h.source.List(ctx, model.ListOptions{Limit: q.Limit, Desc: true})
	}
	return h.source.Filter(ctx, q.Filter, q.Limit)
}
