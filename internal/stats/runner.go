package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"gostudio/domain/core"
	"gostudio/domain/hypothesis"
	"gostudio/domain/intent"
	domainstats "gostudio/domain/stats"
	"gostudio/domain/table"
)

// Run executes every hypothesis against the table and returns results in
// hypothesis order. Tests run concurrently over the read-only table, each under its
// own timeout; Run returns only after every test has finished or timed out.
func (e *Engine) Run(ctx context.Context, t *table.Table, set *hypothesis.Set) (domainstats.Results, error) {
	results := make(domainstats.Results, len(set.Hypotheses))
	if len(set.Hypotheses) == 0 {
		return results, nil
	}

	start := time.Now()
	sem := semaphore.NewWeighted(int64(e.cfg.Parallelism))
	g, gctx := errgroup.WithContext(ctx)

	for i, h := range set.Hypotheses {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			results[i] = e.runWithTimeout(gctx, t, h)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("running tests: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if set.TargetType == intent.TargetClassification {
		if err := e.attachImportance(t, set.Hypotheses, results); err != nil {
			e.logger.Warn("[Stats] importance model unavailable: %v", err)
		}
	}

	e.logger.Info("[Stats] ran %d tests for target %s in %v", len(results), set.Target, time.Since(start))
	return results, nil
}

// runWithTimeout abandons a test that exceeds the per-test budget. The abandoned
// goroutine only reads the immutable table and its result is discarded.
func (e *Engine) runWithTimeout(ctx context.Context, t *table.Table, h hypothesis.Hypothesis) domainstats.Result {
	tctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	done := make(chan domainstats.Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- failed(domainstats.Subject{Predictor: h.Predictor, Target: h.Target}, h.Kind, core.KindInternal, fmt.Sprintf("test panicked: %v", r))
			}
		}()
		done <- e.execute(tctx, t, h)
	}()

	select {
	case res := <-done:
		// NaN or infinite statistics cannot be ranked or persisted
		if _, err := json.Marshal(res); err != nil {
			e.logger.Warn("[Stats] discarding non-finite result for %s: %v", h.Predictor, err)
			return failed(domainstats.Subject{Predictor: h.Predictor, Target: h.Target}, h.Kind, core.KindInternal, "test produced a non-finite statistic")
		}
		return res
	case <-tctx.Done():
		timeout := &core.TestExecutionTimeout{Predictor: h.Predictor, Timeout: e.cfg.Timeout}
		e.logger.Warn("[Stats] %v", timeout)
		return failed(domainstats.Subject{Predictor: h.Predictor, Target: h.Target}, h.Kind, timeout.Kind(), timeout.Error())
	}
}

func (e *Engine) attachImportance(t *table.Table, hyps []hypothesis.Hypothesis, results domainstats.Results) error {
	shares, err := e.Importance(t, hyps)
	if err != nil {
		return err
	}
	for _, r := range results {
		if cs, ok := r.(*domainstats.ClassificationSignalResult); ok {
			cs.Importance = shares[cs.Predictor]
		}
	}
	return nil
}
