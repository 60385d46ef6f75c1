package correlation

import (
	"context"
	"errors"

	model "github.com/okian/vitals/internal/domain/model"
	"github.com/okian/vitals/pkg/logger"
)

// Job computes a list of pairs, one per Next call. It reads from a single
// Resampler, so every pair sees the same data when src is a snapshot. A Job
// is not safe for concurrent use.
type Job struct {
	engine *Engine
	src    Resampler
	pairs  []Pair
	window model.Window

	next   int
	report Report
	done   bool
	err    error
}

// Start prepares a Job over pairs. Nothing is computed until Next.
func (e *Engine) Start(src Resampler, pairs []Pair, window model.Window) *Job {
	return &Job{
		engine: e,
		src:    src,
		pairs:  append([]Pair(nil), pairs...),
		window: window,
		report: Report{
			Insights: []model.Insight{},
			Declined: []Result{},
			Window:   window,
		},
	}
}

// Progress returns how many pairs have been computed out of the total.
func (j *Job) Progress() (done, total int) { return j.next, len(j.pairs) }

// Next computes exactly one pair. It returns done once every pair has been
// computed or the job failed. Cancellation discards the partial report.
func (j *Job) Next(ctx context.Context) (bool, error) {
	if j.done {
		return true, j.err
	}
	if err := ctx.Err(); err != nil {
		return true, j.fail(ctx, err)
	}
	if j.next >= len(j.pairs) {
		j.finish()
		return true, nil
	}

	p := j.pairs[j.next]
	res, err := j.engine.Correlate(ctx, j.src, p.A, p.B, j.window)
	if err != nil {
		return true, j.fail(ctx, err)
	}
	j.next++
	if res.Found {
		j.report.Insights = append(j.report.Insights, res.Insight)
	} else {
		j.report.Declined = append(j.report.Declined, res)
	}

	if j.next == len(j.pairs) {
		j.finish()
		return true, nil
	}
	return false, nil
}

// Result returns the ranked report once the job is done.
func (j *Job) Result() (Report, error) {
	if !j.done {
		return Report{}, ErrJobPending
	}
	if j.err != nil {
		return Report{}, j.err
	}
	return j.report, nil
}

func (j *Job) finish() {
	Rank(j.report.Insights)
	j.done = true
}

func (j *Job) fail(ctx context.Context, err error) error {
	j.report = Report{}
	j.done = true
	j.err = err
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		j.engine.log.Warn(ctx, "insight computation failed",
			logger.Int("pair_index", j.next),
			logger.Error(err),
		)
	}
	return err
}

// ComputeInsights runs a Job to completion, checking ctx between pairs.
func (e *Engine) ComputeInsights(ctx context.Context, src Resampler, pairs []Pair, window model.Window) (Report, error) {
	job := e.Start(src, pairs, window)
	for {
		done, err := job.Next(ctx)
		if err != nil {
			return Report{}, err
		}
		if done {
			break
		}
	}
	rep, err := job.Result()
	if err != nil {
		return Report{}, err
	}
	fields := []logger.Field{
		logger.Int("pairs", len(pairs)),
		logger.Int("insights", len(rep.Insights)),
		logger.Int("declined", len(rep.Declined)),
	}
	if len(rep.Insights) > 0 {
		fields = append(fields, logger.Float64("top_score", rep.Insights[0].Score()))
	}
	e.log.Debug(ctx, "insights computed", fields...)
	return rep, nil
}
