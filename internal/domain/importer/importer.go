// Package importer parses Apple Health style exports into canonical samples.
//
// An import is a Job that advances one batch of records per Next call, so a
// host can interleave it with other work and cancel it between batches. The
// importer never touches the metric store: callers inspect the report and
// commit the samples separately.
package importer

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/okian/vitals/internal/domain/dedupe"
	"github.com/okian/vitals/internal/domain/model"
	"github.com/okian/vitals/pkg/logger"
	"github.com/okian/vitals/pkg/metrics"
)

const readBufferSize = 64 << 10

// Importer is stateless between calls and safe for concurrent use.
type Importer struct {
	batchSize     int
	maxRejections int
	dedupWindow   int
	now           func() time.Time
	newID         func() string
	log           logger.Logger
}

// New creates an Importer.
func New(opts ...Option) *Importer {
	i := &Importer{
		batchSize:     defaultBatchSize,
		maxRejections: defaultMaxRejections,
		now:           time.Now,
		newID:         uuid.NewString,
		log:           logger.OrNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Request describes one import.
type Request struct {
	// SourceID attributes every sample to this import source.
	SourceID string
	// Format is the payload syntax; FormatAuto sniffs it.
	Format Format
	// Accepted filters metric types. A nil set accepts everything,
	// including unknown types passed through as raw:<type>.
	Accepted model.MetricSet
}

// Result is a completed import.
type Result struct {
	Samples []model.Sample
	Report  model.ImportReport
}

// Outcome is delivered by ImportAsync.
type Outcome struct {
	Result Result
	Err    error
}

// Job is a single import in progress. It is not safe for concurrent use.
type Job struct {
	imp *Importer
	req Request
	src *bufio.Reader
	dec recordDecoder

	seen     dedupe.Deduper
	rawUnits map[model.MetricType]model.Unit
	samples  []model.Sample
	report   model.ImportReport
	started  time.Time

	done bool
	err  error
}

// Start prepares a Job; no input is read until the first Next.
func (i *Importer) Start(req Request, r io.Reader) *Job {
	if req.Format == "" {
		req.Format = FormatAuto
	}
	return &Job{
		imp:      i,
		req:      req,
		src:      bufio.NewReaderSize(r, readBufferSize),
		seen:     dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(i.dedupWindow)),
		rawUnits: make(map[model.MetricType]model.Unit),
		started:  i.now(),
		report: model.ImportReport{
			ID:        i.newID(),
			SourceID:  req.SourceID,
			Format:    string(req.Format),
			CreatedAt: i.now().UTC(),
			ByReason:  make(map[model.RejectReason]int),
			ByType:    make(map[model.MetricType]int),
		},
	}
}

// ID returns the report ID assigned to this import.
func (j *Job) ID() string { return j.report.ID }

// Progress returns the number of records parsed so far.
func (j *Job) Progress() int { return j.report.Parsed }

// Next parses and validates one batch of records. It returns done once the
// payload is exhausted or the job failed; after that Result is available.
func (j *Job) Next(ctx context.Context) (bool, error) {
	if j.done {
		return true, j.err
	}
	if err := ctx.Err(); err != nil {
		return true, j.fail(ctx, err)
	}
	if j.dec == nil {
		if err := j.open(); err != nil {
			return true, j.fail(ctx, err)
		}
	}

	for n := 0; n < j.imp.batchSize; n++ {
		rec, err := j.dec.next()
		if errors.Is(err, io.EOF) {
			j.finish(ctx)
			return true, nil
		}
		if err != nil {
			return true, j.fail(ctx, err)
		}
		j.consume(ctx, rec)
	}
	return false, nil
}

// Result returns the finished import. The report is a private copy.
func (j *Job) Result() (Result, error) {
	if !j.done {
		return Result{}, ErrJobPending
	}
	if j.err != nil {
		return Result{}, j.err
	}
	return Result{Samples: j.samples, Report: j.report.Clone()}, nil
}

func (j *Job) open() error {
	format := j.req.Format
	if format == FormatAuto {
		detected, err := detectFormat(j.src)
		if err != nil {
			return err
		}
		format = detected
	}
	switch format {
	case FormatXML:
		j.dec = newXMLDecoder(j.src)
	case FormatJSON:
		j.dec = newJSONDecoder(j.src)
	default:
		return ErrUnknownFormat
	}
	j.report.Format = string(format)
	return nil
}

func (j *Job) consume(ctx context.Context, rec rawRecord) {
	j.report.Parsed++

	s, converted, rej := j.validate(rec)
	if rej != nil {
		j.addRejection(rec, rej)
		return
	}
	if j.seen.SeenAndRecord(ctx, s.ImportKey()) {
		j.report.Duplicate++
		return
	}
	if converted {
		j.report.Converted++
	}
	j.report.Accepted++
	j.report.ByType[s.Type]++
	j.samples = append(j.samples, s)
}

func (j *Job) addRejection(rec rawRecord, rej *rejection) {
	j.report.Rejected++
	j.report.ByReason[rej.reason]++
	if len(j.report.Rejections) >= j.imp.maxRejections {
		j.report.Truncated = true
		return
	}
	j.report.Rejections = append(j.report.Rejections, model.Rejection{
		Ordinal: rec.ordinal,
		Offset:  rec.offset,
		Type:    rec.typ,
		Reason:  rej.reason,
		Detail:  rej.detail,
	})
}

func (j *Job) finish(ctx context.Context) {
	j.done = true
	sort.SliceStable(j.samples, func(a, b int) bool {
		if j.samples[a].Type != j.samples[b].Type {
			return j.samples[a].Type < j.samples[b].Type
		}
		return model.Less(&j.samples[a], &j.samples[b])
	})
	j.seen.Reset()

	took := time.Since(j.started)
	metrics.RecordImport(j.report.Format, "ok", float64(took.Microseconds())/1000)
	metrics.RecordImportRecords(j.report.Accepted, j.report.Rejected, j.report.Duplicate)
	for reason, n := range j.report.ByReason {
		metrics.RecordImportRejection(string(reason), n)
	}
	j.imp.log.Info(ctx, "import parsed",
		logger.String("import_id", j.report.ID),
		logger.String("format", j.report.Format),
		logger.Int("parsed", j.report.Parsed),
		logger.Int("accepted", j.report.Accepted),
		logger.Int("rejected", j.report.Rejected),
		logger.Int("duplicate", j.report.Duplicate),
		logger.Duration("took", took),
	)
}

// fail discards everything parsed so far; a failed import yields no samples.
func (j *Job) fail(ctx context.Context, err error) error {
	j.done = true
	j.err = err
	j.samples = nil
	j.seen.Reset()

	outcome := "malformed"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "cancelled"
	case errors.Is(err, ErrUnknownFormat):
		outcome = "invalid"
	}
	metrics.RecordImport(j.report.Format, outcome, float64(time.Since(j.started).Microseconds())/1000)
	metrics.RecordErrorByComponent("importer", outcome)
	j.imp.log.Warn(ctx, "import failed",
		logger.String("import_id", j.report.ID),
		logger.String("outcome", outcome),
		logger.Int("records", j.report.Parsed),
		logger.Error(err),
	)
	return err
}

// Import runs a Job to completion, checking ctx between batches.
func (i *Importer) Import(ctx context.Context, req Request, r io.Reader) (Result, error) {
	job := i.Start(req, r)
	for {
		done, err := job.Next(ctx)
		if err != nil {
			return Result{}, err
		}
		if done {
			return job.Result()
		}
	}
}

// ImportAsync runs Import on its own goroutine. The channel receives exactly
// one Outcome and is then closed.
func (i *Importer) ImportAsync(ctx context.Context, req Request, r io.Reader) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		res, err := i.Import(ctx, req, r)
		out <- Outcome{Result: res, Err: err}
	}()
	return out
}
