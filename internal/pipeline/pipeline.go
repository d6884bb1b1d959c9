// Package pipeline runs the per-frame perception path and the background
// inference worker. One logical caller feeds frames through ProcessFrame;
// depth and segmentation run on a single worker goroutine at their own
// cadence and publish snapshots through atomic cells that the frame path
// reads without blocking.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/capable-vision/percept/internal/announce"
	"github.com/capable-vision/percept/internal/fuse"
	"github.com/capable-vision/percept/internal/monitoring"
	"github.com/capable-vision/percept/internal/observe"
	"github.com/capable-vision/percept/internal/store"
	"github.com/capable-vision/percept/internal/track"
)

const (
	// DefaultDepthEvery schedules depth inference every Nth processed frame.
	DefaultDepthEvery = 3
	// DefaultSegEvery schedules segmentation every Nth processed frame.
	DefaultSegEvery = 5
)

// Options wires a Pipeline together. Detector, Tracker, Engine, Stabilizer
// and Dispatcher are required; the rest are optional.
type Options struct {
	Detector   Detector
	Depth      DepthEstimator
	Seg        Segmenter
	Tracker    *track.Tracker
	Engine     *fuse.Engine
	Stabilizer *announce.Stabilizer
	Dispatcher *announce.Dispatcher

	// Store, when set, receives announcement rows inline and track
	// summaries on shutdown.
	Store *store.EventStore

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics

	DepthEvery int
	SegEvery   int
}

type jobKind string

const (
	jobDepth jobKind = "depth"
	jobSeg   jobKind = "seg"
)

type inferenceJob struct {
	kind  jobKind
	frame Frame
}

// trackAgg accumulates one track's lifetime stats for the event store.
type trackAgg struct {
	label     string
	first     time.Time
	last      time.Time
	frames    int
	peakSpeed float64
}

// Pipeline is the assembled perception pipeline. ProcessFrame is not
// reentrant: it has a single logical caller, matching the tracker's
// contract.
type Pipeline struct {
	opts  Options
	runID string

	latestDepth fuse.Latest[fuse.DepthSnapshot]
	latestSeg   fuse.Latest[fuse.SegSnapshot]

	// jobs is unbuffered on purpose: while the worker is busy the send in
	// schedule falls through to its default case, so a new heavy job is
	// skipped rather than queued.
	jobs chan inferenceJob

	frames     int64
	prevActive int
	summaries  map[int64]*trackAgg
}

// New validates opts and returns an assembled Pipeline with a fresh run id.
func New(opts Options) (*Pipeline, error) {
	if opts.Detector == nil {
		return nil, errors.New("pipeline requires a detector")
	}
	if opts.Tracker == nil || opts.Engine == nil || opts.Stabilizer == nil || opts.Dispatcher == nil {
		return nil, errors.New("pipeline requires tracker, engine, stabilizer and dispatcher")
	}
	if opts.Metrics == nil {
		opts.Metrics = observe.DefaultMetrics()
	}
	if opts.DepthEvery <= 0 {
		opts.DepthEvery = DefaultDepthEvery
	}
	if opts.SegEvery <= 0 {
		opts.SegEvery = DefaultSegEvery
	}

	return &Pipeline{
		opts:      opts,
		runID:     uuid.NewString(),
		jobs:      make(chan inferenceJob),
		summaries: make(map[int64]*trackAgg),
	}, nil
}

// RunID identifies this pipeline run in logs and store rows.
func (p *Pipeline) RunID() string { return p.runID }

// ProcessFrame runs one frame through detector, tracker, fusion and the
// stabilizer, enqueueing any resulting narration requests. Model failures
// degrade to an empty result for the cycle; nothing here returns an error
// to the frame source.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame Frame) {
	p.frames++
	m := p.opts.Metrics

	detections, err := p.opts.Detector.Detect(ctx, frame)
	if err != nil {
		monitoring.Logf("detector failed on frame %d: %v", frame.Seq, err)
		m.RecordInferenceError(ctx, "detector")
		detections = nil
	}

	tracks := p.opts.Tracker.Update(detections)

	m.FramesProcessed.Add(ctx, 1)
	m.Detections.Add(ctx, int64(len(detections)))
	if delta := len(tracks) - p.prevActive; delta != 0 {
		m.ActiveTracks.Add(ctx, int64(delta))
		p.prevActive = len(tracks)
	}
	p.aggregateTracks(tracks, frame)

	p.scheduleInference(ctx, frame)

	hazards := p.opts.Engine.BuildHazards(tracks, p.latestDepth.Peek(), p.latestSeg.Peek())
	for _, h := range hazards {
		m.RecordHazard(ctx, string(h.Distance))
	}

	for _, u := range p.opts.Stabilizer.Observe(hazards) {
		if !p.opts.Dispatcher.Enqueue(u) {
			m.UtterancesDropped.Add(ctx, 1)
			continue
		}
		m.RecordAnnouncement(ctx, u.Level.String())
		monitoring.Debugf("announce [%s]: %q (priority %d)", u.Level, u.Text, u.Priority)
		if p.opts.Store != nil {
			if err := p.opts.Store.InsertAnnouncement(p.runID, time.Now(), u); err != nil {
				monitoring.Logf("failed to persist announcement: %v", err)
			}
		}
	}
}

// scheduleInference hands depth and segmentation jobs to the worker at
// their configured cadences, skipping when a job is already in flight.
func (p *Pipeline) scheduleInference(ctx context.Context, frame Frame) {
	if p.opts.Depth != nil && p.frames%int64(p.opts.DepthEvery) == 0 {
		p.schedule(ctx, inferenceJob{kind: jobDepth, frame: frame})
	}
	if p.opts.Seg != nil && p.frames%int64(p.opts.SegEvery) == 0 {
		p.schedule(ctx, inferenceJob{kind: jobSeg, frame: frame})
	}
}

func (p *Pipeline) schedule(ctx context.Context, job inferenceJob) {
	select {
	case p.jobs <- job:
	default:
		p.opts.Metrics.RecordInferenceSkipped(ctx, string(job.kind))
		monitoring.Debugf("skipped %s inference on frame %d: worker busy", job.kind, job.frame.Seq)
	}
}

// Run drives the background inference worker and the narration dispatcher
// until ctx is cancelled. Track summaries are flushed to the store on the
// way out.
func (p *Pipeline) Run(ctx context.Context, sink announce.Sink) error {
	monitoring.Logf("pipeline run %s starting", p.runID)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.opts.Dispatcher.Run(ctx, sink)
	})
	g.Go(func() error {
		return p.runWorker(ctx)
	})
	err := g.Wait()

	if ferr := p.FlushSummaries(); ferr != nil {
		monitoring.Logf("failed to flush track summaries: %v", ferr)
	}
	monitoring.Logf("pipeline run %s stopped", p.runID)
	return err
}

// runWorker is the single background goroutine running heavy inference.
// At most one job is in flight at a time; see the jobs channel invariant.
func (p *Pipeline) runWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-p.jobs:
			p.runJob(ctx, job)
		}
	}
}

func (p *Pipeline) runJob(ctx context.Context, job inferenceJob) {
	start := time.Now()
	switch job.kind {
	case jobDepth:
		snap, err := p.opts.Depth.Estimate(ctx, job.frame)
		if err != nil {
			monitoring.Logf("depth inference failed on frame %d: %v", job.frame.Seq, err)
			p.opts.Metrics.RecordInferenceError(ctx, string(jobDepth))
			return
		}
		if snap != nil {
			p.latestDepth.Publish(snap)
		}
	case jobSeg:
		snap, err := p.opts.Seg.Segment(ctx, job.frame)
		if err != nil {
			monitoring.Logf("segmentation inference failed on frame %d: %v", job.frame.Seq, err)
			p.opts.Metrics.RecordInferenceError(ctx, string(jobSeg))
			return
		}
		if snap != nil {
			p.latestSeg.Publish(snap)
		}
	}
	p.opts.Metrics.RecordInference(ctx, string(job.kind), time.Since(start).Seconds())
}

// aggregateTracks folds the frame's activated tracks into per-track
// lifetime stats for the event store.
func (p *Pipeline) aggregateTracks(tracks []track.Track, frame Frame) {
	if p.opts.Store == nil {
		return
	}
	at := frame.Taken
	if at.IsZero() {
		at = time.Now()
	}
	for _, t := range tracks {
		agg := p.summaries[t.ID]
		if agg == nil {
			agg = &trackAgg{label: t.Label, first: at}
			p.summaries[t.ID] = agg
		}
		agg.label = t.Label
		agg.last = at
		agg.frames++
		if s := t.Speed(); s > agg.peakSpeed {
			agg.peakSpeed = s
		}
	}
}

// FlushSummaries upserts all accumulated track summaries into the store.
// Safe to call with no store configured.
func (p *Pipeline) FlushSummaries() error {
	if p.opts.Store == nil {
		return nil
	}
	for id, agg := range p.summaries {
		err := p.opts.Store.UpsertTrackSummary(store.TrackSummary{
			RunID:     p.runID,
			TrackID:   id,
			Label:     agg.label,
			First:     agg.first,
			Last:      agg.last,
			Frames:    agg.frames,
			PeakSpeed: agg.peakSpeed,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// DepthSnapshot returns the most recently published depth snapshot, which
// may be nil or stale. Exposed for status reporting.
func (p *Pipeline) DepthSnapshot() *fuse.DepthSnapshot { return p.latestDepth.Peek() }

// SegSnapshot returns the most recently published segmentation snapshot.
func (p *Pipeline) SegSnapshot() *fuse.SegSnapshot { return p.latestSeg.Peek() }
