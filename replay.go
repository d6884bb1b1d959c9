package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/capable-vision/percept/internal/fuse"
	"github.com/capable-vision/percept/internal/geom"
	"github.com/capable-vision/percept/internal/pipeline"
	"github.com/capable-vision/percept/internal/track"
)

func geomRect(box [4]float64) geom.Rect {
	return geom.Rect{X1: box[0], Y1: box[1], X2: box[2], Y2: box[3]}
}

// fixtureBufferSize is the side length of the synthetic depth and
// segmentation buffers built from a fixture's flat values.
const fixtureBufferSize = 64

// fixtureFrame is one JSONL line of a replay fixture. Depth and Seg are
// optional flat values filling the whole synthetic buffer; omitting them
// replays a frame where that model returned nothing.
type fixtureFrame struct {
	Detections []fixtureDetection `json:"detections"`
	Depth      *float32           `json:"depth,omitempty"`
	Seg        *uint8             `json:"seg,omitempty"`
}

type fixtureDetection struct {
	Label string     `json:"label"`
	Score float64    `json:"score"`
	Box   [4]float64 `json:"box"` // x1, y1, x2, y2 in normalized coords
}

// loadFixture parses a JSONL fixture file. Blank lines and lines starting
// with # are skipped so fixtures can carry comments.
func loadFixture(path string) ([]fixtureFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var frames []fixtureFrame
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		var frame fixtureFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			return nil, fmt.Errorf("fixture line %d: %w", lineNo, err)
		}
		for i, d := range frame.Detections {
			if d.Box[2] <= d.Box[0] || d.Box[3] <= d.Box[1] {
				return nil, fmt.Errorf("fixture line %d: detection %d has a degenerate box", lineNo, i)
			}
		}
		frames = append(frames, frame)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("fixture %s contains no frames", path)
	}
	return frames, nil
}

// replaySource serves fixture frames and implements all three model
// contracts, keyed by frame sequence number.
type replaySource struct {
	frames []fixtureFrame
}

func newReplaySource(frames []fixtureFrame) *replaySource {
	return &replaySource{frames: frames}
}

// nextFrame returns the pipeline frame for seq, or ok=false when the
// fixture is exhausted and looping is off.
func (r *replaySource) nextFrame(seq int64, loop bool) (pipeline.Frame, bool) {
	if !loop && seq >= int64(len(r.frames)) {
		return pipeline.Frame{}, false
	}
	return pipeline.Frame{
		Seq:    seq,
		Width:  fixtureBufferSize,
		Height: fixtureBufferSize,
		Taken:  time.Now(),
	}, true
}

func (r *replaySource) at(seq int64) fixtureFrame {
	return r.frames[int(seq)%len(r.frames)]
}

func (r *replaySource) Detect(_ context.Context, frame pipeline.Frame) ([]track.Detection, error) {
	fix := r.at(frame.Seq)
	detections := make([]track.Detection, 0, len(fix.Detections))
	for _, d := range fix.Detections {
		detections = append(detections, track.Detection{
			Label: d.Label,
			Score: d.Score,
			Box:   geomRect(d.Box),
		})
	}
	return detections, nil
}

func (r *replaySource) Estimate(_ context.Context, frame pipeline.Frame) (*fuse.DepthSnapshot, error) {
	fix := r.at(frame.Seq)
	if fix.Depth == nil {
		return nil, nil
	}
	data := make([]float32, fixtureBufferSize*fixtureBufferSize)
	for i := range data {
		data[i] = *fix.Depth
	}
	return &fuse.DepthSnapshot{
		Width:  fixtureBufferSize,
		Height: fixtureBufferSize,
		Data:   data,
		Taken:  time.Now(),
	}, nil
}

func (r *replaySource) Segment(_ context.Context, frame pipeline.Frame) (*fuse.SegSnapshot, error) {
	fix := r.at(frame.Seq)
	if fix.Seg == nil {
		return nil, nil
	}
	classes := make([]uint8, fixtureBufferSize*fixtureBufferSize)
	for i := range classes {
		classes[i] = *fix.Seg
	}
	return &fuse.SegSnapshot{
		Width:   fixtureBufferSize,
		Height:  fixtureBufferSize,
		Classes: classes,
		Taken:   time.Now(),
	}, nil
}
