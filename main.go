// Command percept runs the assistive perception pipeline against a replay
// fixture: detections, depth and segmentation values are read from a JSONL
// file and fed through the tracker, fusion engine and announcement
// stabilizer exactly as live camera frames would be. Narration requests go
// to a logging sink.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/capable-vision/percept/internal/announce"
	"github.com/capable-vision/percept/internal/config"
	"github.com/capable-vision/percept/internal/fuse"
	"github.com/capable-vision/percept/internal/monitoring"
	"github.com/capable-vision/percept/internal/observe"
	"github.com/capable-vision/percept/internal/pipeline"
	"github.com/capable-vision/percept/internal/store"
	"github.com/capable-vision/percept/internal/timeutil"
	"github.com/capable-vision/percept/internal/track"
	"github.com/capable-vision/percept/internal/version"
)

var (
	fixturePath   = flag.String("fixture", "", "Path to a JSONL replay fixture (required)")
	configPath    = flag.String("config", "", "Path to a JSON tuning config")
	dbPath        = flag.String("db", "", "Path to a sqlite event store (empty disables persistence)")
	metricsListen = flag.String("metrics-listen", "", "Listen address for /metrics (empty disables)")
	fps           = flag.Int("fps", 30, "Replay frame rate")
	loop          = flag.Bool("loop", false, "Loop the fixture instead of exiting at the end")
	verbose       = flag.Bool("v", false, "Enable debug logging")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

// speechLogSink renders narration requests to the log. It stands in for a
// text-to-speech engine, which is out of scope here.
type speechLogSink struct{}

func (speechLogSink) Announce(text string, level announce.Level, interrupt bool) {
	if interrupt {
		monitoring.Logf("narrate [%s, interrupt]: %s", level, text)
		return
	}
	monitoring.Logf("narrate [%s]: %s", level, text)
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("percept %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if *fixturePath == "" {
		log.Fatal("-fixture is required")
	}
	if *fps <= 0 {
		log.Fatal("-fps must be positive")
	}
	monitoring.SetVerbose(*verbose)

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	frames, err := loadFixture(*fixturePath)
	if err != nil {
		log.Fatalf("failed to load fixture: %v", err)
	}
	monitoring.Logf("loaded %d fixture frames from %s", len(frames), *fixturePath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *metricsListen != "" {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceVersion: version.Version,
		})
		if err != nil {
			log.Fatalf("failed to initialize metrics: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				monitoring.Logf("metrics shutdown: %v", err)
			}
		}()
	}

	var eventStore *store.EventStore
	if *dbPath != "" {
		eventStore, err = store.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open event store: %v", err)
		}
		defer eventStore.Close()
	}

	source := newReplaySource(frames)
	p, err := pipeline.New(pipeline.Options{
		Detector:   source,
		Depth:      source,
		Seg:        source,
		Tracker:    track.NewTracker(cfg.TrackerConfig()),
		Engine:     fuse.NewEngine(cfg.FusionConfig()),
		Stabilizer: announce.NewStabilizer(cfg.StabilizerConfig(), timeutil.RealClock{}),
		Dispatcher: announce.NewDispatcher(cfg.GetNarrationQueue()),
		Store:      eventStore,
		DepthEvery: cfg.GetDepthEvery(),
		SegEvery:   cfg.GetSegEvery(),
	})
	if err != nil {
		log.Fatalf("failed to assemble pipeline: %v", err)
	}
	monitoring.Logf("percept %s starting run %s", version.Version, p.RunID())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return p.Run(gctx, speechLogSink{})
	})
	if *metricsListen != "" {
		g.Go(func() error {
			return serveMetrics(gctx, *metricsListen)
		})
	}
	g.Go(func() error {
		defer cancel() // fixture exhausted: wind the rest down
		return replayFrames(gctx, p, source, *fps, *loop)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("pipeline failed: %v", err)
	}
	monitoring.Logf("percept exiting")
}

// replayFrames feeds fixture frames through the pipeline at the requested
// rate until the fixture runs out (unless looping) or ctx is cancelled.
func replayFrames(ctx context.Context, p *pipeline.Pipeline, source *replaySource, fps int, loop bool) error {
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	var seq int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		frame, ok := source.nextFrame(seq, loop)
		if !ok {
			monitoring.Logf("fixture exhausted after %d frames", seq)
			return nil
		}
		p.ProcessFrame(ctx, frame)
		seq++
	}
}

func serveMetrics(ctx context.Context, listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: listen, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	monitoring.Logf("serving /metrics on %s", listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
