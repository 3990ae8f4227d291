package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/posture.report/internal/api"
	"github.com/banshee-data/posture.report/internal/config"
	"github.com/banshee-data/posture.report/internal/landmark"
	"github.com/banshee-data/posture.report/internal/monitoring"
	"github.com/banshee-data/posture.report/internal/posture"
	"github.com/banshee-data/posture.report/internal/store"
)

var (
	devMode      = flag.Bool("dev", false, "Replay fixture frames instead of listening for a detector")
	fixtures     = flag.String("fixtures", "fixtures.jsonl", "Fixture file for dev mode (line-delimited landmark frames)")
	listen       = flag.String("listen", ":8080", "Listen address")
	detectorAddr = flag.String("detector-addr", ":5555", "UDP address the landmark detector streams to")
	dbFile       = flag.String("db", "posture_data.db", "Journal database path (empty disables persistence)")
	configFile   = flag.String("config", "", "JSON presets/overrides file")
	metricPreset = flag.String("metric-preset", config.MetricPresetDefault, "Metric preset when no config file is given")
	perfPreset   = flag.String("performance-preset", config.PerformancePresetMedium, "Performance preset when no config file is given")
	trace        = flag.Bool("trace", false, "Enable per-frame trace logging")
)

func resolveStartupConfig() (*config.EffectiveConfig, error) {
	if *configFile != "" {
		f, err := config.LoadOverridesFile(*configFile)
		if err != nil {
			return nil, err
		}
		return config.ResolveFile(f)
	}
	return config.Resolve(*metricPreset, *perfPreset, config.Overrides{})
}

func main() {
	flag.Parse()
	monitoring.EnableTrace(*trace)

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg, err := resolveStartupConfig()
	if err != nil {
		log.Fatalf("failed to resolve configuration: %v", err)
	}

	var source landmark.Source
	if *devMode {
		source = &landmark.FileSource{
			Path:     *fixtures,
			Interval: cfg.Performance.TargetInterval(),
			Loop:     true,
		}
	} else {
		source = &landmark.UDPSource{Addr: *detectorAddr}
	}

	var journal *store.Store
	if *dbFile != "" {
		journal, err = store.Open(*dbFile)
		if err != nil {
			log.Fatalf("failed to open journal database: %v", err)
		}
		defer journal.Close()
	}

	opts := posture.PipelineOptions{}
	var events api.EventReader
	if journal != nil {
		opts.Journal = journal
		events = journal
	}
	pipeline := posture.NewPipeline(cfg, opts)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// processing loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := pipeline.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("pipeline stopped: %v", err)
		}
	}()

	// restore the last committed baseline so a restart does not force the
	// user through calibration again
	if journal != nil {
		if cal, err := journal.LatestCalibration(); err != nil {
			log.Printf("failed to read last calibration: %v", err)
		} else if cal != nil {
			err := pipeline.RestoreBaseline(ctx, &posture.Baseline{
				References: cal.References,
				Quality:    cal.Quality,
				CapturedAt: cal.CapturedAt,
				Valid:      true,
			})
			if err != nil {
				log.Printf("failed to restore baseline: %v", err)
			}
		}
	}

	// landmark frames in
	wg.Add(1)
	go func() {
		defer wg.Done()
		frames := make(chan landmark.Frame, 16)
		go pipeline.Sink(ctx, frames)
		if err := source.Run(ctx, frames); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("landmark source stopped: %v", err)
		}
		log.Print("source routine terminated")
	}()

	// alert events out: log them; desktop notifiers hang off this stream
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case ev := <-pipeline.Events():
				monitoring.Logf("alert: %s %s (severity %.3f)", ev.Metric, ev.Kind, ev.Severity)
			case <-ctx.Done():
				log.Printf("event routine terminated")
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(pipeline, events).ServeMux()
		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
