package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ColonelBlimp/ultrasonic/internal/audio"
	"github.com/ColonelBlimp/ultrasonic/internal/config"
	"github.com/ColonelBlimp/ultrasonic/internal/debounce"
	"github.com/ColonelBlimp/ultrasonic/internal/dsp"
	"github.com/ColonelBlimp/ultrasonic/internal/notify"
	"github.com/ColonelBlimp/ultrasonic/internal/observe"
	"github.com/ColonelBlimp/ultrasonic/internal/observer"
	"github.com/ColonelBlimp/ultrasonic/internal/pipeline"
	"github.com/ColonelBlimp/ultrasonic/internal/recorder"
	"github.com/ColonelBlimp/ultrasonic/internal/recovery"
	"github.com/ColonelBlimp/ultrasonic/internal/session"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// detectorSetup is what differs between listen and beacon.
type detectorSetup struct {
	mode     string
	analyzer dsp.AnalyzerConfig
	decider  dsp.Decider
	debounce debounce.Config
	tone     *dsp.ToneConfig // nil disables playback
}

// app holds everything built for one run.
type app struct {
	logger     *slog.Logger
	metrics    *observe.Metrics
	hub        *observer.Hub
	wav        *recorder.WAV
	webhook    *notify.Webhook
	controller *session.Controller
	listener   *pipeline.Listener
}

// build assembles the detection and session components without touching
// audio devices.
func build(s *config.Settings, logger *slog.Logger, metrics *observe.Metrics, setup detectorSetup) (*app, error) {
	rt := &app{logger: logger, metrics: metrics, hub: observer.NewHub()}

	analyzer, err := dsp.NewAnalyzer(setup.analyzer)
	if err != nil {
		return nil, err
	}
	machine, err := debounce.New(setup.debounce, debounce.SystemClock{})
	if err != nil {
		return nil, err
	}

	var rec session.Recorder
	if s.Recording.Enabled {
		var opts []recorder.Option
		opts = append(opts, recorder.WithLogger(logger))
		if s3cfg := s.S3Config(); s3cfg.IsConfigured() {
			uploader, err := recorder.NewS3Uploader(s3cfg)
			if err != nil {
				return nil, err
			}
			opts = append(opts, recorder.WithUploader(uploader))
		}
		rt.wav, err = recorder.NewWAV(s.Recorder(), opts...)
		if err != nil {
			return nil, err
		}
		rec = rt.wav
	}

	notifiers := notify.Multi{notify.NewLog(logger)}
	if s.Notify.WebhookURL != "" {
		rt.webhook, err = notify.NewWebhook(s.Notify.WebhookURL, logger)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, rt.webhook)
	}

	rt.controller, err = session.New(s.Session(), rec, notifiers,
		session.WithPublisher(rt.hub),
		session.WithMetrics(metrics),
		session.WithLogger(logger.With("component", "session")))
	if err != nil {
		return nil, err
	}
	machine.SetCallback(func(ev debounce.Event) {
		rt.controller.Submit(ev)
	})

	rt.listener, err = pipeline.NewListener(s.Pipeline(), analyzer, setup.decider, machine,
		pipeline.WithMetrics(metrics),
		pipeline.WithLogger(logger.With("component", "listener", "mode", setup.mode)))
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// onSamples is the capture callback: detection first, then the recorder.
func (rt *app) onSamples(samples []float32) {
	rt.listener.Feed(samples)
	if rt.wav != nil {
		rt.wav.Write(samples)
	}
}

// handler serves the status stream and Prometheus metrics.
func (rt *app) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", observer.NewServer(rt.hub, rt.logger))
	mux.Handle("/metrics", observe.Handler())
	return mux
}

// shutdown stops detection, finalizes any open recording without a
// notification, and waits for webhook deliveries.
func (rt *app) shutdown(ctx context.Context) error {
	if prev := rt.listener.Stop(); prev == debounce.On {
		rt.logger.Info("signal forced off on shutdown")
	}
	err := rt.controller.Shutdown(ctx)
	if rt.webhook != nil {
		rt.webhook.Wait()
	}
	return err
}

// run executes one detection mode until ctx is cancelled.
func run(ctx context.Context, s *config.Settings, logger *slog.Logger, setup detectorSetup) error {
	metrics, shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    config.AppName,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logger.Warn("metrics shutdown failed", "error", err)
		}
	}()

	rt, err := build(s, logger, metrics, setup)
	if err != nil {
		return err
	}
	defer recovery.HandlePanicFunc(func() {
		_ = rt.controller.Shutdown(context.Background())
	})

	capture := audio.New(audio.Config{
		DeviceIndex: s.DeviceIndex,
		SampleRate:  uint32(s.SampleRate),
		BufferSize:  uint32(s.BufferSize),
	})
	capture.SetCallback(rt.onSamples)
	if err := capture.Init(); err != nil {
		return err
	}
	defer capture.Close()

	g, gctx := errgroup.WithContext(ctx)

	if err := capture.Start(gctx); err != nil {
		return err
	}

	if setup.tone != nil {
		emitter, err := dsp.NewToneEmitter(*setup.tone)
		if err != nil {
			return err
		}
		playback, err := audio.NewPlayback(audio.Config{
			DeviceIndex: s.OutputDeviceIndex,
			SampleRate:  uint32(s.SampleRate),
			BufferSize:  uint32(s.BufferSize),
		}, emitter)
		if err != nil {
			return err
		}
		if err := playback.Init(); err != nil {
			return err
		}
		defer playback.Close()
		if err := playback.Start(gctx); err != nil {
			return err
		}
		logger.Info("emitting tone", "frequency", setup.tone.Frequency, "period_samples", emitter.Period())
	}

	g.Go(recovery.Guard("session", func() error { return rt.controller.Run(gctx) }))
	g.Go(recovery.Guard("listener", func() error { return rt.listener.Run(gctx) }))

	if s.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              s.HTTPAddr,
			Handler:           rt.handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(recovery.Guard("http", func() error {
			logger.Info("serving status and metrics", "addr", s.HTTPAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		}))
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	logger.Info("running", "mode", setup.mode, "sample_rate", s.SampleRate, "recording", s.Recording.Enabled)
	runErr := g.Wait()

	_ = capture.Stop()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.shutdown(sctx); err != nil {
		logger.Error("shutdown", "error", err)
		runErr = errors.Join(runErr, err)
	}

	logger.Info("stopped", "mode", setup.mode)
	return runErr
}
