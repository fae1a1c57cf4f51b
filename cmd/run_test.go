package cmd

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ColonelBlimp/ultrasonic/internal/config"
	"github.com/ColonelBlimp/ultrasonic/internal/dsp"
	"github.com/ColonelBlimp/ultrasonic/internal/observe"
	"github.com/ColonelBlimp/ultrasonic/internal/observer"
	"github.com/ColonelBlimp/ultrasonic/internal/session"
	"github.com/gorilla/websocket"
)

// loadTestSettings returns the shipped defaults with recordings in a temp dir
func loadTestSettings(t *testing.T) *config.Settings {
	t.Helper()
	resetViperForTest()
	writeTestConfig(t, config.DefaultConfig)
	if err := config.Init(); err != nil {
		t.Fatalf("config.Init() error = %v", err)
	}
	s, err := config.Get()
	if err != nil {
		t.Fatalf("config.Get() error = %v", err)
	}
	s.Recording.Dir = t.TempDir()
	return s
}

func beaconSetup(t *testing.T, s *config.Settings) detectorSetup {
	t.Helper()
	bin, err := dsp.NewBinDetector(s.BeaconBin())
	if err != nil {
		t.Fatalf("NewBinDetector failed: %v", err)
	}
	return detectorSetup{
		mode:     "beacon",
		analyzer: s.BeaconAnalyzer(),
		decider:  bin,
		debounce: s.BeaconDebounce(),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBuild_ToneStartsRecordingAndShutdownFinalizes(t *testing.T) {
	s := loadTestSettings(t)
	rt, err := build(s, discardLogger(), observe.Noop(), beaconSetup(t, s))
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	if rt.wav == nil {
		t.Fatal("recording enabled but no recorder built")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = rt.controller.Run(ctx) }()

	// Two frames of the target tone, delivered in capture-sized chunks
	n := 2 * s.Beacon.FFTSize
	tone := make([]float32, n)
	for i := range tone {
		tone[i] = 0.5 * float32(math.Sin(2*math.Pi*s.Beacon.TargetFrequency*float64(i)/s.SampleRate))
	}
	for off := 0; off < n; off += s.BufferSize {
		rt.onSamples(tone[off : off+s.BufferSize])
	}

	waitFor(t, "recording to start", func() bool { return rt.controller.State() == session.Recording })

	// Audio captured while recording lands in the take
	for off := 0; off < n; off += s.BufferSize {
		rt.onSamples(tone[off : off+s.BufferSize])
	}

	if err := rt.shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
	if rt.controller.State() != session.Idle {
		t.Errorf("State() = %v after shutdown, want idle", rt.controller.State())
	}

	artifact := rt.controller.LastArtifact()
	info, err := os.Stat(artifact)
	if err != nil {
		t.Fatalf("artifact %q: %v", artifact, err)
	}
	if info.Size() <= 44 {
		t.Errorf("artifact holds no audio (%d bytes)", info.Size())
	}
}

func TestBuild_RecordingDisabled(t *testing.T) {
	s := loadTestSettings(t)
	s.Recording.Enabled = false

	rt, err := build(s, discardLogger(), observe.Noop(), beaconSetup(t, s))
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	if rt.wav != nil {
		t.Error("recorder built with recording disabled")
	}
	rt.onSamples(make([]float32, 512))
}

func TestBuild_WebhookNotifier(t *testing.T) {
	s := loadTestSettings(t)
	s.Notify.WebhookURL = "http://127.0.0.1:1/hook"

	rt, err := build(s, discardLogger(), observe.Noop(), beaconSetup(t, s))
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	if rt.webhook == nil {
		t.Error("webhook notifier not built")
	}
}

func TestBuild_InvalidAnalyzer(t *testing.T) {
	s := loadTestSettings(t)
	setup := beaconSetup(t, s)
	setup.analyzer.FFTSize = 1000

	if _, err := build(s, discardLogger(), observe.Noop(), setup); err == nil {
		t.Error("build() accepted a non power of 2 FFT size")
	}
}

func TestApp_Handler(t *testing.T) {
	s := loadTestSettings(t)
	rt, err := build(s, discardLogger(), observe.Noop(), beaconSetup(t, s))
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}

	srv := httptest.NewServer(rt.handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %d", resp.StatusCode)
	}

	rt.hub.Publish(observer.Status{Signal: "on", Recording: true, Timestamp: time.Now()})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial /ws: %v", err)
	}
	defer conn.Close()

	var status observer.Status
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status.Signal != "on" || !status.Recording {
		t.Errorf("status = %+v", status)
	}
}
