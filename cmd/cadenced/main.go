package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/cadence/certs"
	"github.com/zsiec/cadence/feed"
	"github.com/zsiec/cadence/ingest"
	quicingest "github.com/zsiec/cadence/ingest/quic"
	srtingest "github.com/zsiec/cadence/ingest/srt"
	"github.com/zsiec/cadence/internal/api"
	"github.com/zsiec/cadence/internal/distribution"
	"github.com/zsiec/cadence/internal/metrics"
	"github.com/zsiec/cadence/internal/stream"
	"github.com/zsiec/cadence/media"
	"github.com/zsiec/cadence/sink"
	sinkwebrtc "github.com/zsiec/cadence/sink/webrtc"
	"github.com/zsiec/cadence/source"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("CADENCE_DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	srtAddr := envOr("CADENCE_SRT_ADDR", ":6000")
	quicAddr := envOr("CADENCE_QUIC_ADDR", ":6001")
	apiAddr := envOr("CADENCE_API_ADDR", ":8080")

	defaultFmt, err := media.ParseSpec(envOr("CADENCE_FORMAT", "t=audio,sr=48000,bd=16,ch=2"))
	if err != nil {
		slog.Error("invalid CADENCE_FORMAT", "error", err)
		os.Exit(1)
	}
	buffer := envFloat("CADENCE_BUFFER", 0.5)
	maxBuffer := envFloat("CADENCE_MAX_BUFFER", 2.0)

	slog.Info("generating self-signed certificate")
	cert, err := certs.Generate(14 * 24 * time.Hour)
	if err != nil {
		slog.Error("failed to generate cert", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	m := metrics.New()
	a := &app{
		mgr:       stream.NewManager(nil),
		viewers:   distribution.NewServer(nil, m),
		metrics:   m,
		buffer:    buffer,
		maxBuffer: maxBuffer,
	}

	slog.Info("cadence starting",
		"version", version,
		"srt", srtAddr,
		"quic", quicAddr,
		"api", apiAddr,
		"format", must(media.Spec(defaultFmt)),
		"buffer_s", buffer,
		"maxbuffer_s", maxBuffer,
		"cert_hash", cert.FingerprintBase64(),
	)

	g, ctx := errgroup.WithContext(ctx)

	// The registry closure captures the errgroup-derived context so every
	// feed winds down when any listener fails.
	a.registry = ingest.NewRegistry(func(pub *ingest.Publication, src *source.Reader) {
		a.handlePublication(ctx, pub, src)
	}, nil)

	srtSrv := srtingest.NewServer(srtAddr, a.registry, defaultFmt, nil)
	quicSrv := quicingest.NewServer(quicAddr, cert, a.registry, nil)
	apiSrv := api.New(a.mgr, a.viewers, nil)

	g.Go(func() error { return srtSrv.Start(ctx) })
	g.Go(func() error { return quicSrv.Start(ctx) })
	g.Go(func() error { return apiSrv.Start(ctx, apiAddr) })

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	a.viewers.Close()
}

type app struct {
	mgr       *stream.Manager
	viewers   *distribution.Server
	registry  *ingest.Registry
	metrics   *metrics.Metrics
	buffer    float64
	maxBuffer float64
}

// handlePublication runs one feed end to end: it builds the controller and
// fanout, starts paced delivery over the publication's source, and tears
// everything down when the session finishes or the daemon stops.
func (a *app) handlePublication(ctx context.Context, pub *ingest.Publication, src *source.Reader) {
	key := pub.Key
	kind := pub.Format.Kind()
	log := slog.With("feed", key, "kind", kind)
	log.Info("new feed from ingest")

	stats := stream.NewFeedStats(key, kind, a.metrics)
	fan := sink.NewFanout(nil)

	var opts []stream.FeedOpt
	if track := audioTrack(pub.Format, key); track != nil {
		fan.Attach("webrtc", track)
		opts = append(opts, stream.WithTrack(track))
	}

	finished := make(chan struct{})
	ctrl := feed.New(nil, feed.Hooks{
		OnFinish: func() { close(finished) },
		OnError:  func(err error) { log.Error("feed source failed", "error", err) },
	}, feed.OptStats(stats))

	if _, err := a.mgr.Create(key, kind, ctrl, fan, stats, opts...); err != nil {
		log.Warn("rejecting feed", "error", err)
		src.Destroy()
		return
	}
	defer a.teardown(key)

	startup, err := ctrl.Start(src, feed.Config{
		Format:    pub.Format,
		Buffer:    a.buffer,
		MaxBuffer: a.maxBuffer,
		Sink:      fan,
	})
	if err != nil {
		log.Error("feed start failed", "error", err)
		return
	}
	if err := startup.Wait(ctx); err != nil {
		log.Warn("feed never became ready", "error", err)
		return
	}
	log.Info("feed ready")

	select {
	case <-finished:
		log.Info("feed finished")
	case <-ctx.Done():
	}
}

// teardown removes every resource of a feed across viewers, manager, and
// ingest registry in one call.
func (a *app) teardown(key string) {
	a.viewers.CloseFeed(key)
	a.mgr.Remove(key)
	a.registry.Unpublish(key)
}

// audioTrack builds a WebRTC track when the format can ride one. Only G.711
// maps onto RTP without transcoding, so anything else plays out through the
// fanout alone.
func audioTrack(format media.Format, key string) *sinkwebrtc.AudioTrack {
	af, ok := format.(media.AudioFormat)
	if !ok {
		return nil
	}
	track, err := sinkwebrtc.NewAudioTrack("audio", key, webrtc.MimeTypePCMU, af)
	if err != nil {
		return nil
	}
	return track
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("ignoring invalid value", "var", key, "value", v)
		return fallback
	}
	return f
}

func must(s string, err error) string {
	if err != nil {
		return "?"
	}
	return s
}
