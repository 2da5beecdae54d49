package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/zsiec/cadence/feed"
	"github.com/zsiec/cadence/internal/distribution"
	"github.com/zsiec/cadence/internal/stream"
	"github.com/zsiec/cadence/media"
	"github.com/zsiec/cadence/sink"
	sinkwebrtc "github.com/zsiec/cadence/sink/webrtc"
)

func newTestServer(t *testing.T) (*Server, *stream.Manager, *distribution.Server) {
	t.Helper()
	manager := stream.NewManager(nil)
	viewers := distribution.NewServer(nil, nil)
	t.Cleanup(viewers.Close)
	return New(manager, viewers, nil), manager, viewers
}

func addFeed(t *testing.T, m *stream.Manager, key string, opts ...stream.FeedOpt) {
	t.Helper()
	stats := stream.NewFeedStats(key, media.Audio, nil)
	ctrl := feed.New(nil, feed.Hooks{}, feed.OptStats(stats))
	if _, err := m.Create(key, media.Audio, ctrl, sink.NewFanout(nil), stats, opts...); err != nil {
		t.Fatalf("Create(%q) error: %v", key, err)
	}
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := doRequest(s, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d, want 200", w.Code)
	}
}

func TestListFeeds(t *testing.T) {
	s, m, _ := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/api/feeds", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/feeds = %d, want 200", w.Code)
	}
	var resp struct {
		Feeds []stream.FeedSnapshot `json:"feeds"`
		Total int                   `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Total != 0 || resp.Feeds == nil {
		t.Errorf("empty list response = %+v, want total 0 with non-null feeds", resp)
	}

	addFeed(t, m, "desk-1")
	addFeed(t, m, "desk-2")

	w = doRequest(s, http.MethodGet, "/api/feeds", "")
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}
}

func TestGetFeed(t *testing.T) {
	s, m, _ := newTestServer(t)
	addFeed(t, m, "desk-1")

	w := doRequest(s, http.MethodGet, "/api/feeds/desk-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/feeds/desk-1 = %d, want 200: %s", w.Code, w.Body)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if _, ok := resp["stats"]; !ok {
		t.Error("response missing stats")
	}

	w = doRequest(s, http.MethodGet, "/api/feeds/missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("GET missing feed = %d, want 404", w.Code)
	}
}

func TestDeleteFeed(t *testing.T) {
	s, m, _ := newTestServer(t)
	addFeed(t, m, "desk-1")

	w := doRequest(s, http.MethodDelete, "/api/feeds/desk-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("DELETE = %d, want 200", w.Code)
	}
	if _, ok := m.Get("desk-1"); ok {
		t.Error("feed still present after DELETE")
	}

	w = doRequest(s, http.MethodDelete, "/api/feeds/desk-1", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("second DELETE = %d, want 404", w.Code)
	}
}

func TestWHEP_FeedWithoutTrack(t *testing.T) {
	s, m, _ := newTestServer(t)
	addFeed(t, m, "desk-1")

	w := doRequest(s, http.MethodPost, "/api/feeds/desk-1/whep", "v=0")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("POST whep on trackless feed = %d, want 422", w.Code)
	}

	w = doRequest(s, http.MethodPost, "/api/feeds/missing/whep", "v=0")
	if w.Code != http.StatusNotFound {
		t.Errorf("POST whep on missing feed = %d, want 404", w.Code)
	}
}

func TestWHEP_Negotiates(t *testing.T) {
	s, m, _ := newTestServer(t)

	track, err := sinkwebrtc.NewAudioTrack("audio", "desk-1", webrtc.MimeTypePCMU, media.AudioFormat{
		SampleRate:    8000,
		BitsPerSample: 8,
		ChannelCount:  1,
	})
	if err != nil {
		t.Fatalf("NewAudioTrack() error: %v", err)
	}
	addFeed(t, m, "desk-1", stream.WithTrack(track))

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewPeerConnection() error: %v", err)
	}
	defer pc.Close()
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
		t.Fatalf("AddTransceiverFromKind() error: %v", err)
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		t.Fatalf("CreateOffer() error: %v", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		t.Fatalf("SetLocalDescription() error: %v", err)
	}
	<-gathered

	w := doRequest(s, http.MethodPost, "/api/feeds/desk-1/whep", pc.LocalDescription().SDP)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST whep = %d, want 201: %s", w.Code, w.Body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/sdp" {
		t.Errorf("Content-Type = %q, want application/sdp", ct)
	}
	loc := w.Header().Get("Location")
	if !strings.HasPrefix(loc, "/api/viewers/") {
		t.Fatalf("Location = %q, want /api/viewers/<id>", loc)
	}

	// The Location header doubles as the hang-up endpoint.
	w = doRequest(s, http.MethodDelete, loc, "")
	if w.Code != http.StatusOK {
		t.Errorf("DELETE %s = %d, want 200", loc, w.Code)
	}
	w = doRequest(s, http.MethodDelete, loc, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("second DELETE = %d, want 404", w.Code)
	}
}

func TestKickViewer_Missing(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := doRequest(s, http.MethodDelete, "/api/viewers/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("DELETE missing viewer = %d, want 404", w.Code)
	}
}
