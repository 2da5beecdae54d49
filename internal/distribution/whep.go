// Package distribution hands live audio feeds to WebRTC viewers over WHEP.
// A viewer POSTs an SDP offer, gets an answer back, and from then on the
// feed's track pushes samples into the peer connection until either side
// hangs up.
package distribution

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/zsiec/cadence/internal/metrics"
)

// ErrNoTrack reports an attach against a feed that has no playable track.
var ErrNoTrack = errors.New("distribution: feed has no audio track")

// rtcpBufSize is the read buffer for draining sender RTCP reports.
const rtcpBufSize = 1500

// ViewerInfo is the JSON summary of one connected viewer.
type ViewerInfo struct {
	ID          string    `json:"id"`
	FeedKey     string    `json:"feedKey"`
	ConnectedAt time.Time `json:"connectedAt"`
	State       string    `json:"state"`
}

// viewerSession pairs a peer connection with the feed it watches.
type viewerSession struct {
	id          string
	feedKey     string
	connectedAt time.Time
	pc          *webrtc.PeerConnection
}

// Server owns every viewer peer connection. One Server serves all feeds;
// sessions are indexed both by viewer ID and by feed key so a feed teardown
// can sweep its viewers in one pass.
type Server struct {
	log *slog.Logger
	m   *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*viewerSession
	byFeed   map[string]map[string]*viewerSession
}

// NewServer creates a viewer server. Both arguments may be nil.
func NewServer(log *slog.Logger, m *metrics.Metrics) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:      log.With("component", "distribution"),
		m:        m,
		sessions: make(map[string]*viewerSession),
		byFeed:   make(map[string]map[string]*viewerSession),
	}
}

// Attach negotiates a viewer peer connection against an SDP offer and wires
// the feed's track into it. It blocks until ICE gathering completes so the
// returned answer carries all candidates, which is what WHEP clients expect
// from a single POST exchange. Returns the answer SDP and the viewer ID.
func (s *Server) Attach(feedKey string, track *webrtc.TrackLocalStaticSample, offerSDP string) (string, string, error) {
	if track == nil {
		return "", "", fmt.Errorf("%w: %q", ErrNoTrack, feedKey)
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return "", "", fmt.Errorf("distribution: create peer connection: %w", err)
	}

	sender, err := pc.AddTrack(track)
	if err != nil {
		pc.Close()
		return "", "", fmt.Errorf("distribution: add track: %w", err)
	}

	// Sender RTCP must be drained or pion stops processing feedback.
	go func() {
		buf := make([]byte, rtcpBufSize)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}); err != nil {
		pc.Close()
		return "", "", fmt.Errorf("distribution: set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return "", "", fmt.Errorf("distribution: create answer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return "", "", fmt.Errorf("distribution: set local description: %w", err)
	}
	<-gathered

	sess := &viewerSession{
		id:          newViewerID(),
		feedKey:     feedKey,
		connectedAt: time.Now(),
		pc:          pc,
	}
	s.add(sess)
	s.m.RecordViewerStart()
	s.log.Info("viewer attached", "viewer", sess.id, "feed", feedKey)

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			if s.remove(sess.id) {
				s.m.RecordViewerStop()
				s.log.Info("viewer gone", "viewer", sess.id, "feed", feedKey, "state", state)
			}
		default:
		}
	})

	return pc.LocalDescription().SDP, sess.id, nil
}

// Kick closes one viewer session. Reports whether it existed.
func (s *Server) Kick(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	sess.pc.Close()
	if s.remove(id) {
		s.m.RecordViewerStop()
		s.log.Info("viewer kicked", "viewer", id, "feed", sess.feedKey)
	}
	return true
}

// CloseFeed closes every viewer watching the given feed.
func (s *Server) CloseFeed(feedKey string) int {
	s.mu.Lock()
	var closing []*viewerSession
	for _, sess := range s.byFeed[feedKey] {
		closing = append(closing, sess)
	}
	s.mu.Unlock()

	for _, sess := range closing {
		sess.pc.Close()
		if s.remove(sess.id) {
			s.m.RecordViewerStop()
		}
	}
	if len(closing) > 0 {
		s.log.Info("feed viewers closed", "feed", feedKey, "count", len(closing))
	}
	return len(closing)
}

// Viewers lists the sessions watching a feed. An empty key lists everyone.
func (s *Server) Viewers(feedKey string) []ViewerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ViewerInfo
	appendInfo := func(sess *viewerSession) {
		out = append(out, ViewerInfo{
			ID:          sess.id,
			FeedKey:     sess.feedKey,
			ConnectedAt: sess.connectedAt,
			State:       sess.pc.ConnectionState().String(),
		})
	}
	if feedKey == "" {
		for _, sess := range s.sessions {
			appendInfo(sess)
		}
	} else {
		for _, sess := range s.byFeed[feedKey] {
			appendInfo(sess)
		}
	}
	return out
}

// Count returns the number of connected viewers.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close tears down every session.
func (s *Server) Close() {
	s.mu.Lock()
	var closing []*viewerSession
	for _, sess := range s.sessions {
		closing = append(closing, sess)
	}
	s.mu.Unlock()

	for _, sess := range closing {
		sess.pc.Close()
		if s.remove(sess.id) {
			s.m.RecordViewerStop()
		}
	}
}

func (s *Server) add(sess *viewerSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.id] = sess
	feed := s.byFeed[sess.feedKey]
	if feed == nil {
		feed = make(map[string]*viewerSession)
		s.byFeed[sess.feedKey] = feed
	}
	feed[sess.id] = sess
}

// remove deletes a session from both indexes. Reports whether the session
// was still present, so metric decrements happen exactly once even when a
// state-change callback races a Kick or CloseFeed.
func (s *Server) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	delete(s.sessions, id)
	if feed := s.byFeed[sess.feedKey]; feed != nil {
		delete(feed, id)
		if len(feed) == 0 {
			delete(s.byFeed, sess.feedKey)
		}
	}
	return true
}

func newViewerID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process is in serious trouble;
		// fall back to a timestamp so the session is still addressable.
		return fmt.Sprintf("viewer-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
