// Package capture provides the capture capability: it ingests an H264 RTP
// feed from a local UDP socket (an ffmpeg or obs loopback) into a local
// track that responder sessions attach to their peer connections.
package capture

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v4"

	"lanparty/screenshare/internal/domain"
)

// DefaultIdleTimeout is how long a running feed may go quiet before the
// source counts as ended.
const DefaultIdleTimeout = 5 * time.Second

// NewProvider returns a CaptureProvider bound to a UDP listen address, e.g.
// "127.0.0.1:5004". Feed it with:
//
//	ffmpeg -f x11grab -i :0 -c:v libx264 -tune zerolatency \
//	    -f rtp rtp://127.0.0.1:5004
func NewProvider(listenAddr string, idleTimeout time.Duration) domain.CaptureProvider {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return func() (domain.CaptureSource, error) {
		if listenAddr == "" {
			return nil, fmt.Errorf("no capture ingest address configured: %w", domain.ErrCaptureUnavailable)
		}
		return newSource(listenAddr, idleTimeout)
	}
}

// Source reads RTP packets off a UDP socket and writes them into a static
// RTP track. It reports the feed ending through OnEnded.
type Source struct {
	conn  *net.UDPConn
	track *pion.TrackLocalStaticRTP

	mu      sync.Mutex
	onEnded func()
	closed  bool
}

func newSource(listenAddr string, idleTimeout time.Duration) (*Source, error) {
	addr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", listenAddr, domain.ErrCaptureUnavailable)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		kind := domain.ErrCaptureUnavailable
		if errors.Is(err, os.ErrPermission) {
			kind = domain.ErrCaptureDenied
		}
		return nil, fmt.Errorf("listen %s: %v: %w", listenAddr, err, kind)
	}

	track, err := pion.NewTrackLocalStaticRTP(pion.RTPCodecCapability{
		MimeType:  pion.MimeTypeH264,
		ClockRate: 90000,
	}, "video", "screen")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create local track: %w", err)
	}

	s := &Source{conn: conn, track: track}
	go s.readLoop(idleTimeout)

	log.Printf("[capture] listening for RTP on %s", listenAddr)
	return s, nil
}

// Tracks returns the local tracks to attach to responder connections.
func (s *Source) Tracks() []domain.LocalTrack {
	return []domain.LocalTrack{localTrack{s.track}}
}

// OnEnded registers the callback invoked once when the feed stops on its own.
func (s *Source) OnEnded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = fn
}

// Close releases the socket. The OnEnded callback does not fire for an
// explicit close. Safe to call more than once.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.conn.Close()
}

func (s *Source) readLoop(idleTimeout time.Duration) {
	buf := make([]byte, 1500)
	receiving := false

	for {
		// No deadline until the feed starts: the sharer may launch the
		// encoder after sharing begins.
		if receiving {
			_ = s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		}

		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Printf("[capture] feed went quiet, ending source")
				s.ended()
				return
			}
			// socket closed (explicit stop) or unrecoverable
			s.ended()
			return
		}
		receiving = true

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			log.Printf("[capture] drop malformed packet: %v", err)
			continue
		}
		if err := s.track.WriteRTP(pkt); err != nil {
			log.Printf("[capture] write track: %v", err)
		}
	}
}

func (s *Source) ended() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	fn := s.onEnded
	s.mu.Unlock()

	s.conn.Close()
	if fn != nil {
		fn()
	}
}

type localTrack struct {
	t *pion.TrackLocalStaticRTP
}

func (l localTrack) ID() string   { return l.t.ID() }
func (l localTrack) Kind() string { return l.t.Kind().String() }

func (l localTrack) WebRTCTrack() pion.TrackLocal { return l.t }
