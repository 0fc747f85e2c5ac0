// Package webrtc adapts pion peer connections to the domain ports.
package webrtc

import (
	"fmt"
	"log"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/logging"
	pion "github.com/pion/webrtc/v4"

	"lanparty/screenshare/internal/domain"
)

// trackProvider is implemented by local track wrappers that carry a native
// pion track underneath (see internal/capture).
type trackProvider interface {
	WebRTCTrack() pion.TrackLocal
}

// NewFactory builds a domain.PeerFactory producing connections configured
// with the supplied relay/reflection servers. The media engine speaks H264
// with NACK loss recovery in both directions.
func NewFactory(iceServers []pion.ICEServer) (domain.PeerFactory, error) {
	m := &pion.MediaEngine{}
	h264 := pion.RTPCodecParameters{
		RTPCodecCapability: pion.RTPCodecCapability{
			MimeType:    pion.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
			RTCPFeedback: []pion.RTCPFeedback{
				{Type: pion.TypeRTCPFBNACK},
				{Type: pion.TypeRTCPFBNACK, Parameter: "pli"},
			},
		},
		PayloadType: 102,
	}
	if err := m.RegisterCodec(h264, pion.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register H264: %w", err)
	}

	reg := &interceptor.Registry{}
	responder, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack responder: %w", err)
	}
	reg.Add(responder)
	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack generator: %w", err)
	}
	reg.Add(generator)

	se := pion.SettingEngine{LoggerFactory: logging.NewDefaultLoggerFactory()}

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(reg),
		pion.WithSettingEngine(se),
	)

	return func() (domain.Peer, error) {
		pc, err := api.NewPeerConnection(pion.Configuration{
			ICEServers:   iceServers,
			BundlePolicy: pion.BundlePolicyMaxBundle,
		})
		if err != nil {
			return nil, fmt.Errorf("create peer connection: %w", err)
		}
		return &Peer{pc: pc}, nil
	}, nil
}

// Peer wraps a pion PeerConnection behind the domain port.
type Peer struct {
	pc *pion.PeerConnection
}

func (p *Peer) CreateOffer() (domain.SessionDescription, error) {
	desc, err := p.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return domain.SessionDescription{Type: desc.Type.String(), SDP: desc.SDP}, nil
}

func (p *Peer) CreateAnswer() (domain.SessionDescription, error) {
	desc, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return domain.SessionDescription{Type: desc.Type.String(), SDP: desc.SDP}, nil
}

func (p *Peer) SetLocalDescription(desc domain.SessionDescription) error {
	return p.pc.SetLocalDescription(toPion(desc))
}

func (p *Peer) SetRemoteDescription(desc domain.SessionDescription) error {
	return p.pc.SetRemoteDescription(toPion(desc))
}

func (p *Peer) AddICECandidate(c domain.ICECandidate) error {
	return p.pc.AddICECandidate(pion.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	})
}

// AddTrack attaches a local capture track and drains its RTCP stream so the
// configured interceptors keep running.
func (p *Peer) AddTrack(track domain.LocalTrack) error {
	provider, ok := track.(trackProvider)
	if !ok {
		return fmt.Errorf("track %s does not carry a native track", track.ID())
	}

	sender, err := p.pc.AddTrack(provider.WebRTCTrack())
	if err != nil {
		return err
	}

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (p *Peer) OnTrack(fn func(domain.RemoteStream)) {
	p.pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		codec := track.Codec()
		log.Printf("[webrtc] got track: kind=%s codec=%s", track.Kind(), codec.MimeType)
		fn(NewStream(track))
	})
}

func (p *Peer) OnICECandidate(fn func(domain.ICECandidate)) {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		fn(domain.ICECandidate{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})
}

func (p *Peer) OnStateChange(fn func(domain.PeerState)) {
	p.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		log.Printf("[webrtc] peer connection state: %s", state)
		fn(mapState(state))
	})
}

func (p *Peer) Close() error {
	return p.pc.Close()
}

func toPion(desc domain.SessionDescription) pion.SessionDescription {
	return pion.SessionDescription{
		Type: pion.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	}
}

func mapState(state pion.PeerConnectionState) domain.PeerState {
	switch state {
	case pion.PeerConnectionStateNew:
		return domain.PeerNew
	case pion.PeerConnectionStateConnecting:
		return domain.PeerConnecting
	case pion.PeerConnectionStateConnected:
		return domain.PeerConnected
	case pion.PeerConnectionStateDisconnected:
		return domain.PeerDisconnected
	case pion.PeerConnectionStateFailed:
		return domain.PeerFailed
	case pion.PeerConnectionStateClosed:
		return domain.PeerClosed
	}
	return domain.PeerNew
}
