package webrtc

import (
	"errors"
	"io"
	"strings"

	pion "github.com/pion/webrtc/v4"
)

// Stream is the usable handle on a received media track, resolved by a
// viewer negotiation.
type Stream struct {
	track *pion.TrackRemote
}

// NewStream wraps a remote track.
func NewStream(track *pion.TrackRemote) *Stream {
	return &Stream{track: track}
}

func (s *Stream) ID() string {
	return s.track.ID()
}

func (s *Stream) Kind() string {
	return s.track.Kind().String()
}

func (s *Stream) Codec() string {
	return s.track.Codec().MimeType
}

// WriteAnnexB reads RTP from the track, reassembles H264 NAL units, and
// writes an Annex-B byte stream to w until the track ends. Pipe to ffplay or
// ffmpeg for playback.
func (s *Stream) WriteAnnexB(w io.Writer) error {
	if !strings.EqualFold(s.Codec(), pion.MimeTypeH264) {
		return errors.New("track is not H264")
	}

	startCode := []byte{0x00, 0x00, 0x00, 0x01}
	depack := newH264Depacketizer()

	for {
		pkt, _, err := s.track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		for _, nalu := range depack.depacketize(pkt.SequenceNumber, pkt.Payload) {
			if len(nalu) == 0 {
				continue
			}
			if _, err := w.Write(startCode); err != nil {
				return err
			}
			if _, err := w.Write(nalu); err != nil {
				return err
			}
		}
	}
}
