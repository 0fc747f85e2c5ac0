package webrtc

// NAL unit types of interest in RTP H264 payloads (RFC 6184).
const (
	naluTypeSTAPA = 24
	naluTypeFUA   = 28
)

// h264Depacketizer reassembles NAL units from RTP H264 payloads. FU-A
// fragments accumulate per instance, so each stream needs its own.
type h264Depacketizer struct {
	frag    []byte
	lastSeq uint16
	inFrag  bool
}

func newH264Depacketizer() *h264Depacketizer {
	return &h264Depacketizer{}
}

// depacketize returns the NAL units completed by one RTP payload. Handles
// single NAL, STAP-A aggregation, and FU-A fragmentation; other payload
// types are skipped. A sequence gap inside a fragment chain drops the whole
// chain rather than emit a corrupt NAL.
func (d *h264Depacketizer) depacketize(seq uint16, payload []byte) [][]byte {
	if len(payload) < 1 {
		return nil
	}

	switch naluType := payload[0] & 0x1f; {
	case naluType >= 1 && naluType <= 23:
		return [][]byte{payload}
	case naluType == naluTypeSTAPA:
		return d.splitSTAPA(payload)
	case naluType == naluTypeFUA:
		return d.reassembleFUA(seq, payload)
	default:
		return nil
	}
}

func (d *h264Depacketizer) splitSTAPA(payload []byte) [][]byte {
	var nalus [][]byte
	offset := 1 // past the STAP-A header byte

	for offset+2 <= len(payload) {
		size := int(payload[offset])<<8 | int(payload[offset+1])
		offset += 2
		if size == 0 || offset+size > len(payload) {
			break
		}
		nalus = append(nalus, payload[offset:offset+size])
		offset += size
	}
	return nalus
}

func (d *h264Depacketizer) reassembleFUA(seq uint16, payload []byte) [][]byte {
	if len(payload) < 2 {
		return nil
	}

	fnri := payload[0] & 0xe0
	header := payload[1]
	start := header&0x80 != 0
	end := header&0x40 != 0

	if start {
		// NAL header is rebuilt from the FU indicator's F+NRI bits and
		// the FU header's type bits.
		d.frag = append([]byte{fnri | header&0x1f}, payload[2:]...)
		d.inFrag = true
		d.lastSeq = seq
	} else {
		if !d.inFrag || seq != d.lastSeq+1 {
			d.frag = nil
			d.inFrag = false
			return nil
		}
		d.frag = append(d.frag, payload[2:]...)
		d.lastSeq = seq
	}

	if end && d.inFrag {
		nalu := d.frag
		d.frag = nil
		d.inFrag = false
		return [][]byte{nalu}
	}
	return nil
}
