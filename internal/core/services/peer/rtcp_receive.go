package peer

import (
	"encoding/binary"

	"github.com/pion/rtcp"
	"go.uber.org/zap"
)

// OnTransportRtcpPacket is the RTCP receive pipeline (§4.3). packets is the
// already-parsed compound packet — a []rtcp.Packet is the idiomatic Go
// stand-in for the linked-list-of-tagged-variants the design notes
// describe; dispatch is a type switch instead of an enum match, but the
// demultiplexing semantics, including the AFB/non-REMB fallthrough, are
// preserved verbatim.
func (p *Peer) OnTransportRtcpPacket(t *Transport, packets []rtcp.Packet) {
	p.submit(func() {
		for _, pkt := range packets {
			p.dispatchRtcpPacket(t, pkt)
		}
	})
}

func (p *Peer) dispatchRtcpPacket(t *Transport, pkt rtcp.Packet) {
	switch v := pkt.(type) {
	case *rtcp.ReceiverReport:
		for _, report := range v.Reports {
			c := p.getConsumerLocked(report.SSRC)
			if c == nil {
				p.log.Warn("RR references unknown ssrc", zap.Uint32("ssrc", report.SSRC))
				continue
			}
			p.listener.OnPeerRtcpReceiverReport(p, c.id, report)
		}

	case *rtcp.ReceiverEstimatedMaximumBitrate:
		// REMB is handled by bitrate estimation, out of scope here; do nothing.

	case *rtcp.PictureLossIndication:
		p.routeMediaFeedback(v.MediaSSRC, v)
	case *rtcp.SliceLossIndication:
		p.routeMediaFeedback(v.MediaSSRC, v)
	case *rtcp.FullIntraRequest:
		if len(v.FIR) > 0 {
			p.routeMediaFeedback(v.FIR[0].SSRC, v)
		} else {
			p.log.Warn("FIR with no entries")
		}

	case *rtcp.TransportLayerNack:
		c := p.getConsumerLocked(v.MediaSSRC)
		if c == nil {
			p.log.Warn("NACK references unknown ssrc", zap.Uint32("ssrc", v.MediaSSRC))
			return
		}
		c.ReceiveNack(v)
	case *rtcp.RapidResynchronizationRequest:
		p.log.Warn("unsupported RTPFB subtype", zap.String("type", "RapidResync"))
	case *rtcp.TransportLayerCC:
		p.log.Warn("unsupported RTPFB subtype", zap.String("type", "TransportLayerCC"))

	case *rtcp.SenderReport:
		prod := t.producerBySsrc(v.SSRC)
		if prod == nil {
			p.log.Warn("SR references unknown ssrc", zap.Uint32("ssrc", v.SSRC))
			return
		}
		p.listener.OnPeerRtcpSenderReport(p, prod.id, v)

	case *rtcp.SourceDescription:
		for _, chunk := range v.Chunks {
			if t.producerBySsrc(chunk.Source) == nil {
				p.log.Warn("SDES references unknown ssrc", zap.Uint32("ssrc", chunk.Source))
			}
		}

	case *rtcp.Goodbye:
		p.log.Debug("BYE received")

	case *rtcp.RawPacket:
		if fb, ok := psfbAfbFallthrough(v); ok {
			p.routeMediaFeedback(fb, v)
			return
		}
		p.log.Warn("unhandled RTCP packet type", zap.String("type", "raw"))

	default:
		p.log.Warn("unhandled RTCP packet type")
	}
}

// routeMediaFeedback resolves mediaSsrc to a Consumer; if present and
// active, forwards pkt via OnPeerRtcpFeedback. Missing -> warn and drop.
// Present but inactive -> silently drop.
func (p *Peer) routeMediaFeedback(mediaSsrc uint32, pkt rtcp.Packet) {
	c := p.getConsumerLocked(mediaSsrc)
	if c == nil {
		p.log.Warn("PSFB references unknown ssrc", zap.Uint32("ssrc", mediaSsrc))
		return
	}
	if !c.active {
		return
	}
	p.listener.OnPeerRtcpFeedback(p, c.id, pkt)
}

// psfbAfbFallthrough inspects a raw PSFB packet (PT=206): if its FMT is 15
// (AFB) and it was not already consumed as a typed REMB packet above, it
// falls through to the PLI/SLI/FIR handling arm. This is an explicit Open
// Question in the design notes — preserve the fallthrough verbatim rather
// than reinterpreting it.
func psfbAfbFallthrough(raw *rtcp.RawPacket) (uint32, bool) {
	header := raw.Header()
	if header.Type != rtcp.TypePayloadSpecificFeedback || header.Count != 15 {
		return 0, false
	}
	// RFC 4585 §6.1: every PSFB packet carries a fixed "SSRC of media
	// source" field at bytes 8-11, regardless of FMT. It is part of the
	// fixed header, not the FCI, so it is readable even for the
	// application-defined (AFB, FMT=15) payload with no further structure.
	rawBytes := []byte(*raw)
	if len(rawBytes) < 12 {
		return 0, false
	}
	mediaSsrc := binary.BigEndian.Uint32(rawBytes[8:12])
	return mediaSsrc, true
}
