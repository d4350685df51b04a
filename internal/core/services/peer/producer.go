package peer

import (
	"encoding/json"

	"github.com/pion/rtcp"
	"go.uber.org/zap"

	"peercore/internal/core/domain"
)

// Producer is a remote media source bound to the Peer. Its RtpParameters
// are only usable for RTP/RTCP processing once parametersDone is set by
// OnProducerParametersDone, per the data-model invariant in §3.
type Producer struct {
	id   domain.ID
	peer *Peer

	kind          domain.MediaKind
	rtpParameters domain.RtpParameters
	transport     *Transport

	parametersDone bool
	rawRtpEvent    bool
	objectRtpEvent bool
}

func newProducer(id domain.ID, kind domain.MediaKind, peer *Peer) *Producer {
	return &Producer{id: id, kind: kind, peer: peer}
}

func (p *Producer) dump() domain.ProducerDump {
	d := domain.ProducerDump{
		ProducerID:    p.id,
		Kind:          p.kind,
		RtpParameters: p.rtpParameters,
	}
	if p.transport != nil {
		d.TransportID = p.transport.id
		d.HasTransport = true
	}
	return d
}

// SetTransport rebinds the Producer to t. It does not update any
// Transport's SSRC index: the callers (Request Router /
// onProducerParameters) do that through Transport.AddProducer and
// Transport.RemoveProducer.
func (p *Producer) SetTransport(t *Transport) {
	p.transport = t
}

// RequestFullFrame forwards an upstream IDR request, triggered when its
// bound Transport reports OnTransportFullFrameRequired for a video/depth
// kind.
func (p *Producer) RequestFullFrame() {
	p.peer.log.Debug("full frame requested", zap.Uint32("producerId", uint32(p.id)))
}

// receiveRtpPacket forwards a parsed RTP payload to the Listener, but only
// once parameters are finalized, per the data-model invariant.
func (p *Producer) receiveRtpPacket(payload []byte) {
	if !p.parametersDone {
		return
	}
	p.peer.listener.OnPeerRtpPacket(p.peer, p.id, payload)
}

// getRtcp appends this Producer's Receiver Report contribution to packets
// if it is bound to transport. Loss/jitter computation is the wire layer's
// job (out of scope here); the contribution reports the SSRCs we track.
func (p *Producer) getRtcp(packets *[]rtcp.Packet, transport *Transport) {
	if p.transport != transport || len(p.rtpParameters.Encodings) == 0 {
		return
	}
	reports := make([]rtcp.ReceptionReport, 0, len(p.rtpParameters.Encodings))
	for _, enc := range p.rtpParameters.Encodings {
		reports = append(reports, rtcp.ReceptionReport{SSRC: enc.Ssrc})
	}
	*packets = append(*packets, &rtcp.ReceiverReport{Reports: reports})
}

func (p *Producer) handleRequest(req domain.Request) domain.Response {
	switch req.Method {
	case domain.MethodProducerClose:
		p.peer.closeProducerLocked(p.id, p)
		return domain.Accept(nil)
	case domain.MethodProducerDump:
		return domain.Accept(p.dump())
	case domain.MethodProducerReceive:
		return domain.Accept(nil)
	case domain.MethodProducerSetRtpRawEvent:
		var body struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.Unmarshal(req.Data, &body); err != nil {
			return domain.Reject(err.Error())
		}
		p.rawRtpEvent = body.Enabled
		return domain.Accept(nil)
	case domain.MethodProducerSetRtpObjectEvent:
		var body struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.Unmarshal(req.Data, &body); err != nil {
			return domain.Reject(err.Error())
		}
		p.objectRtpEvent = body.Enabled
		return domain.Accept(nil)
	default:
		return domain.Reject(domain.MsgUnknownMethod)
	}
}
