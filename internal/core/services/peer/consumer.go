package peer

import (
	"time"

	"github.com/pion/rtcp"
	"go.uber.org/zap"

	"peercore/internal/core/domain"
)

// Consumer is a local forwarded stream destined to the Peer's participant.
type Consumer struct {
	id   domain.ID
	peer *Peer

	kind                  domain.MediaKind
	rtpParameters         domain.RtpParameters
	active                bool
	transport             *Transport
	peerCapabilities      *domain.RtpCapabilities
	associatedProducerID  domain.ID

	lastRateSampleAt time.Time
	bytesSinceSample uint64
}

func newConsumer(id domain.ID, kind domain.MediaKind, peer *Peer) *Consumer {
	return &Consumer{id: id, kind: kind, peer: peer, active: true}
}

// NewConsumer constructs a Consumer ready to be passed to Peer.AddConsumer.
// Construction does not register it on the Peer; AddConsumer does that.
func NewConsumer(id domain.ID, kind domain.MediaKind, p *Peer) *Consumer {
	return newConsumer(id, kind, p)
}

func (c *Consumer) dump() domain.ConsumerDump {
	d := domain.ConsumerDump{
		ConsumerID:           c.id,
		Kind:                 c.kind,
		RtpParameters:        c.rtpParameters,
		Active:                c.active,
		AssociatedProducerID: c.associatedProducerID,
	}
	if c.transport != nil {
		d.TransportID = c.transport.id
		d.HasTransport = true
	}
	return d
}

// send is invoked by AddConsumer to make the Consumer start forwarding with
// the given parameters.
func (c *Consumer) send(rtpParameters domain.RtpParameters) {
	c.rtpParameters = rtpParameters
	c.active = true
}

func (c *Consumer) SetTransport(t *Transport) {
	c.transport = t
}

// ReceiveNack handles an RTPFB/NACK targeting this Consumer. Retransmission
// scheduling is a wire-layer concern (out of scope); the Peer's job is
// purely to route the packet here.
func (c *Consumer) ReceiveNack(pkt *rtcp.TransportLayerNack) {
	c.peer.log.Debug("nack received", zap.Uint32("consumerId", uint32(c.id)))
}

// getRtcp appends this Consumer's Sender Report contribution if it is
// active and bound to transport.
func (c *Consumer) getRtcp(packets *[]rtcp.Packet, transport *Transport, now time.Time) {
	if c.transport != transport || !c.active || len(c.rtpParameters.Encodings) == 0 {
		return
	}
	ntp, rtpTs := ntpAndRtpTimestamp(now)
	*packets = append(*packets, &rtcp.SenderReport{
		SSRC:        c.rtpParameters.Encodings[0].Ssrc,
		NTPTime:     ntp,
		RTPTime:     rtpTs,
		PacketCount: 0,
		OctetCount:  0,
	})
}

// GetTransmissionRate returns this Consumer's contribution in bits/sec for
// the scheduler's aggregate-rate computation. Actual byte accounting is a
// wire-layer responsibility; a Transport collaborator feeds real counts in
// via RecordBytesSent.
func (c *Consumer) GetTransmissionRate(now time.Time) float64 {
	if c.lastRateSampleAt.IsZero() {
		c.lastRateSampleAt = now
		return 0
	}
	elapsed := now.Sub(c.lastRateSampleAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	rate := float64(c.bytesSinceSample) * 8 / elapsed
	c.bytesSinceSample = 0
	c.lastRateSampleAt = now
	return rate
}

// RecordBytesSent lets the Transport collaborator report actual wire
// traffic for this Consumer, consumed by GetTransmissionRate.
func (c *Consumer) RecordBytesSent(n uint64) {
	c.bytesSinceSample += n
}

func (c *Consumer) handleRequest(req domain.Request) domain.Response {
	switch req.Method {
	case domain.MethodConsumerDump:
		return domain.Accept(c.dump())
	case domain.MethodConsumerDisable:
		c.active = false
		return domain.Accept(nil)
	default:
		return domain.Reject(domain.MsgUnknownMethod)
	}
}

// ntpAndRtpTimestamp derives an NTP64 timestamp and a millisecond-based RTP
// timestamp from now. A real implementation ties rtpTs to the codec clock
// rate and an epoch sampled at stream start; this suffices as the
// structural contribution the send pipeline assembles.
func ntpAndRtpTimestamp(now time.Time) (uint64, uint32) {
	const ntpEpochOffset = 2208988800
	secs := uint64(now.Unix()) + ntpEpochOffset
	frac := uint64(now.Nanosecond()) * (1 << 32) / 1e9
	ntp := secs<<32 | frac
	rtpTs := uint32(now.UnixMilli())
	return ntp, rtpTs
}
