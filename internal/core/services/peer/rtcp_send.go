package peer

import (
	"time"

	"github.com/pion/rtcp"
	"go.uber.org/zap"
)

// SendRtcp is the RTCP send pipeline (§4.4). For each owned Transport it
// assembles compound packets from the bound Consumers/Producers, flushing
// immediately whenever a Sender Report is present (to keep it paired with
// its SDES/BYE) and flushing any remaining Receiver-Report-only compound
// once at the end.
func (p *Peer) SendRtcp(now time.Time) {
	p.submit(func() {
		p.sendRtcpLocked(now)
	})
}

func (p *Peer) sendRtcpForTransport(t *Transport, now time.Time) {
	var compound []rtcp.Packet

	for _, c := range p.consumers {
		c.getRtcp(&compound, t, now)
		if hasSenderReport(compound) {
			p.flush(t, compound)
			compound = nil
		}
	}

	for _, prod := range p.producers {
		prod.getRtcp(&compound, t)
	}

	if hasReceiverReport(compound) {
		p.flush(t, compound)
	}
}

func hasSenderReport(packets []rtcp.Packet) bool {
	for _, pkt := range packets {
		if _, ok := pkt.(*rtcp.SenderReport); ok {
			return true
		}
	}
	return false
}

func hasReceiverReport(packets []rtcp.Packet) bool {
	for _, pkt := range packets {
		if _, ok := pkt.(*rtcp.ReceiverReport); ok {
			return true
		}
	}
	return false
}

// flush serializes compound into the Peer's shared (single-threaded-safe)
// RTCP buffer and hands it to the Transport, dropping with a warning if it
// would exceed RtcpBufferSize.
func (p *Peer) flush(t *Transport, compound []rtcp.Packet) {
	if len(compound) == 0 {
		return
	}

	buf := p.bufferPool.Get()
	defer p.bufferPool.Put(buf)

	data, err := rtcp.Marshal(compound)
	if err != nil {
		p.log.Warn("failed to serialize rtcp compound packet", zap.Error(err))
		return
	}
	if len(data) > p.cfg.RtcpBufferSize {
		p.log.Warn("compound rtcp packet exceeds buffer size, dropping",
			zap.Int("size", len(data)), zap.Int("limit", p.cfg.RtcpBufferSize))
		return
	}
	if err := t.transmit(data); err != nil {
		p.log.Warn("failed to send rtcp compound packet", zap.Error(err))
	}
}
