package peer

import "time"

// onTimer implements the adaptive RTCP scheduler (§4.5). It runs on the
// Peer's own run-loop goroutine — it is one of the three entry points
// (alongside submitted closures and inbound RTCP) serialized by run().
func (p *Peer) onTimer() {
	now := time.Now()
	p.sendRtcpLocked(now)

	interval := p.cfg.MaxVideoIntervalMs
	if len(p.consumers) > 0 {
		var rateKbps float64
		for _, c := range p.consumers {
			rateKbps += c.GetTransmissionRate(now) / 1000
		}
		if rateKbps > 0 {
			computed := int(360000 / rateKbps)
			if computed < interval {
				interval = computed
			}
		}
	}

	p.timer.Reset(jitter(interval))
}

// sendRtcpLocked is SendRtcp's body without the submit wrapper, since
// onTimer already runs on the run-loop.
func (p *Peer) sendRtcpLocked(now time.Time) {
	for _, t := range p.transports {
		p.sendRtcpForTransport(t, now)
	}
}
