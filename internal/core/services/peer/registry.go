package peer

import "peercore/internal/core/domain"

// createTransport inserts a new Transport under transportId, rejecting if
// one already exists.
func (p *Peer) createTransport(id domain.ID, send RtcpSender, setDtls DtlsSetter) domain.Response {
	var resp domain.Response
	p.submit(func() {
		if _, exists := p.transports[id]; exists {
			resp = domain.Reject(domain.MsgTransportAlreadyExists)
			return
		}
		t := newTransport(id, p, send, setDtls)
		p.transports[id] = t
		resp = domain.Accept(t.dump())
	})
	return resp
}

// createProducer inserts a new Producer bound to an existing Transport,
// enforcing hasCapabilities. The presence of a kind is checked by
// HandleRequest before this is called.
func (p *Peer) createProducer(id domain.ID, transportID domain.ID, kind domain.MediaKind) domain.Response {
	var resp domain.Response
	p.submit(func() {
		if !p.hasCapabilities {
			resp = domain.Reject(domain.MsgCapabilitiesNotSet)
			return
		}
		if _, exists := p.producers[id]; exists {
			resp = domain.Reject(domain.MsgProducerAlreadyExists)
			return
		}
		t, ok := p.transports[transportID]
		if !ok {
			resp = domain.Reject(domain.MsgTransportNotFound)
			return
		}
		prod := newProducer(id, kind, p)
		p.producers[id] = prod
		prod.SetTransport(t)
		resp = domain.Accept(prod.dump())
	})
	return resp
}

// closeProducerLocked unbinds prod from its Transport and erases it from
// the registry. Callers on the run-loop (Producer.handleRequest's
// PRODUCER_CLOSE arm) call this directly rather than through p.submit,
// since they are already executing inside a submitted closure.
func (p *Peer) closeProducerLocked(id domain.ID, prod *Producer) {
	if prod.transport != nil {
		prod.transport.RemoveProducer(prod)
	}
	delete(p.producers, id)
	p.listener.OnPeerProducerClosed(p, id)
}

func (p *Peer) closeConsumerLocked(id domain.ID, cons *Consumer) {
	delete(p.consumers, id)
	p.invalidateSsrcCache()
	p.listener.OnPeerConsumerClosed(p, id)
}

// closeTransport implements OnTransportClosed: every Producer/Consumer
// bound to t is unbound first, then t is erased from the registry. The
// Transport's own destruction is driven by its external owner; the Peer
// only removes its reference, per §4.6.
func (p *Peer) closeTransport(id domain.ID) {
	p.submit(func() {
		p.closeTransportLocked(id)
	})
}

// closeTransportLocked is closeTransport's body without the submit wrapper,
// for callers already running on the run-loop (Transport.handleRequest's
// TRANSPORT_CLOSE arm, which is itself invoked from inside withTransport's
// submitted closure — re-submitting there would deadlock the one goroutine
// that could read it).
func (p *Peer) closeTransportLocked(id domain.ID) {
	t, ok := p.transports[id]
	if !ok {
		return
	}
	for _, prod := range p.producers {
		if prod.transport == t {
			prod.transport = nil
		}
	}
	for _, cons := range p.consumers {
		if cons.transport == t {
			cons.transport = nil
		}
	}
	delete(p.transports, id)
}

// onProducerParameters runs the codec/encoding/header-extension reduction
// against negotiated capabilities and, if the Producer is bound, registers
// it on its Transport's SSRC index.
func (p *Peer) onProducerParameters(id domain.ID) error {
	var retErr error
	p.submit(func() {
		prod, ok := p.producers[id]
		if !ok || p.capabilities == nil {
			return
		}
		prod.rtpParameters.ReduceCodecsAndEncodings(p.capabilities)
		prod.rtpParameters.ReduceHeaderExtensions(p.capabilities.HeaderExtensions)
		if prod.transport != nil {
			if err := prod.transport.AddProducer(prod); err != nil {
				retErr = err
			}
		}
	})
	return retErr
}

// onProducerParametersDone marks the Producer ready for RTP/RTCP processing
// and forwards the finalized parameters to the Listener.
func (p *Peer) onProducerParametersDone(id domain.ID) {
	p.submit(func() {
		prod, ok := p.producers[id]
		if !ok {
			return
		}
		prod.parametersDone = true
		p.listener.OnPeerProducerParameters(p, id, prod.rtpParameters)
	})
}

// OnRtpPacket forwards a parsed RTP payload from producerID to the
// Listener, once its parameters are finalized.
func (p *Peer) OnRtpPacket(producerID domain.ID, payload []byte) {
	p.submit(func() {
		if prod, ok := p.producers[producerID]; ok {
			prod.receiveRtpPacket(payload)
		}
	})
}

// OnTransportConnected requests a full frame for every video/depth Consumer
// bound to transportID, per §4.6. Exported so an external Transport
// collaborator can report connection establishment.
func (p *Peer) OnTransportConnected(transportID domain.ID) {
	p.submit(func() {
		if t, ok := p.transports[transportID]; ok {
			for _, c := range p.consumers {
				if c.transport == t && c.kind.IsVideoLike() {
					p.listener.OnFullFrameRequired(p, c.id)
				}
			}
		}
	})
}

// OnTransportClosed is the exported entry point for a Transport
// collaborator reporting its own closure.
func (p *Peer) OnTransportClosed(transportID domain.ID) {
	p.closeTransport(transportID)
}

// OnTransportFullFrameRequired is the exported entry point for a Transport
// collaborator requesting a full frame from every video/depth Producer
// bound to it.
func (p *Peer) OnTransportFullFrameRequired(transportID domain.ID) {
	p.submit(func() {
		if t, ok := p.transports[transportID]; ok {
			for _, prod := range p.producers {
				if prod.transport == t && prod.kind.IsVideoLike() {
					prod.RequestFullFrame()
				}
			}
		}
	})
}
