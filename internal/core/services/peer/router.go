package peer

import (
	"encoding/json"

	"peercore/internal/core/domain"
)

// HandleRequest classifies req by method and routes it to Peer-level
// logic, the addressed Transport, Producer, or Consumer, or rejects it.
func (p *Peer) HandleRequest(req domain.Request) domain.Response {
	switch req.Method {
	case domain.MethodPeerClose:
		p.Destroy()
		return domain.Accept(nil)

	case domain.MethodPeerDump:
		return domain.Accept(p.ToJson())

	case domain.MethodPeerSetCapabilities:
		return p.handleSetCapabilities(req)

	case domain.MethodPeerCreateTransport:
		if !req.Internal.HasTransportID {
			return domain.Reject(domain.MsgBadTransportID)
		}
		return p.createTransport(req.Internal.TransportID, nil, nil)

	case domain.MethodPeerCreateProducer:
		if !req.Internal.HasProducerID {
			return domain.Reject(domain.MsgBadProducerID)
		}
		if !req.Internal.HasTransportID {
			return domain.Reject(domain.MsgBadTransportID)
		}
		var body struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(req.Data, &body); err != nil || body.Kind == "" {
			return domain.Reject(domain.MsgMissingKind)
		}
		return p.createProducer(req.Internal.ProducerID, req.Internal.TransportID, domain.MediaKind(body.Kind))

	case domain.MethodTransportClose, domain.MethodTransportDump,
		domain.MethodTransportSetRemoteDtls, domain.MethodTransportSetMaxBitrate,
		domain.MethodTransportChangeUfragPwd:
		if !req.Internal.HasTransportID {
			return domain.Reject(domain.MsgBadTransportID)
		}
		return p.withTransport(req.Internal.TransportID, func(t *Transport) domain.Response {
			return t.handleRequest(req)
		})

	case domain.MethodProducerClose, domain.MethodProducerDump, domain.MethodProducerReceive,
		domain.MethodProducerSetRtpRawEvent, domain.MethodProducerSetRtpObjectEvent:
		if !req.Internal.HasProducerID {
			return domain.Reject(domain.MsgBadProducerID)
		}
		return p.withProducer(req.Internal.ProducerID, func(pr *Producer) domain.Response {
			return pr.handleRequest(req)
		})

	case domain.MethodProducerSetTransport:
		return p.handleProducerSetTransport(req)

	case domain.MethodConsumerDump, domain.MethodConsumerDisable:
		if !req.Internal.HasConsumerID {
			return domain.Reject(domain.MsgBadConsumerID)
		}
		return p.withConsumer(req.Internal.ConsumerID, func(c *Consumer) domain.Response {
			return c.handleRequest(req)
		})

	case domain.MethodConsumerSetTransport:
		return p.handleConsumerSetTransport(req)

	default:
		return domain.Reject(domain.MsgUnknownMethod)
	}
}

// HasCapabilities reports whether PEER_SET_CAPABILITIES has completed.
func (p *Peer) HasCapabilities() bool {
	var v bool
	p.submit(func() { v = p.hasCapabilities })
	return v
}

func (p *Peer) withTransport(id domain.ID, fn func(*Transport) domain.Response) domain.Response {
	var resp domain.Response
	p.submit(func() {
		t, ok := p.transports[id]
		if !ok {
			resp = domain.Reject(domain.MsgTransportNotFound)
			return
		}
		resp = fn(t)
	})
	return resp
}

func (p *Peer) withProducer(id domain.ID, fn func(*Producer) domain.Response) domain.Response {
	var resp domain.Response
	p.submit(func() {
		pr, ok := p.producers[id]
		if !ok {
			resp = domain.Reject(domain.MsgProducerNotFound)
			return
		}
		resp = fn(pr)
	})
	return resp
}

func (p *Peer) withConsumer(id domain.ID, fn func(*Consumer) domain.Response) domain.Response {
	var resp domain.Response
	p.submit(func() {
		c, ok := p.consumers[id]
		if !ok {
			resp = domain.Reject(domain.MsgConsumerNotFound)
			return
		}
		resp = fn(c)
	})
	return resp
}

// handleSetCapabilities parses data, sets it, and MUST wait for the
// Listener's intersection callback to complete before accepting — so that
// any "newconsumer" notifications fired during intersection reach the
// client first.
func (p *Peer) handleSetCapabilities(req domain.Request) domain.Response {
	var resp domain.Response
	p.submit(func() {
		if p.hasCapabilities {
			resp = domain.Reject(domain.MsgCapabilitiesAlreadySet)
			return
		}
		var caps domain.RtpCapabilities
		if err := json.Unmarshal(req.Data, &caps); err != nil {
			resp = domain.Reject(err.Error())
			return
		}
		p.capabilities = &caps
		p.listener.OnPeerCapabilities(p, p.capabilities)
		p.hasCapabilities = true
		resp = domain.Accept(p.capabilities)
	})
	return resp
}

// handleProducerSetTransport implements PRODUCER_SET_TRANSPORT, including
// the partial-failure contract: if AddProducer on the new Transport fails,
// the old binding is preserved, REMB carry-over and SetTransport are
// skipped, and the request is rejected.
func (p *Peer) handleProducerSetTransport(req domain.Request) domain.Response {
	var resp domain.Response
	p.submit(func() {
		if !req.Internal.HasProducerID {
			resp = domain.Reject(domain.MsgBadProducerID)
			return
		}
		if !req.Internal.HasTransportID {
			resp = domain.Reject(domain.MsgBadTransportID)
			return
		}
		prod, ok := p.producers[req.Internal.ProducerID]
		if !ok {
			resp = domain.Reject(domain.MsgProducerNotFound)
			return
		}
		newTransport, ok := p.transports[req.Internal.TransportID]
		if !ok {
			resp = domain.Reject(domain.MsgTransportNotFound)
			return
		}
		if err := newTransport.AddProducer(prod); err != nil {
			resp = domain.Reject(err.Error())
			return
		}
		oldTransport := prod.transport
		if oldTransport != nil {
			if oldTransport.hasRemb {
				newTransport.hasRemb = true
			}
			oldTransport.RemoveProducer(prod)
		}
		prod.SetTransport(newTransport)
		resp = domain.Accept(nil)
	})
	return resp
}

// handleConsumerSetTransport implements CONSUMER_SET_TRANSPORT.
func (p *Peer) handleConsumerSetTransport(req domain.Request) domain.Response {
	var resp domain.Response
	p.submit(func() {
		if !req.Internal.HasConsumerID {
			resp = domain.Reject(domain.MsgBadConsumerID)
			return
		}
		if !req.Internal.HasTransportID {
			resp = domain.Reject(domain.MsgBadTransportID)
			return
		}
		c, ok := p.consumers[req.Internal.ConsumerID]
		if !ok {
			resp = domain.Reject(domain.MsgConsumerNotFound)
			return
		}
		t, ok := p.transports[req.Internal.TransportID]
		if !ok {
			resp = domain.Reject(domain.MsgTransportNotFound)
			return
		}
		c.SetTransport(t)
		resp = domain.Accept(nil)
	})
	return resp
}
