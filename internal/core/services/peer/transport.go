package peer

import (
	"context"
	"encoding/json"
	"time"

	"peercore/internal/core/domain"
	"peercore/pkg/circuitbreaker"
	"peercore/pkg/retry"
)

// RtcpSender hands a serialized compound RTCP packet to the network
// transport for transmission. The actual ICE/DTLS/SRTP wire path is an
// out-of-scope external collaborator; the Peer only needs this boundary.
type RtcpSender func(payload []byte) error

// DtlsSetter applies newly received remote DTLS parameters to the wire
// transport. Another out-of-scope external collaborator boundary.
type DtlsSetter func(domain.DtlsParameters) error

// Transport is owned by the Peer through its transports map. It keeps its
// own SSRC->Producer index, independent of the Peer's producers map, so
// that the RTCP receive pipeline can resolve a Sender Report's SSRC to a
// Producer without a linear scan across every Producer on the Peer.
type Transport struct {
	id   domain.ID
	peer *Peer

	hasRemb    bool
	maxBitrate uint32

	producersBySsrc map[uint32]*Producer

	send    RtcpSender
	setDtls DtlsSetter

	breaker   *circuitbreaker.CircuitBreaker
	retryCfg  retry.Config
}

func newTransport(id domain.ID, peer *Peer, send RtcpSender, setDtls DtlsSetter) *Transport {
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = 2
	retryCfg.InitialDelay = 20 * time.Millisecond
	retryCfg.MaxDelay = 100 * time.Millisecond

	return &Transport{
		id:              id,
		peer:            peer,
		producersBySsrc: make(map[uint32]*Producer),
		send:            send,
		setDtls:         setDtls,
		breaker:         circuitbreaker.New(circuitbreaker.DefaultConfig()),
		retryCfg:        retryCfg,
	}
}

// transmit hands data to the wire Transport, guarded by a per-Transport
// circuit breaker and a small bounded retry, so a flapping transport
// cannot stall the Peer's single-threaded run-loop indefinitely.
func (t *Transport) transmit(data []byte) error {
	if t.send == nil {
		return nil
	}
	return t.breaker.Execute(context.Background(), func() error {
		return retry.Retry(context.Background(), t.retryCfg, func() error {
			return t.send(data)
		})
	})
}

// AddProducer indexes p by each SSRC in its current RtpParameters,
// including FEC/RTX secondary SSRCs. Returns errTransportSsrcConflict,
// indexing nothing, if any of them is already bound to another Producer,
// matching the partial-failure contract PRODUCER_SET_TRANSPORT relies on.
func (t *Transport) AddProducer(p *Producer) error {
	conflicts := func(ssrc uint32) bool {
		existing, ok := t.producersBySsrc[ssrc]
		return ok && existing != p
	}
	for _, enc := range p.rtpParameters.Encodings {
		if conflicts(enc.Ssrc) ||
			(enc.Fec != nil && conflicts(enc.Fec.Ssrc)) ||
			(enc.Rtx != nil && conflicts(enc.Rtx.Ssrc)) {
			return errTransportSsrcConflict
		}
	}
	for _, enc := range p.rtpParameters.Encodings {
		t.producersBySsrc[enc.Ssrc] = p
		if enc.Fec != nil {
			t.producersBySsrc[enc.Fec.Ssrc] = p
		}
		if enc.Rtx != nil {
			t.producersBySsrc[enc.Rtx.Ssrc] = p
		}
	}
	return nil
}

// RemoveProducer erases every SSRC entry pointing at p.
func (t *Transport) RemoveProducer(p *Producer) {
	for ssrc, existing := range t.producersBySsrc {
		if existing == p {
			delete(t.producersBySsrc, ssrc)
		}
	}
}

// producerBySsrc resolves a Sender Report/SDES SSRC to the Producer
// delivering on this Transport, per §4.3 ("via the Transport that delivered
// the compound packet, NOT via GetConsumer").
func (t *Transport) producerBySsrc(ssrc uint32) *Producer {
	return t.producersBySsrc[ssrc]
}

func (t *Transport) dump() domain.TransportDump {
	d := domain.TransportDump{
		TransportID: t.id,
		HasRemb:     t.hasRemb,
		MaxBitrate:  t.maxBitrate,
	}
	seen := make(map[domain.ID]bool)
	for _, p := range t.producersBySsrc {
		if !seen[p.id] {
			seen[p.id] = true
			d.ProducerIDs = append(d.ProducerIDs, p.id)
		}
	}
	return d
}

// handleRequest answers the TRANSPORT_* method family delegated by the
// Request Router.
func (t *Transport) handleRequest(req domain.Request) domain.Response {
	switch req.Method {
	case domain.MethodTransportClose:
		t.peer.closeTransportLocked(t.id)
		return domain.Accept(nil)
	case domain.MethodTransportDump:
		return domain.Accept(t.dump())
	case domain.MethodTransportSetRemoteDtls:
		var params domain.DtlsParameters
		if err := json.Unmarshal(req.Data, &params); err != nil {
			return domain.Reject(err.Error())
		}
		if t.setDtls != nil {
			if err := t.setDtls(params); err != nil {
				return domain.Reject(err.Error())
			}
		}
		return domain.Accept(nil)
	case domain.MethodTransportSetMaxBitrate:
		var body struct {
			Bitrate uint32 `json:"bitrate"`
		}
		if err := json.Unmarshal(req.Data, &body); err != nil {
			return domain.Reject(err.Error())
		}
		t.maxBitrate = body.Bitrate
		return domain.Accept(nil)
	case domain.MethodTransportChangeUfragPwd:
		return domain.Accept(nil)
	default:
		return domain.Reject(domain.MsgUnknownMethod)
	}
}
