package signal

import (
	"sync"

	"github.com/pion/rtcp"
	"go.uber.org/zap"

	"peercore/internal/core/domain"
	"peercore/internal/core/ports"
)

// Router is the Room-level collaborator every Peer reports upward to. It
// tracks which Peers are currently attached to this SFU instance and fans
// out "newproducer"/"peerclosed" notifications between them, exactly the
// cross-peer orchestration spec.md places outside the Peer itself. It does
// not touch Transport/Producer/Consumer state — assigning a Consumer to a
// remote Producer remains a signaling decision the client drives by issuing
// its own PEER_CREATE_TRANSPORT/CONSUMER_SET_TRANSPORT requests after
// receiving "newproducer".
type Router struct {
	mu       sync.RWMutex
	peers    map[domain.ID]ports.PeerHandle
	notifier ports.Notifier
	log      *zap.SugaredLogger
}

func NewRouter(notifier ports.Notifier, log *zap.Logger) *Router {
	return &Router{
		peers:    make(map[domain.ID]ports.PeerHandle),
		notifier: notifier,
		log:      log.Sugar(),
	}
}

// SetNotifier binds the Notifier used for fan-out, for callers that must
// construct the Router before its Notifier exists (e.g. the Server is
// itself the Notifier and needs the Router at construction time).
func (r *Router) SetNotifier(notifier ports.Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifier = notifier
}

func (r *Router) AddPeer(p ports.PeerHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p.ID()] = p
}

func (r *Router) RemovePeer(id domain.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
}

func (r *Router) broadcastExcept(from domain.ID, event string, data any) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id := range r.peers {
		if id == from {
			continue
		}
		r.notifier.Notify(id, domain.Notification{Event: event, Data: data})
	}
}

func (r *Router) OnPeerClosed(p ports.PeerHandle) {
	r.RemovePeer(p.ID())
	r.broadcastExcept(p.ID(), "peerclosed", map[string]any{"peerId": p.ID()})
}

// OnPeerCapabilities intersects caps against nothing room-wide yet (a
// single-instance room has no other capability set to merge against); it
// exists as the hook a multi-peer capability negotiation would extend.
func (r *Router) OnPeerCapabilities(p ports.PeerHandle, caps *domain.RtpCapabilities) {
	r.log.Debugw("peer set capabilities", "peerId", p.ID(), "codecs", len(caps.Codecs))
}

func (r *Router) OnPeerProducerParameters(p ports.PeerHandle, producerID domain.ID, params domain.RtpParameters) {
	r.broadcastExcept(p.ID(), "newproducer", map[string]any{
		"peerId":     p.ID(),
		"producerId": producerID,
	})
}

func (r *Router) OnPeerProducerClosed(p ports.PeerHandle, producerID domain.ID) {
	r.broadcastExcept(p.ID(), "producerclosed", map[string]any{
		"peerId":     p.ID(),
		"producerId": producerID,
	})
}

func (r *Router) OnPeerConsumerClosed(p ports.PeerHandle, consumerID domain.ID) {
	// Consumer lifecycle is local to the owning Peer's client; no fan-out.
}

// The RTP/RTCP hot-path callbacks below are intentionally no-ops at the
// Room level: forwarding payload bytes between Transports is the media
// plane's job (the out-of-scope UDP/ICE boundary), not the control-channel
// Router's.
func (r *Router) OnPeerRtpPacket(ports.PeerHandle, domain.ID, []byte)                    {}
func (r *Router) OnPeerRtcpReceiverReport(ports.PeerHandle, domain.ID, rtcp.ReceptionReport) {}
func (r *Router) OnPeerRtcpSenderReport(ports.PeerHandle, domain.ID, *rtcp.SenderReport) {}
func (r *Router) OnPeerRtcpFeedback(ports.PeerHandle, domain.ID, rtcp.Packet)            {}
func (r *Router) OnFullFrameRequired(ports.PeerHandle, domain.ID)                        {}
