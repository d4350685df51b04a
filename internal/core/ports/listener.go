// Package ports declares the collaborator boundaries a Peer invokes and is
// invoked through, kept free of any concrete transport/storage dependency.
package ports

import (
	"github.com/pion/rtcp"

	"peercore/internal/core/domain"
)

// Listener is the Room-level collaborator a Peer reports upward to. The
// Peer does not own it; it must outlive the Peer.
type Listener interface {
	OnPeerClosed(peer PeerHandle)

	// OnPeerCapabilities intersects caps with room-wide capabilities,
	// mutating it in place. PEER_SET_CAPABILITIES does not accept until
	// this returns, so any newconsumer notifications it triggers reach
	// the client first.
	OnPeerCapabilities(peer PeerHandle, caps *domain.RtpCapabilities)

	OnPeerProducerParameters(peer PeerHandle, producerID domain.ID, params domain.RtpParameters)
	OnPeerProducerClosed(peer PeerHandle, producerID domain.ID)
	OnPeerConsumerClosed(peer PeerHandle, consumerID domain.ID)

	OnPeerRtpPacket(peer PeerHandle, producerID domain.ID, payload []byte)
	OnPeerRtcpReceiverReport(peer PeerHandle, consumerID domain.ID, report rtcp.ReceptionReport)
	OnPeerRtcpSenderReport(peer PeerHandle, producerID domain.ID, report *rtcp.SenderReport)
	OnPeerRtcpFeedback(peer PeerHandle, consumerID domain.ID, pkt rtcp.Packet)
	OnFullFrameRequired(peer PeerHandle, consumerID domain.ID)
}

// PeerHandle is the minimal identity a Listener needs back from callbacks;
// it deliberately does not expose the Peer's registries.
type PeerHandle interface {
	ID() domain.ID
	Name() string
}

// Notifier is the control-plane event sink a Peer emits notifications
// through (the "close"/"newconsumer" events of §6).
type Notifier interface {
	Notify(peerID domain.ID, n domain.Notification)
}
