package domain

import "github.com/pion/webrtc/v3"

// DtlsParameters and IceParameters reuse pion/webrtc/v3's exported value
// types rather than redefining ICE/DTLS wire structures: the network
// Transport's ICE/DTLS/SRTP internals are an out-of-scope external
// collaborator, but the control-channel payloads that carry their
// negotiated parameters still need a concrete Go type.
type DtlsParameters = webrtc.DTLSParameters
type DtlsFingerprint = webrtc.DTLSFingerprint
type IceParameters = webrtc.ICEParameters

// TransportDump is the ToJson shape of a Transport, returned by
// TRANSPORT_DUMP and embedded in PEER_DUMP.
type TransportDump struct {
	TransportID ID       `json:"transportId"`
	HasRemb     bool     `json:"hasRemb"`
	ProducerIDs []ID     `json:"producerIds"`
	MaxBitrate  uint32   `json:"maxBitrate,omitempty"`
}
