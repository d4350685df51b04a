package domain

import "encoding/json"

// Method identifies a control-channel request by name. The Request Router
// dispatches on this value exactly as listed in the method table.
type Method string

const (
	MethodPeerClose             Method = "peer.close"
	MethodPeerDump              Method = "peer.dump"
	MethodPeerSetCapabilities   Method = "peer.setCapabilities"
	MethodPeerCreateTransport   Method = "peer.createTransport"
	MethodPeerCreateProducer    Method = "peer.createProducer"
	MethodTransportClose        Method = "transport.close"
	MethodTransportDump         Method = "transport.dump"
	MethodTransportSetRemoteDtls Method = "transport.setRemoteDtlsParameters"
	MethodTransportSetMaxBitrate Method = "transport.setMaxBitrate"
	MethodTransportChangeUfragPwd Method = "transport.changeUfragPwd"
	MethodProducerClose         Method = "producer.close"
	MethodProducerDump          Method = "producer.dump"
	MethodProducerReceive       Method = "producer.receive"
	MethodProducerSetRtpRawEvent    Method = "producer.setRtpRawEvent"
	MethodProducerSetRtpObjectEvent Method = "producer.setRtpObjectEvent"
	MethodProducerSetTransport  Method = "producer.setTransport"
	MethodConsumerDump          Method = "consumer.dump"
	MethodConsumerDisable       Method = "consumer.disable"
	MethodConsumerSetTransport  Method = "consumer.setTransport"
)

// RequestInternal carries the numeric ids a request targets. Any id left at
// its zero value with the corresponding Has* flag false is treated as
// absent ("Request has not numeric internal.X"). UnmarshalJSON is what
// actually sets a Has* flag: a missing key and a wrong-typed value (e.g. a
// quoted string where the wire format requires a JSON number) both leave it
// absent, matching the single stable rejection message either way.
type RequestInternal struct {
	TransportID    ID
	HasTransportID bool
	ProducerID     ID
	HasProducerID  bool
	ConsumerID     ID
	HasConsumerID  bool
}

func (ri *RequestInternal) UnmarshalJSON(data []byte) error {
	*ri = RequestInternal{}
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if id, ok := numericInternalField(raw, "transportId"); ok {
		ri.TransportID, ri.HasTransportID = id, true
	}
	if id, ok := numericInternalField(raw, "producerId"); ok {
		ri.ProducerID, ri.HasProducerID = id, true
	}
	if id, ok := numericInternalField(raw, "consumerId"); ok {
		ri.ConsumerID, ri.HasConsumerID = id, true
	}
	return nil
}

// numericInternalField reports the id carried by raw[key], but only if that
// key is present and holds a JSON number literal — a quoted string is
// rejected exactly like a missing key.
func numericInternalField(raw map[string]json.RawMessage, key string) (ID, bool) {
	v, ok := raw[key]
	if !ok {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, false
	}
	return ID(n), true
}

// Request is one control-channel request dispatched to HandleRequest, wired
// to the control channel's methodId/internal/data envelope.
type Request struct {
	Method   Method          `json:"methodId"`
	Internal RequestInternal `json:"internal"`
	Data     json.RawMessage `json:"data"`
}

// Response is either an Accept(payload) or a Reject(reason); exactly one of
// Payload/Reason is meaningful, discriminated by Ok.
type Response struct {
	Ok      bool
	Payload any
	Reason  string
}

func Accept(payload any) Response { return Response{Ok: true, Payload: payload} }
func Reject(reason string) Response { return Response{Ok: false, Reason: reason} }

// Notification is emitted by the Peer targeting its own peerId, independent
// of any in-flight request/response.
type Notification struct {
	PeerID ID     `json:"-"`
	Event  string `json:"event"`
	Data   any    `json:"data"`
}

// PeerDump is the ToJson shape for PEER_DUMP.
type PeerDump struct {
	PeerID       ID               `json:"peerId"`
	PeerName     string           `json:"peerName"`
	Capabilities *RtpCapabilities `json:"capabilities,omitempty"`
	Transports   []TransportDump  `json:"transports"`
	Producers    []ProducerDump   `json:"producers"`
	Consumers    []ConsumerDump   `json:"consumers"`
}

// ProducerDump is the ToJson shape of a Producer.
type ProducerDump struct {
	ProducerID    ID            `json:"producerId"`
	Kind          MediaKind     `json:"kind"`
	RtpParameters RtpParameters `json:"rtpParameters"`
	TransportID   ID            `json:"transportId,omitempty"`
	HasTransport  bool          `json:"-"`
}

// ConsumerDump is the ToJson shape of a Consumer, and the base of the
// "newconsumer" notification payload.
type ConsumerDump struct {
	ConsumerID           ID            `json:"consumerId"`
	Kind                 MediaKind     `json:"kind"`
	RtpParameters        RtpParameters `json:"rtpParameters"`
	Active               bool          `json:"active"`
	AssociatedProducerID ID            `json:"associatedProducerId"`
	TransportID          ID            `json:"transportId,omitempty"`
	HasTransport         bool          `json:"-"`
}
