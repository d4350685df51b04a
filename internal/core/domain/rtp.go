package domain

// RtpCodecCapability describes one codec a room/Listener is willing to
// accept, prior to being matched against a Producer's offered parameters.
// Field names follow the mediasoup-derived wire convention (camelCase JSON).
type RtpCodecCapability struct {
	Kind                 MediaKind         `json:"kind"`
	MimeType             string            `json:"mimeType"`
	PreferredPayloadType uint8             `json:"preferredPayloadType,omitempty"`
	ClockRate            uint32            `json:"clockRate"`
	Channels             uint8             `json:"channels,omitempty"`
	Parameters           map[string]any    `json:"parameters,omitempty"`
	RtcpFeedback         []RtcpFeedback    `json:"rtcpFeedback,omitempty"`
}

// RtpHeaderExtension describes one header extension a room/Listener supports.
type RtpHeaderExtension struct {
	Kind        MediaKind `json:"kind"`
	URI         string    `json:"uri"`
	PreferredID uint16    `json:"preferredId"`
}

// RtpCapabilities is the one-shot capability declaration exchanged via
// PEER_SET_CAPABILITIES, then intersected in-place by the Listener.
type RtpCapabilities struct {
	Codecs           []RtpCodecCapability `json:"codecs"`
	HeaderExtensions []RtpHeaderExtension `json:"headerExtensions,omitempty"`
}

// RtcpFeedback names one rtcp-fb entry ("nack", "nack pli", "ccm fir", "goog-remb", ...).
type RtcpFeedback struct {
	Type      string `json:"type"`
	Parameter string `json:"parameter,omitempty"`
}

// RtpCodecParameters is the negotiated codec carried on a Producer/Consumer's
// RtpParameters, as opposed to the room-wide RtpCodecCapability.
type RtpCodecParameters struct {
	MimeType     string         `json:"mimeType"`
	PayloadType  uint8          `json:"payloadType"`
	ClockRate    uint32         `json:"clockRate"`
	Channels     uint8          `json:"channels,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	RtcpFeedback []RtcpFeedback `json:"rtcpFeedback,omitempty"`
}

// RtxParameters carries the retransmission SSRC for an encoding, if any.
type RtxParameters struct {
	Ssrc uint32 `json:"ssrc"`
}

// RtpFecParameters carries the forward-error-correction SSRC for an
// encoding, if any.
type RtpFecParameters struct {
	Ssrc      uint32 `json:"ssrc"`
	Mechanism string `json:"mechanism,omitempty"`
}

// RtpEncodingParameters describes one simulcast/FEC/RTX layer of a stream.
// GetConsumer's SSRC resolution matches against Ssrc, Fec.Ssrc and Rtx.Ssrc.
type RtpEncodingParameters struct {
	Ssrc            uint32            `json:"ssrc"`
	Rtx             *RtxParameters    `json:"rtx,omitempty"`
	Fec             *RtpFecParameters `json:"fec,omitempty"`
	MaxBitrate      uint32            `json:"maxBitrate,omitempty"`
	CodecPayloadType uint8            `json:"codecPayloadType,omitempty"`
}

// RtpHeaderExtensionParameters is the negotiated header extension carried on
// a Producer/Consumer's RtpParameters.
type RtpHeaderExtensionParameters struct {
	URI        string         `json:"uri"`
	ID         uint16         `json:"id"`
	Encrypt    bool           `json:"encrypt,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// RtpParameters is the mutable parameter set carried by a Producer or
// Consumer. ReduceCodecsAndEncodings/ReduceHeaderExtensions trim it in place
// against negotiated RtpCapabilities.
type RtpParameters struct {
	Mid              string                         `json:"mid,omitempty"`
	Codecs           []RtpCodecParameters           `json:"codecs"`
	HeaderExtensions []RtpHeaderExtensionParameters `json:"headerExtensions,omitempty"`
	Encodings        []RtpEncodingParameters        `json:"encodings,omitempty"`
	Rtcp             *RtcpParameters                `json:"rtcp,omitempty"`
}

// RtcpParameters carries the CNAME/reduced-size negotiation for a stream.
type RtcpParameters struct {
	Cname       string `json:"cname,omitempty"`
	ReducedSize bool   `json:"reducedSize,omitempty"`
}

// HasSsrc reports whether any encoding (including its FEC/RTX secondary
// SSRCs) matches ssrc. Mirrors the match predicate used by GetConsumer.
func (p *RtpParameters) HasSsrc(ssrc uint32) bool {
	for _, enc := range p.Encodings {
		if enc.Ssrc == ssrc {
			return true
		}
		if enc.Fec != nil && enc.Fec.Ssrc == ssrc {
			return true
		}
		if enc.Rtx != nil && enc.Rtx.Ssrc == ssrc {
			return true
		}
	}
	return false
}

// ReduceCodecsAndEncodings removes codecs (and the encodings that reference
// them) not present in caps, matching by MimeType+ClockRate+Channels. Order
// of remaining codecs/encodings is preserved. Called before
// ReduceHeaderExtensions, per the OnProducerParameters sequencing.
func (p *RtpParameters) ReduceCodecsAndEncodings(caps *RtpCapabilities) {
	allowed := make(map[uint8]bool, len(p.Codecs))
	kept := p.Codecs[:0:0]
	for _, c := range p.Codecs {
		if codecSupported(caps, c) {
			kept = append(kept, c)
			allowed[c.PayloadType] = true
		}
	}
	p.Codecs = kept

	keptEnc := p.Encodings[:0:0]
	for _, e := range p.Encodings {
		if e.CodecPayloadType == 0 || allowed[e.CodecPayloadType] {
			keptEnc = append(keptEnc, e)
		}
	}
	p.Encodings = keptEnc
}

func codecSupported(caps *RtpCapabilities, c RtpCodecParameters) bool {
	for _, cap := range caps.Codecs {
		if cap.MimeType == c.MimeType && cap.ClockRate == c.ClockRate && cap.Channels == c.Channels {
			return true
		}
	}
	return false
}

// ReduceHeaderExtensions removes header extensions not present in exts,
// matching by URI.
func (p *RtpParameters) ReduceHeaderExtensions(exts []RtpHeaderExtension) {
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed[e.URI] = true
	}
	kept := p.HeaderExtensions[:0:0]
	for _, h := range p.HeaderExtensions {
		if allowed[h.URI] {
			kept = append(kept, h)
		}
	}
	p.HeaderExtensions = kept
}
