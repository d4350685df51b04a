package domain

import "errors"

// Stable request-rejection strings. Part of the control-channel contract;
// never wrap or reword these.
const (
	MsgCapabilitiesAlreadySet = "peer capabilities already set"
	MsgCapabilitiesNotSet     = "peer capabilities are not yet set"
	MsgTransportAlreadyExists = "Transport already exists"
	MsgTransportNotFound      = "Transport does not exist"
	MsgProducerAlreadyExists  = "Producer already exists"
	MsgProducerNotFound       = "Producer does not exist"
	MsgConsumerNotFound       = "Consumer does not exist"
	MsgMissingKind            = "missing kind"
	MsgBadTransportID         = "Request has not numeric internal.transportId"
	MsgBadProducerID          = "Request has not numeric internal.producerId"
	MsgBadConsumerID          = "Request has not numeric internal.consumerId"
	MsgUnknownMethod          = "unknown method"
)

var (
	ErrStreamNotFound      = errors.New("stream not found")
	ErrPeerNotFound        = errors.New("peer not found")
	ErrTrackNotFound       = errors.New("track not found")
	ErrConnectionFailed    = errors.New("connection failed")
	ErrInsufficientQuality = errors.New("insufficient quality")
	ErrPeerCapacityReached = errors.New("peer capacity reached")
)
