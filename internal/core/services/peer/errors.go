package peer

import "errors"

var errTransportSsrcConflict = errors.New("ssrc already bound on transport")
