package entity

import "strings"

// Protocol defines the transport used to reach a node.
type Protocol string

// Constants for known protocols.
const (
	ProtocolHTTP    Protocol = "http"
	ProtocolHTTPS   Protocol = "https"
	ProtocolWS      Protocol = "ws"
	ProtocolWSS     Protocol = "wss"
	ProtocolUnknown Protocol = "unknown"
)

// ProtocolOf maps a URL scheme onto a Protocol.
func ProtocolOf(scheme string) Protocol {
	switch strings.ToLower(scheme) {
	case "http":
		return ProtocolHTTP
	case "https":
		return ProtocolHTTPS
	case "ws":
		return ProtocolWS
	case "wss":
		return ProtocolWSS
	default:
		return ProtocolUnknown
	}
}

// IsStream reports whether the protocol keeps a websocket session open.
func (p Protocol) IsStream() bool {
	return p == ProtocolWS || p == ProtocolWSS
}
