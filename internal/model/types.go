package model

import (
	"encoding/json"
	"time"
)

// -----------------------------------------------------------------------------
// Wire Types
// -----------------------------------------------------------------------------

// Envelope is one inbound message from the gateway.
type Envelope struct {
	Type             string          `json:"Type"`                       // Composite topic, e.g. "Books#Book#Update"
	Data             json.RawMessage `json:"Data,omitempty"`             // Business payload, never interpreted
	ExcludedDeviceID string          `json:"ExcludedDeviceID,omitempty"` // Device that must ignore this echo
	Error            *ErrorInfo      `json:"Error,omitempty"`            // Present on error envelopes
}

// ErrorInfo describes a server-reported error carried by an Envelope.
type ErrorInfo struct {
	Type          string `json:"Type"`                    // e.g. "TokenExpiredException"
	Message       string `json:"Message"`                 // Human readable reason
	CorrelationID string `json:"CorrelationID,omitempty"` // Server-side correlation id
}

// WireRequest is an outbound request sent over the live channel.
type WireRequest struct {
	ServiceName string            `json:"ServiceName"`
	ObjectName  string            `json:"ObjectName"`
	Verb        string            `json:"Verb"`
	Query       map[string]string `json:"Query,omitempty"`
	Header      map[string]string `json:"Header,omitempty"`
	Body        json.RawMessage   `json:"Body,omitempty"`
	Extra       map[string]string `json:"Extra,omitempty"`
}

// -----------------------------------------------------------------------------
// Decoded Types
// -----------------------------------------------------------------------------

// TopicKey is a parsed composite topic. Object and Event are empty when absent.
type TopicKey struct {
	Service string
	Object  string
	Event   string
}

// ServiceScope returns the service-level scope key.
func (k TopicKey) ServiceScope() string {
	return k.Service
}

// ObjectScope returns the "Service#Object" scope key.
func (k TopicKey) ObjectScope() string {
	return k.Service + "#" + k.Object
}

// Kind tags a decoded message with the built-in topic it belongs to.
type Kind int

const (
	KindApplication   Kind = iota // Routed to subscribers
	KindHeartbeat                 // Pong, Knock
	KindSchedulerTick             // OnlineStatus
	KindError                     // Error topic or envelope carrying Error
)

// String returns the kind name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindHeartbeat:
		return "heartbeat"
	case KindSchedulerTick:
		return "scheduler_tick"
	case KindError:
		return "error"
	default:
		return "application"
	}
}

// Message is an Envelope decoded at the dispatcher boundary.
type Message struct {
	Kind             Kind
	Topic            string
	Key              TopicKey
	Data             json.RawMessage
	ExcludedDeviceID string
	Error            *ErrorInfo
	ReceivedAt       time.Time
}
