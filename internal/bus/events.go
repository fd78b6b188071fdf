package bus

import "time"

// InboundMessage is one user event delivered by a chat transport.
type InboundMessage struct {
	UserID      string
	DisplayName string
	Content     string
	Timestamp   time.Time
}

// OutboundMessage is one reply or proactive message to deliver.
type OutboundMessage struct {
	UserID  string
	Content string
}
