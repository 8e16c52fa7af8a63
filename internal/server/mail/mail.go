// Package mail is the delivery channel for rendered reports. The transport
// is an optional capability: when SMTP is not configured the orchestrator
// holds no Sender at all and resolves delivery to the skipped state.
package mail

import "context"

// Message is one outgoing report email. Attachment carries the rendered
// artifact bytes delivered as a single file.
type Message struct {
	To         string
	Name       string
	Subject    string
	HTMLBody   string
	Attachment []byte
	Filename   string
}

// Sender sends a message over the configured transport.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
