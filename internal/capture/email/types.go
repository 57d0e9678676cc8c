package email

import "time"

// Envelope holds the header-level data of a mailbox message.
type Envelope struct {
	UID       uint32
	MessageID string
	Subject   string
	From      string
	Date      time.Time
	Flags     []string
}

// Message is an envelope plus the extracted plain-text body.
type Message struct {
	Envelope
	TextBody string
}
