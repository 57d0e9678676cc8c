// Package email captures flagged mailbox messages as inbox tasks:
// flag a message in any mail client and it shows up as a task on the
// next poll.
package email

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
)

// capturedKeyword marks messages that already produced a task, so a
// repoll never captures the same message twice.
const capturedKeyword = imap.Flag("$TaskdeckCaptured")

// lookback bounds how far back the flagged-message search reaches.
const lookback = 30 * 24 * time.Hour

// Client wraps go-imap v2 for polling a single mailbox.
type Client struct {
	host     string
	port     int
	username string
	password string
	mailbox  string
}

// NewClient creates a new IMAP client configuration. The connection is
// opened per call; IMAP sessions are cheap and a held connection would
// go stale between polls.
func NewClient(host string, port int, username, password, mailbox string) *Client {
	if mailbox == "" {
		mailbox = "INBOX"
	}
	return &Client{
		host:     host,
		port:     port,
		username: username,
		password: password,
		mailbox:  mailbox,
	}
}

// connect dials the server over TLS, authenticates, and selects the
// configured mailbox. The caller logs out the returned client.
func (c *Client) connect(_ context.Context) (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)

	client, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("authenticating %s: %w", c.username, err)
	}

	if _, err := client.Select(c.mailbox, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("selecting %s: %w", c.mailbox, err)
	}

	return client, nil
}

// FetchFlagged returns flagged messages that have not yet been
// captured, oldest first, with their plain-text bodies parsed.
func (c *Client) FetchFlagged(ctx context.Context, limit int) ([]Message, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	criteria := &imap.SearchCriteria{
		Since:   time.Now().Add(-lookback),
		Flag:    []imap.Flag{imap.FlagFlagged},
		NotFlag: []imap.Flag{capturedKeyword},
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching flagged messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	if limit > 0 && len(uids) > limit {
		uids = uids[:limit]
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	var messages []Message
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		message := Message{Envelope: envelopeFromBuffer(buf)}
		if raw := buf.FindBodySection(bodySection); raw != nil {
			message.TextBody = plainTextBody(raw)
		}
		messages = append(messages, message)
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, fmt.Errorf("fetching flagged messages: %w", err)
	}

	return messages, nil
}

// MarkCaptured stamps a message with the captured keyword so later
// polls skip it.
func (c *Client) MarkCaptured(ctx context.Context, uid uint32) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	storeCmd := client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{capturedKeyword},
	}, nil)

	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("marking message %d captured: %w", uid, err)
	}
	return nil
}

// envelopeFromBuffer extracts an Envelope from a FetchMessageBuffer.
func envelopeFromBuffer(buf *imapclient.FetchMessageBuffer) Envelope {
	env := Envelope{
		UID: uint32(buf.UID),
	}

	if buf.Envelope != nil {
		env.MessageID = buf.Envelope.MessageID
		env.Subject = buf.Envelope.Subject
		env.Date = buf.Envelope.Date

		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			if from.Name != "" {
				env.From = from.Name
			} else {
				env.From = from.Addr()
			}
		}
	}

	for _, flag := range buf.Flags {
		env.Flags = append(env.Flags, string(flag))
	}

	return env
}

// plainTextBody parses a raw RFC 2822 message and returns its first
// text/plain part. A message that fails MIME parsing is treated as
// plain text wholesale.
func plainTextBody(raw []byte) string {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := header.ContentType()
		if !strings.HasPrefix(contentType, "text/plain") {
			continue
		}

		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}
		return string(body)
	}

	return ""
}
