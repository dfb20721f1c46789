// anonbox
// Copyright 2026 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package mailstore

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

// DefaultType is the content type of a part that does not declare one.
const DefaultType = "text/plain"

// digestDefaultType applies to the children of a multipart/digest.
const digestDefaultType = "message/rfc822"

// Message is one message from the mail store. It keeps the raw text and
// re-parses it on demand, so reading a payload never consumes the message.
type Message struct {
	envelope string
	raw      []byte
	header   message.Header
	err      error
}

func newMessage(envelope string, raw []byte) *Message {
	m := &Message{
		envelope: envelope,
		raw:      raw,
	}
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		m.err = fmt.Errorf("Malformed message header: %w", err)
	}
	m.header = message.Header{Header: h}
	return m
}

// NewMessage wraps a single raw RFC 5322 message.
func NewMessage(raw []byte) *Message {
	return newMessage("", raw)
}

// Raw returns the message text without its "From " line. The slice must not
// be modified.
func (m *Message) Raw() []byte { return m.raw }

// Err reports a header parse failure. Such a message still has a Raw body.
func (m *Message) Err() error { return m.err }

// Get returns the first value of the header `name`, matched case-insensitively.
func (m *Message) Get(name string) string {
	return m.header.Get(name)
}

// Header exposes the header with the address, date and encoded-word helpers
// of go-message/mail.
func (m *Message) Header() mail.Header {
	return mail.Header{Header: m.header}
}

// Envelope returns the sender and date from the "From " line, if present.
func (m *Message) Envelope() (string, time.Time) {
	fields := strings.Fields(m.envelope)
	if len(fields) == 0 {
		return "", time.Time{}
	}
	date := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(m.envelope), fields[0]))
	t, err := time.Parse(time.ANSIC, date)
	if err != nil {
		t = time.Time{}
	}
	return fields[0], t
}

// ContentType returns the lowercased media type, or DefaultType if there is
// none.
func (m *Message) ContentType() string {
	return contentTypeOf(m.header, DefaultType)
}

func (m *Message) IsMultipart() bool {
	return strings.HasPrefix(m.ContentType(), "multipart/")
}

func (m *Message) DefaultType() string { return DefaultType }

// contentTypeOf falls back to `def` when the header has no usable
// Content-Type. go-message itself reports text/plain for a missing one, which
// is wrong inside a multipart/digest.
func contentTypeOf(h message.Header, def string) string {
	if h.Get("Content-Type") == "" {
		return def
	}
	t, _, err := h.ContentType()
	if err != nil || !strings.Contains(t, "/") {
		return def
	}
	return strings.ToLower(t)
}

func (m *Message) entity() (*message.Entity, error) {
	e, err := message.Read(bytes.NewReader(m.raw))
	if err != nil && e == nil {
		return nil, err
	}
	// Unknown transfer encodings leave the body as-is; that is good enough.
	return e, nil
}

var errStopWalk = fmt.Errorf("stop walk")

// FindPayload returns the decoded body and content type of the part that best
// matches `contentType`. Multipart messages are searched in document order for
// an exact match, then for a part of the message's default type. Otherwise the
// message's own body is returned.
func (m *Message) FindPayload(contentType string) (string, string, error) {
	contentType = strings.ToLower(contentType)
	if m.IsMultipart() {
		for _, want := range []string{contentType, m.DefaultType()} {
			payload, found, err := m.findPart(want)
			if err != nil {
				return "", "", err
			}
			if found {
				return payload, want, nil
			}
		}
	}

	e, err := m.entity()
	if err != nil {
		return "", "", err
	}
	body, err := m.readBody(e)
	if err != nil {
		return "", "", err
	}
	return body, m.ContentType(), nil
}

func (m *Message) findPart(want string) (string, bool, error) {
	e, err := m.entity()
	if err != nil {
		return "", false, err
	}

	var (
		payload string
		found   bool
		types   = make(map[string]string)
	)
	err = e.Walk(func(path []int, part *message.Entity, err error) error {
		if err != nil && part == nil {
			return err
		}

		def := DefaultType
		if len(path) > 0 && types[fmt.Sprint(path[:len(path)-1])] == "multipart/digest" {
			def = digestDefaultType
		}
		ct := contentTypeOf(part.Header, def)
		types[fmt.Sprint(path)] = ct

		if ct != want {
			return nil
		}
		payload, err = m.readBody(part)
		if err != nil {
			return err
		}
		found = true
		return errStopWalk
	})
	if err != nil && err != errStopWalk {
		return "", false, err
	}
	return payload, found, nil
}

// readBody reads a part's body. Transfer encodings and declared charsets are
// undone by go-message; a text part without a charset inherits the message's.
func (m *Message) readBody(part *message.Entity) (string, error) {
	b, err := io.ReadAll(part.Body)
	if err != nil {
		return "", fmt.Errorf("Failed to read message body: %w", err)
	}

	t, params, _ := part.Header.ContentType()
	isText := t == "" || strings.HasPrefix(strings.ToLower(t), "text/")
	if isText && params["charset"] == "" {
		if _, rootParams, _ := m.header.ContentType(); rootParams["charset"] != "" {
			return Decode(b, rootParams["charset"]), nil
		}
	}
	return Decode(b, ""), nil
}
