// anonbox
// Copyright 2026 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package mailstore parses the raw mail store served by anonbox. The store is
// the concatenation of every message delivered to a mailbox, each introduced
// by a "From " line, and is re-sent in full on every check.
package mailstore

import "strings"

const delimiter = "\nFrom "

// Parse returns the messages in `text` after the first `knownCount`. The store
// is append-only, so skipping by count yields exactly the new arrivals.
//
// Text before the first "From " line is not a message and is ignored. Body
// lines that start with "From " are not unescaped and will split a message.
func Parse(text string, knownCount int) []*Message {
	if strings.HasPrefix(text, "From ") {
		text = "\n" + text
	}
	if !strings.Contains(text, delimiter) {
		return nil
	}

	// The first element is whatever precedes the first delimiter.
	blocks := strings.Split(text, delimiter)[1:]

	if knownCount < 0 {
		knownCount = 0
	}
	if knownCount >= len(blocks) {
		return nil
	}

	msgs := make([]*Message, 0, len(blocks)-knownCount)
	for _, block := range blocks[knownCount:] {
		envelope, rest := splitEnvelope(block)
		msgs = append(msgs, newMessage(envelope, []byte(rest)))
	}
	return msgs
}

// splitEnvelope separates the remainder of the "From " line from the message.
// A block with no newline has an empty message.
func splitEnvelope(block string) (string, string) {
	if i := strings.IndexByte(block, '\n'); i != -1 {
		return strings.TrimRight(block[:i], "\r"), block[i+1:]
	}
	return block, ""
}
