// anonbox
// Copyright 2026 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"fmt"
	"io"
	"strings"

	"src.bluestatic.org/anonbox/pkg/anonbox"
	"src.bluestatic.org/anonbox/pkg/mailstore"
)

var shownHeaders = []string{"From", "To", "Date", "Subject"}

func printMailbox(w io.Writer, mb *anonbox.Mailbox) {
	fmt.Fprintln(w, "Address:", mb.Address())
	fmt.Fprintln(w, "Access URL:", mb.AccessURL())
	fmt.Fprintf(w, "-mailbox %s\n\n", mb.Keys())
}

// printCheck reports the result of one check. `first` numbers the messages
// so that they stay unique across the checks of a watch.
func printCheck(w io.Writer, valid bool, msgs []*mailstore.Message, first int) {
	if !valid {
		fmt.Fprintln(w, "Mailbox was deleted")
		return
	}
	fmt.Fprintf(w, "%d new messages\n", len(msgs))
	for i, msg := range msgs {
		printMessage(w, first+i, msg)
	}
}

func printMessage(w io.Writer, n int, msg *mailstore.Message) {
	fmt.Fprintf(w, "====== %d ======\n", n)
	for _, name := range shownHeaders {
		fmt.Fprintf(w, "%s: %s\n", name, headerText(msg, name))
	}
	fmt.Fprintln(w, "---------------")

	payload, _, err := msg.FindPayload("text/plain")
	if err != nil {
		payload = string(msg.Raw())
	}
	fmt.Fprintln(w, strings.TrimRight(payload, "\r\n"))
}

// headerText decodes RFC 2047 words and formats address lists, falling back to
// the raw value when the header does not parse.
func headerText(msg *mailstore.Message, name string) string {
	h := msg.Header()
	switch name {
	case "From", "To":
		addrs, err := h.AddressList(name)
		if err != nil || len(addrs) == 0 {
			break
		}
		s := make([]string, len(addrs))
		for i, a := range addrs {
			if a.Name == "" {
				s[i] = a.Address
			} else {
				s[i] = fmt.Sprintf("%s <%s>", a.Name, a.Address)
			}
		}
		return strings.Join(s, ", ")
	case "Subject":
		if s, err := h.Subject(); err == nil {
			return s
		}
	}
	return msg.Get(name)
}
