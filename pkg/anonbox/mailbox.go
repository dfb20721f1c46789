// anonbox
// Copyright 2026 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package anonbox is a client for the anonbox one-time email service.
//
// A Mailbox is either created on the service with Create, or rebuilt from
// known Keys with New. Check then polls it for newly delivered messages until
// the service forgets the mailbox, at which point Valid reports false for good.
package anonbox

import (
	"context"
	"errors"
	"fmt"

	"src.bluestatic.org/anonbox/pkg/mailstore"
	"src.bluestatic.org/anonbox/pkg/transport"

	"go.uber.org/zap"
)

// Mailbox is not goroutine safe.
type Mailbox struct {
	svc  Service
	keys Keys
	tr   transport.Transport
	log  *zap.Logger

	messages []*mailstore.Message
	valid    bool
}

// New returns a Mailbox for keys that are already known, without contacting
// the service. The mailbox is assumed valid until a Check says otherwise.
func New(keys Keys, svc Service, tr transport.Transport, log *zap.Logger) *Mailbox {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Mailbox{
		svc:   svc,
		keys:  keys,
		tr:    tr,
		valid: true,
	}
	m.log = log.With(zap.String("address", m.Address()))
	return m
}

// Create asks the service for a new mailbox.
func Create(ctx context.Context, svc Service, tr transport.Transport, log *zap.Logger) (*Mailbox, error) {
	if log == nil {
		log = zap.NewNop()
	}
	url := svc.URL("en")
	log = log.With(zap.String("url", url))

	log.Info("Creating mailbox")
	resp, err := tr.Get(ctx, url)
	if err == nil {
		err = transport.CheckStatus(url, resp)
	}
	if err != nil {
		log.Error("Failed to load mailbox page", zap.Error(err))
		return nil, fmt.Errorf("Failed to create mailbox: %w", err)
	}

	keys, err := scrapeKeys(svc, mailstore.Decode(resp.Body, resp.Charset))
	if err != nil {
		log.Error("Failed to scrape mailbox page", zap.Error(err))
		return nil, err
	}

	m := New(keys, svc, tr, log)
	m.log.Info("Created mailbox")
	return m, nil
}

// Check fetches the mail store and returns the messages that arrived since the
// last Check. A not-found response invalidates the mailbox and returns no
// messages; every later Check is a no-op. Other failures are returned and
// leave the mailbox valid.
func (m *Mailbox) Check(ctx context.Context) ([]*mailstore.Message, error) {
	if !m.valid {
		return nil, nil
	}

	url := m.svc.URL(m.keys.DateHash, m.keys.PublicKey)
	m.log.Info("Checking for messages", zap.Int("known", len(m.messages)))

	resp, err := m.tr.Get(ctx, url)
	if err == nil {
		err = transport.CheckStatus(url, resp)
	}
	if errors.Is(err, transport.ErrNotFound) {
		m.log.Warn("Mailbox no longer exists")
		m.valid = false
		return nil, nil
	}
	if err != nil {
		m.log.Error("Failed to check mailbox", zap.Error(err))
		return nil, fmt.Errorf("Failed to check mailbox: %w", err)
	}

	msgs := mailstore.Parse(mailstore.Decode(resp.Body, resp.Charset), len(m.messages))
	m.messages = append(m.messages, msgs...)

	m.log.Info("Checked mailbox", zap.Int("new", len(msgs)), zap.Int("total", len(m.messages)))
	return msgs, nil
}

// Address is publickey@datehash.host.
func (m *Mailbox) Address() string {
	return fmt.Sprintf("%s@%s.%s", m.keys.PublicKey, m.keys.DateHash, m.svc.Host)
}

// AccessURL is the page a person can open to read the mailbox.
func (m *Mailbox) AccessURL() string {
	return m.svc.URL(m.keys.DateHash, m.keys.PrivateKey)
}

// Keys returns the tokens needed to rebuild the mailbox with New.
func (m *Mailbox) Keys() Keys { return m.keys }

func (m *Mailbox) Service() Service { return m.svc }

// Valid is false once a Check found the mailbox gone from the service. That
// is permanent, so callers should test it after every Check.
func (m *Mailbox) Valid() bool { return m.valid }

// Messages returns every message retrieved so far, oldest first.
func (m *Mailbox) Messages() []*mailstore.Message {
	msgs := make([]*mailstore.Message, len(m.messages))
	copy(msgs, m.messages)
	return msgs
}
