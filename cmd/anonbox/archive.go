// anonbox
// Copyright 2026 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"src.bluestatic.org/anonbox/pkg/mailstore"

	"github.com/emersion/go-mbox"
	"go.uber.org/zap"
)

const unknownSender = "MAILER-DAEMON"

// Archive appends messages to an mbox file, creating it if needed.
type Archive struct {
	path string
	log  *zap.Logger
	now  func() time.Time
}

func NewArchive(path string, log *zap.Logger) *Archive {
	return &Archive{
		path: path,
		log:  log.With(zap.String("archive", path)),
		now:  time.Now,
	}
}

func (a *Archive) Append(msgs []*mailstore.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	f, err := os.OpenFile(a.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("Failed to open archive: %w", err)
	}
	if err := a.write(f, msgs); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("Failed to close archive: %w", err)
	}

	a.log.Info("Archived messages", zap.Int("count", len(msgs)))
	return nil
}

func (a *Archive) write(out io.Writer, msgs []*mailstore.Message) error {
	w := mbox.NewWriter(out)
	for _, msg := range msgs {
		from, date := msg.Envelope()
		if from == "" {
			from = unknownSender
		}
		if date.IsZero() {
			date = a.now()
		}
		mw, err := w.CreateMessage(from, date)
		if err != nil {
			return fmt.Errorf("Failed to start archive message: %w", err)
		}
		if _, err := mw.Write(msg.Raw()); err != nil {
			return fmt.Errorf("Failed to write archive message: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("Failed to finish archive: %w", err)
	}
	return nil
}
