// anonbox
// Copyright 2026 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"context"
	"time"

	"src.bluestatic.org/anonbox/pkg/mailstore"

	"go.uber.org/zap"
)

// Checker is the part of anonbox.Mailbox that a Watcher drives.
type Checker interface {
	Check(ctx context.Context) ([]*mailstore.Message, error)
	Valid() bool
}

// ReportFunc receives the outcome of every successful check.
type ReportFunc func(valid bool, msgs []*mailstore.Message) error

// Watcher checks a mailbox every delay until it disappears or the context is
// cancelled.
type Watcher struct {
	mb     Checker
	delay  time.Duration
	log    *zap.Logger
	report ReportFunc
}

func NewWatcher(mb Checker, delay time.Duration, report ReportFunc, log *zap.Logger) *Watcher {
	return &Watcher{
		mb:     mb,
		delay:  delay,
		log:    log.With(zap.Duration("delay", delay)),
		report: report,
	}
}

// Run blocks until the mailbox is invalid, returning nil, or until ctx is done,
// returning its error. Failed checks are logged and retried after the next
// delay.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info("Watch starting")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Watch stopping")
			return ctx.Err()
		case <-time.After(w.delay):
			w.runOnce(ctx)
		}
		if !w.mb.Valid() {
			w.log.Info("Mailbox is gone, watch stopping")
			return nil
		}
	}
}

func (w *Watcher) runOnce(ctx context.Context) {
	msgs, err := w.mb.Check(ctx)
	if err != nil {
		w.log.Error("Failed to check mailbox", zap.Error(err))
		return
	}
	if err := w.report(w.mb.Valid(), msgs); err != nil {
		w.log.Error("Failed to report messages", zap.Error(err))
	}
}
