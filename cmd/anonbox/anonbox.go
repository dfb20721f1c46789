// anonbox
// Copyright 2026 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"src.bluestatic.org/anonbox/pkg/anonbox"
	"src.bluestatic.org/anonbox/pkg/mailstore"
	"src.bluestatic.org/anonbox/pkg/transport"
	"src.bluestatic.org/anonbox/pkg/version"

	"go.uber.org/zap"
)

const (
	exitOK = iota
	exitUsage
	exitConfig
	exitLogger
	exitTransport
	exitCreate
	exitCheck
)

const usage = `Usage: %s <command> [flags]

Commands:
  create    create a mailbox and show the access keys
  check     check a mailbox for new messages
  watch     check a mailbox for new messages periodically
  version   print the version

Run "%s <command> -h" for the flags of a command.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

// flags holds the command line. Only flags that were given override the
// loaded Config.
type flags struct {
	fs *flag.FlagSet

	configPath string
	mailbox    string

	host     string
	noTLS    bool
	delay    time.Duration
	timeout  time.Duration
	caFile   string
	proxy    string
	archive  string
	logLevel string
	logFile  string
}

func newFlags(cmd string, stderr io.Writer) *flags {
	f := &flags{fs: flag.NewFlagSet(cmd, flag.ContinueOnError)}
	f.fs.SetOutput(stderr)

	f.fs.StringVar(&f.configPath, "config", "", "JSON configuration file")
	f.fs.StringVar(&f.host, "host", anonbox.DefaultHost, "host name of the anonbox service")
	f.fs.BoolVar(&f.noTLS, "no-tls", false, "don't use TLS when accessing the service")
	f.fs.DurationVar(&f.timeout, "timeout", 30*time.Second, "timeout of each request")
	f.fs.StringVar(&f.caFile, "ca-file", "", "PEM bundle of additional trusted certificates")
	f.fs.StringVar(&f.proxy, "proxy", "", "proxy URL, instead of the environment's")
	f.fs.StringVar(&f.logLevel, "log-level", "warn", "minimum level of log messages")
	f.fs.StringVar(&f.logFile, "log-file", "", "also log to this rotated file")

	if cmd == "check" || cmd == "watch" {
		f.fs.StringVar(&f.mailbox, "mailbox", "", "use an existing mailbox, given as DATEHASH,PRIVATE,PUBLIC")
		f.fs.StringVar(&f.archive, "archive", "", "append new messages to this mbox file")
	}
	if cmd == "watch" {
		f.fs.DurationVar(&f.delay, "delay", 30*time.Second, "delay between checks")
	}
	return f
}

func (f *flags) apply(c *Config) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "host":
			c.Host = f.host
		case "no-tls":
			c.NoTLS = f.noTLS
		case "delay":
			c.Delay = f.delay
		case "timeout":
			c.Timeout = f.timeout
		case "ca-file":
			c.CAFile = f.caFile
		case "proxy":
			c.Proxy = f.proxy
		case "archive":
			c.Archive = f.archive
		case "log-level":
			c.Log.Level = f.logLevel
		case "log-file":
			c.Log.File = f.logFile
		}
	})
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintf(stderr, usage, args[0], args[0])
		return exitUsage
	}

	cmd := args[1]
	switch cmd {
	case "version":
		fmt.Fprint(stdout, version.VersionString)
		return exitOK
	case "create", "check", "watch":
	default:
		fmt.Fprintf(stderr, usage, args[0], args[0])
		return exitUsage
	}

	f := newFlags(cmd, stderr)
	if err := f.fs.Parse(args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if f.fs.NArg() != 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", f.fs.Args())
		return exitUsage
	}

	var keys *anonbox.Keys
	if f.mailbox != "" {
		k, err := anonbox.ParseKeys(f.mailbox)
		if err != nil {
			fmt.Fprintf(stderr, "mailbox: %v\n", err)
			return exitUsage
		}
		keys = &k
	}

	config, err := LoadConfig(f.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitConfig
	}
	f.apply(config)
	if err := config.Validate(); err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitConfig
	}

	log, err := newLogger(config.Log)
	if err != nil {
		fmt.Fprintf(stderr, "create logger: %v\n", err)
		return exitLogger
	}
	defer log.Sync()

	log.Info("Starting anonbox", zap.String("command", cmd), zap.String("host", config.Host))

	tr, err := transport.NewHTTP(transport.Config{
		UseTLS:    !config.NoTLS,
		CAFile:    config.CAFile,
		Proxy:     config.Proxy,
		Timeout:   config.Timeout,
		UserAgent: config.UserAgent,
	}, transport.DetectCapabilities(), log)
	if err != nil {
		log.Error("Failed to set up transport", zap.Error(err))
		fmt.Fprintf(stderr, "transport: %v\n", err)
		return exitTransport
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var mb *anonbox.Mailbox
	if keys != nil {
		mb = anonbox.New(*keys, config.Service(), tr, log)
	} else {
		fmt.Fprintln(stdout, "Creating new mailbox...")
		mb, err = anonbox.Create(ctx, config.Service(), tr, log)
		if err != nil {
			fmt.Fprintf(stderr, "create: %v\n", err)
			return exitCreate
		}
		printMailbox(stdout, mb)
	}

	report := newReporter(stdout, config, log)

	switch cmd {
	case "check":
		fmt.Fprintln(stdout, "Checking for messages...")
		msgs, err := mb.Check(ctx)
		if err == nil {
			err = report(mb.Valid(), msgs)
		}
		if err != nil {
			fmt.Fprintf(stderr, "check: %v\n", err)
			return exitCheck
		}
	case "watch":
		err := NewWatcher(mb, config.Delay, report, log).Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(stderr, "watch: %v\n", err)
			return exitCheck
		}
	}
	return exitOK
}

// newReporter prints every check and, when configured, archives the new
// messages.
func newReporter(stdout io.Writer, config *Config, log *zap.Logger) ReportFunc {
	var archive *Archive
	if config.Archive != "" {
		archive = NewArchive(config.Archive, log)
	}
	seen := 0
	return func(valid bool, msgs []*mailstore.Message) error {
		printCheck(stdout, valid, msgs, seen)
		seen += len(msgs)
		if archive == nil {
			return nil
		}
		return archive.Append(msgs)
	}
}
