// anonbox
// Copyright 2026 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package anonbox

import (
	"fmt"
	"regexp"
	"strings"
)

const DefaultHost = "anonbox.net"

// Service identifies an anonbox instance.
type Service struct {
	Host   string
	UseTLS bool
}

func (s Service) Protocol() string {
	if s.UseTLS {
		return "https"
	}
	return "http"
}

// URL joins `path` onto the service root.
func (s Service) URL(path ...string) string {
	return s.Protocol() + "://" + s.Host + "/" + strings.Join(path, "/")
}

// Keys are the three tokens that identify a mailbox.
type Keys struct {
	// DateHash names the service's current rotation epoch.
	DateHash string
	// PrivateKey grants read access to the messages.
	PrivateKey string
	// PublicKey is the local part of the address.
	PublicKey string
}

const (
	dateHashLen = 5
	keyLen      = 10
)

var tokenRegexp = regexp.MustCompile(`^[0-9a-z]+$`)

var ErrInvalidKeys = fmt.Errorf("Invalid mailbox keys")

func validToken(s string, n int) bool {
	return len(s) == n && tokenRegexp.MatchString(s)
}

// Validate checks that the keys have the shape the service hands out.
func (k Keys) Validate() error {
	if !validToken(k.DateHash, dateHashLen) {
		return fmt.Errorf("%w: date hash %q is not %d lowercase alphanumerics", ErrInvalidKeys, k.DateHash, dateHashLen)
	}
	if !validToken(k.PrivateKey, keyLen) {
		return fmt.Errorf("%w: private key %q is not %d lowercase alphanumerics", ErrInvalidKeys, k.PrivateKey, keyLen)
	}
	if !validToken(k.PublicKey, keyLen) {
		return fmt.Errorf("%w: public key %q is not %d lowercase alphanumerics", ErrInvalidKeys, k.PublicKey, keyLen)
	}
	return nil
}

// String formats the keys as DATEHASH,PRIVATE,PUBLIC, which ParseKeys reads.
func (k Keys) String() string {
	return k.DateHash + "," + k.PrivateKey + "," + k.PublicKey
}

func ParseKeys(s string) (Keys, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return Keys{}, fmt.Errorf("%w: expected DATEHASH,PRIVATE,PUBLIC, got %q", ErrInvalidKeys, s)
	}
	k := Keys{
		DateHash:   parts[0],
		PrivateKey: parts[1],
		PublicKey:  parts[2],
	}
	if err := k.Validate(); err != nil {
		return Keys{}, err
	}
	return k, nil
}
