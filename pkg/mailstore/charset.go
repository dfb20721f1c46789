// anonbox
// Copyright 2026 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package mailstore

import (
	"io"
	"strings"

	"github.com/emersion/go-message"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

func init() {
	message.CharsetReader = charsetReader
}

// lookupEncoding resolves a MIME or IANA charset name, falling back to UTF-8
// for empty or unknown names.
func lookupEncoding(charset string) encoding.Encoding {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset == "" {
		return unicode.UTF8
	}
	if enc, err := ianaindex.MIME.Encoding(charset); err == nil && enc != nil {
		return enc
	}
	if enc, err := ianaindex.IANA.Encoding(charset); err == nil && enc != nil {
		return enc
	}
	if enc, err := htmlindex.Get(charset); err == nil && enc != nil {
		return enc
	}
	return unicode.UTF8
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	return transform.NewReader(input, lookupEncoding(charset).NewDecoder()), nil
}

// Decode converts `b` from `charset` to a UTF-8 string. An empty or unknown
// charset is treated as UTF-8.
func Decode(b []byte, charset string) string {
	decoded, err := lookupEncoding(charset).NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(decoded)
}
