// anonbox
// Copyright 2026 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package transport provides the HTTP collaborator used by anonbox mailboxes.
// A Transport performs a single GET and hands back the status, body, and the
// charset the server declared for it.
package transport

import (
	"context"
	"fmt"
)

type Transport interface {
	// Get fetches `url`. A non-2xx status is not an error at this layer; use
	// CheckStatus to classify it. Implementations that cannot express a status
	// code may instead return an error wrapping ErrNotFound.
	Get(ctx context.Context, url string) (*Response, error)
}

type Response struct {
	StatusCode int
	Body       []byte
	// Charset is the charset parameter of the Content-Type header, or empty if
	// the server did not declare one.
	Charset string
}

var (
	ErrNotFound             = fmt.Errorf("Resource not found")
	ErrTransportUnavailable = fmt.Errorf("Secure transport unavailable")
)

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Unexpected HTTP status %d for %s", e.Code, e.URL)
}

// Is makes a 404 StatusError match ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == 404
}

// CheckStatus returns a *StatusError if the response is not a success.
func CheckStatus(url string, resp *Response) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, URL: url}
	}
	return nil
}
