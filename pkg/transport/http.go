// anonbox
// Copyright 2026 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"
)

// Capabilities describes what the running process can do. It is resolved once
// at startup and passed to NewHTTP.
type Capabilities struct {
	TLS bool
}

// DetectCapabilities reports TLS as available when the system certificate pool
// can be loaded.
func DetectCapabilities() Capabilities {
	_, err := x509.SystemCertPool()
	return Capabilities{TLS: err == nil}
}

type Config struct {
	// UseTLS requires a working secure transport. NewHTTP fails with
	// ErrTransportUnavailable if it cannot provide one.
	UseTLS bool

	// CAFile is an optional PEM bundle of additional trust roots.
	CAFile string

	// Proxy is an optional proxy URL. When empty, the environment is consulted.
	Proxy string

	Timeout   time.Duration
	UserAgent string
}

type HTTPTransport struct {
	client    *http.Client
	userAgent string
	log       *zap.Logger
}

// NewHTTP builds a Transport on net/http.
func NewHTTP(c Config, caps Capabilities, log *zap.Logger) (*HTTPTransport, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if c.UseTLS && !caps.TLS && c.CAFile == "" {
		return nil, ErrTransportUnavailable
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = http.ProxyFromEnvironment
	if c.Proxy != "" {
		u, err := url.Parse(c.Proxy)
		if err != nil {
			return nil, fmt.Errorf("Invalid proxy URL: %w", err)
		}
		tr.Proxy = http.ProxyURL(u)
	}

	if c.CAFile != "" {
		roots, err := loadRoots(c.CAFile, caps)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: roots}
	}

	log.Debug("Created HTTP transport",
		zap.Bool("tls", c.UseTLS),
		zap.String("ca_file", c.CAFile),
		zap.String("proxy", c.Proxy),
		zap.Duration("timeout", c.Timeout))

	return &HTTPTransport{
		client: &http.Client{
			Transport: tr,
			Timeout:   c.Timeout,
		},
		userAgent: c.UserAgent,
		log:       log,
	}, nil
}

func loadRoots(path string, caps Capabilities) (*x509.CertPool, error) {
	var roots *x509.CertPool
	if caps.TLS {
		roots, _ = x509.SystemCertPool()
	}
	if roots == nil {
		roots = x509.NewCertPool()
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !roots.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("No certificates found in %s", path)
	}
	return roots, nil
}

func (t *HTTPTransport) Get(ctx context.Context, url string) (*Response, error) {
	log := t.log.With(zap.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	log.Debug("Sending request")
	resp, err := t.client.Do(req)
	if err != nil {
		log.Error("Request failed", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("Failed to read response body", zap.Error(err))
		return nil, fmt.Errorf("Failed to read response body: %w", err)
	}

	log.Debug("Received response", zap.Int("status", resp.StatusCode), zap.Int("size", len(body)))
	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Charset:    charsetOf(resp.Header.Get("Content-Type")),
	}, nil
}

func charsetOf(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}
