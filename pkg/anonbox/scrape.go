// anonbox
// Copyright 2026 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package anonbox

import (
	"fmt"
	"regexp"
)

var (
	ErrScrape      = fmt.Errorf("Could not scrape mailbox page")
	ErrConsistency = fmt.Errorf("Mailbox page is inconsistent")
)

// The service has no API; these two patterns over the /en page are the whole
// contract for creating a mailbox.

func addressRegexp(s Service) *regexp.Regexp {
	return regexp.MustCompile(`<dd><p>([0-9a-z]{10})@([0-9a-z]{5})\.` + regexp.QuoteMeta(s.Host))
}

func accessURLRegexp(s Service) *regexp.Regexp {
	return regexp.MustCompile(`<dd><p><a href="` +
		regexp.QuoteMeta(s.Protocol()+"://"+s.Host) +
		`/([0-9a-z]{5})/([0-9a-z]{10})">`)
}

// scrapeKeys extracts the keys of a freshly created mailbox from `page`.
func scrapeKeys(s Service, page string) (Keys, error) {
	m := addressRegexp(s).FindStringSubmatch(page)
	if m == nil {
		return Keys{}, fmt.Errorf("%w: no mail address in response", ErrScrape)
	}
	publicKey, dateHash := m[1], m[2]

	m = accessURLRegexp(s).FindStringSubmatch(page)
	if m == nil {
		return Keys{}, fmt.Errorf("%w: no access URL in response", ErrScrape)
	}
	if m[1] != dateHash {
		return Keys{}, fmt.Errorf("%w: access URL date hash %q does not match address date hash %q",
			ErrConsistency, m[1], dateHash)
	}

	return Keys{
		DateHash:   dateHash,
		PrivateKey: m[2],
		PublicKey:  publicKey,
	}, nil
}
