// anonbox
// Copyright 2026 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package anonbox

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"src.bluestatic.org/anonbox/pkg/mailstore"
	"src.bluestatic.org/anonbox/pkg/transport"

	"go.uber.org/zap"
)

func _fl(depth int) string {
	_, file, line, _ := runtime.Caller(depth + 1)
	return fmt.Sprintf("[%s:%d]", filepath.Base(file), line)
}

func ok(t testing.TB, err error) {
	if err != nil {
		t.Errorf("%s unexpected error: %v", _fl(1), err)
	}
}

// testTransport serves canned responses and records every URL requested.
// Unknown URLs are 404s.
type testTransport struct {
	responses map[string]*transport.Response
	errs      map[string]error
	calls     []string
}

func newTestTransport() *testTransport {
	return &testTransport{
		responses: make(map[string]*transport.Response),
		errs:      make(map[string]error),
	}
}

func (tt *testTransport) Get(ctx context.Context, url string) (*transport.Response, error) {
	tt.calls = append(tt.calls, url)
	if err, ok := tt.errs[url]; ok {
		return nil, err
	}
	if resp, ok := tt.responses[url]; ok {
		return resp, nil
	}
	return &transport.Response{StatusCode: 404, Body: []byte("Not Found")}, nil
}

func (tt *testTransport) serve(url, body string) {
	tt.responses[url] = &transport.Response{StatusCode: 200, Body: []byte(body), Charset: "utf-8"}
}

const (
	testDateHash   = "x7y2z"
	testPublicKey  = "k3j5h1o2pq"
	testPrivateKey = "a9b8c7d6e5"
)

var testService = Service{Host: DefaultHost, UseTLS: true}

func creationPage(svc Service, publicKey, addrHash, urlHash, privateKey string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><body>
<dl>
<dt>Your mail address:</dt>
<dd><p>%s@%s.%s</p></dd>
<dt>Your access URL:</dt>
<dd><p><a href="%s">%s</a></p></dd>
</dl>
</body></html>
`, publicKey, addrHash, svc.Host, svc.URL(urlHash, privateKey), svc.URL(urlHash, privateKey))
}

func checkURL() string {
	return testService.URL(testDateHash, testPublicKey)
}

// storeOf builds a mail store holding one message per subject.
func storeOf(subjects ...string) string {
	var sb strings.Builder
	for i, subject := range subjects {
		fmt.Fprintf(&sb, "From sender%d@example.com Wed Mar  4 10:3%d:00 2026\n", i, i%10)
		fmt.Fprintf(&sb, "From: sender%d@example.com\n", i)
		fmt.Fprintf(&sb, "To: %s@%s.%s\n", testPublicKey, testDateHash, DefaultHost)
		fmt.Fprintf(&sb, "Subject: %s\n", subject)
		fmt.Fprintf(&sb, "\n")
		fmt.Fprintf(&sb, "Body %d\n", i)
		fmt.Fprintf(&sb, "\n")
	}
	return sb.String()
}

func subjects(msgs []*mailstore.Message) string {
	var out []string
	for _, msg := range msgs {
		out = append(out, msg.Get("Subject"))
	}
	return strings.Join(out, ",")
}

func TestCreate(t *testing.T) {
	tt := newTestTransport()
	tt.serve("https://anonbox.net/en", creationPage(testService, testPublicKey, testDateHash, testDateHash, testPrivateKey))

	mb, err := Create(context.Background(), testService, tt, zap.NewNop())
	ok(t, err)
	if mb == nil {
		t.Fatalf("Expected a mailbox")
	}

	if want, got := "k3j5h1o2pq@x7y2z.anonbox.net", mb.Address(); want != got {
		t.Errorf("Expected address %q, got %q", want, got)
	}
	if want, got := "https://anonbox.net/x7y2z/a9b8c7d6e5", mb.AccessURL(); want != got {
		t.Errorf("Expected access URL %q, got %q", want, got)
	}
	if want, got := (Keys{testDateHash, testPrivateKey, testPublicKey}), mb.Keys(); want != got {
		t.Errorf("Expected keys %v, got %v", want, got)
	}
	ok(t, mb.Keys().Validate())
	if !mb.Valid() {
		t.Errorf("Expected new mailbox to be valid")
	}
	if len(mb.Messages()) != 0 {
		t.Errorf("Expected no messages")
	}
	if want, got := 1, len(tt.calls); want != got {
		t.Errorf("Expected %d request, got %d", want, got)
	}
}

func TestCreateWithoutTLS(t *testing.T) {
	svc := Service{Host: "mail.example.org", UseTLS: false}
	tt := newTestTransport()
	tt.serve("http://mail.example.org/en", creationPage(svc, testPublicKey, testDateHash, testDateHash, testPrivateKey))

	mb, err := Create(context.Background(), svc, tt, nil)
	ok(t, err)
	if want, got := "k3j5h1o2pq@x7y2z.mail.example.org", mb.Address(); want != got {
		t.Errorf("Expected address %q, got %q", want, got)
	}
	if want, got := "http://mail.example.org/x7y2z/a9b8c7d6e5", mb.AccessURL(); want != got {
		t.Errorf("Expected access URL %q, got %q", want, got)
	}
}

func TestCreateScrapeErrors(t *testing.T) {
	good := creationPage(testService, testPublicKey, testDateHash, testDateHash, testPrivateKey)
	httpPage := creationPage(Service{Host: DefaultHost}, testPublicKey, testDateHash, testDateHash, testPrivateKey)
	otherHost := creationPage(Service{Host: "other.example", UseTLS: true}, testPublicKey, testDateHash, testDateHash, testPrivateKey)

	pages := map[string]string{
		"empty":           "",
		"no address":      strings.Replace(good, "<dd><p>"+testPublicKey, "<dd><p>", 1),
		"no access URL":   strings.Replace(good, "<a href=", "<a class=", 1),
		"short key":       strings.Replace(good, testPrivateKey, "a9b8", -1),
		"uppercase key":   strings.Replace(good, testPublicKey, strings.ToUpper(testPublicKey), -1),
		"wrong protocol":  httpPage,
		"wrong host":      otherHost,
		"maintenance msg": "<html><body><p>Down for maintenance</p></body></html>",
	}
	for name, page := range pages {
		tt := newTestTransport()
		tt.serve("https://anonbox.net/en", page)
		mb, err := Create(context.Background(), testService, tt, nil)
		if mb != nil || !errors.Is(err, ErrScrape) {
			t.Errorf("%s: expected ErrScrape, got %v %v", name, mb, err)
		}
	}
}

func TestCreateInconsistentDateHash(t *testing.T) {
	tt := newTestTransport()
	tt.serve("https://anonbox.net/en", creationPage(testService, testPublicKey, testDateHash, "zzzzz", testPrivateKey))

	mb, err := Create(context.Background(), testService, tt, nil)
	if mb != nil || !errors.Is(err, ErrConsistency) {
		t.Errorf("Expected ErrConsistency, got %v %v", mb, err)
	}
	if errors.Is(err, ErrScrape) {
		t.Errorf("Inconsistency should not be reported as a scrape error")
	}
}

func TestCreateTransportFailure(t *testing.T) {
	netErr := fmt.Errorf("connection refused")
	tt := newTestTransport()
	tt.errs["https://anonbox.net/en"] = netErr

	mb, err := Create(context.Background(), testService, tt, nil)
	if mb != nil || !errors.Is(err, netErr) {
		t.Errorf("Expected %v, got %v %v", netErr, mb, err)
	}

	tt = newTestTransport()
	tt.responses["https://anonbox.net/en"] = &transport.Response{StatusCode: 502}
	mb, err = Create(context.Background(), testService, tt, nil)
	var se *transport.StatusError
	if mb != nil || !errors.As(err, &se) || se.Code != 502 {
		t.Errorf("Expected StatusError 502, got %v %v", mb, err)
	}
}

func TestNewDoesNotTouchNetwork(t *testing.T) {
	tt := newTestTransport()
	mb := New(Keys{testDateHash, testPrivateKey, testPublicKey}, testService, tt, nil)
	if !mb.Valid() {
		t.Errorf("Expected constructed mailbox to be valid")
	}
	if len(tt.calls) != 0 {
		t.Errorf("Expected no requests, got %v", tt.calls)
	}
}

func TestRoundTrip(t *testing.T) {
	tt := newTestTransport()
	tt.serve("https://anonbox.net/en", creationPage(testService, testPublicKey, testDateHash, testDateHash, testPrivateKey))
	mb, err := Create(context.Background(), testService, tt, nil)
	ok(t, err)

	keys, err := ParseKeys(mb.Keys().String())
	ok(t, err)
	mb2 := New(keys, mb.Service(), tt, nil)
	if want, got := mb.Address(), mb2.Address(); want != got {
		t.Errorf("Expected address %q, got %q", want, got)
	}
	if want, got := mb.AccessURL(), mb2.AccessURL(); want != got {
		t.Errorf("Expected access URL %q, got %q", want, got)
	}
}

func TestCheckEmptyStore(t *testing.T) {
	tt := newTestTransport()
	tt.serve(checkURL(), "")
	mb := New(Keys{testDateHash, testPrivateKey, testPublicKey}, testService, tt, nil)

	msgs, err := mb.Check(context.Background())
	ok(t, err)
	if len(msgs) != 0 || len(mb.Messages()) != 0 {
		t.Errorf("Expected no messages, got %d/%d", len(msgs), len(mb.Messages()))
	}
	if !mb.Valid() {
		t.Errorf("Expected mailbox to stay valid")
	}
	if want, got := []string{checkURL()}, tt.calls; len(got) != 1 || got[0] != want[0] {
		t.Errorf("Expected requests %v, got %v", want, got)
	}
}

func TestCheckReturnsOnlyNewMessages(t *testing.T) {
	tt := newTestTransport()
	mb := New(Keys{testDateHash, testPrivateKey, testPublicKey}, testService, tt, zap.NewNop())

	tt.serve(checkURL(), storeOf("one", "two", "three"))
	msgs, err := mb.Check(context.Background())
	ok(t, err)
	if want, got := 3, len(msgs); want != got {
		t.Fatalf("Expected %d messages, got %d", want, got)
	}
	if want, got := "one,two,three", subjects(msgs); want != got {
		t.Errorf("Expected subjects %q, got %q", want, got)
	}

	// Same store again: nothing new.
	msgs, err = mb.Check(context.Background())
	ok(t, err)
	if len(msgs) != 0 {
		t.Errorf("Expected no new messages, got %d", len(msgs))
	}

	tt.serve(checkURL(), storeOf("one", "two", "three", "four", "five"))
	msgs, err = mb.Check(context.Background())
	ok(t, err)
	if want, got := "four,five", subjects(msgs); want != got {
		t.Errorf("Expected subjects %q, got %q", want, got)
	}

	all := mb.Messages()
	if want, got := 5, len(all); want != got {
		t.Fatalf("Expected %d messages, got %d", want, got)
	}
	for i, want := range []string{"one", "two", "three", "four", "five"} {
		if got := all[i].Get("Subject"); want != got {
			t.Errorf("Message %d: expected subject %q, got %q", i, want, got)
		}
	}

	// Messages returns a copy.
	all[0] = nil
	if mb.Messages()[0] == nil {
		t.Errorf("Messages exposed internal state")
	}
}

func TestCheckDecodesCharset(t *testing.T) {
	tt := newTestTransport()
	tt.responses[checkURL()] = &transport.Response{
		StatusCode: 200,
		Body:       []byte("From a@example.com Wed Mar  4 10:30:00 2026\nSubject: Caf\xe9\n\nBody\n"),
		Charset:    "ISO-8859-1",
	}
	mb := New(Keys{testDateHash, testPrivateKey, testPublicKey}, testService, tt, nil)

	msgs, err := mb.Check(context.Background())
	ok(t, err)
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	if want, got := "Café", msgs[0].Get("Subject"); want != got {
		t.Errorf("Expected subject %q, got %q", want, got)
	}
}

func TestCheckNotFoundInvalidates(t *testing.T) {
	tt := newTestTransport()
	mb := New(Keys{testDateHash, testPrivateKey, testPublicKey}, testService, tt, nil)

	msgs, err := mb.Check(context.Background())
	ok(t, err)
	if len(msgs) != 0 {
		t.Errorf("Expected no messages, got %d", len(msgs))
	}
	if mb.Valid() {
		t.Errorf("Expected mailbox to be invalid after a 404")
	}
	if want, got := 1, len(tt.calls); want != got {
		t.Errorf("Expected %d request, got %d", want, got)
	}

	// The store comes back, but an invalid mailbox never checks again.
	tt.serve(checkURL(), storeOf("late"))
	msgs, err = mb.Check(context.Background())
	ok(t, err)
	if len(msgs) != 0 || mb.Valid() {
		t.Errorf("Expected invalid mailbox to stay empty and invalid")
	}
	if want, got := 1, len(tt.calls); want != got {
		t.Errorf("Expected %d request, got %d", want, got)
	}
}

func TestCheckNotFoundError(t *testing.T) {
	tt := newTestTransport()
	tt.errs[checkURL()] = fmt.Errorf("proxy said: %w", transport.ErrNotFound)
	mb := New(Keys{testDateHash, testPrivateKey, testPublicKey}, testService, tt, nil)

	msgs, err := mb.Check(context.Background())
	ok(t, err)
	if len(msgs) != 0 || mb.Valid() {
		t.Errorf("Expected not-found error to invalidate the mailbox")
	}
}

func TestCheckOtherErrorsPropagate(t *testing.T) {
	netErr := fmt.Errorf("i/o timeout")
	tt := newTestTransport()
	mb := New(Keys{testDateHash, testPrivateKey, testPublicKey}, testService, tt, nil)

	tt.serve(checkURL(), storeOf("one"))
	_, err := mb.Check(context.Background())
	ok(t, err)

	tt.errs[checkURL()] = netErr
	msgs, err := mb.Check(context.Background())
	if !errors.Is(err, netErr) {
		t.Errorf("Expected %v, got %v", netErr, err)
	}
	if len(msgs) != 0 || !mb.Valid() || len(mb.Messages()) != 1 {
		t.Errorf("Expected a transport error to leave the mailbox untouched")
	}

	delete(tt.errs, checkURL())
	tt.responses[checkURL()] = &transport.Response{StatusCode: 500}
	_, err = mb.Check(context.Background())
	var se *transport.StatusError
	if !errors.As(err, &se) || se.Code != 500 {
		t.Errorf("Expected StatusError 500, got %v", err)
	}
	if !mb.Valid() {
		t.Errorf("Expected a server error to leave the mailbox valid")
	}

	tt.serve(checkURL(), storeOf("one", "two"))
	msgs, err = mb.Check(context.Background())
	ok(t, err)
	if len(msgs) != 1 || msgs[0].Get("Subject") != "two" {
		t.Errorf("Expected to recover and return the second message")
	}
}
