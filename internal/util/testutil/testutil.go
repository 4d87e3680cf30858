// Package testutil holds helpers shared by package tests.
package testutil

import (
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	eventuallyTimeout = 10 * time.Second
	eventuallyTick    = 10 * time.Millisecond
)

// AssertEventually polls condition every 10ms for up to 10s.
func AssertEventually(t *testing.T, condition func() bool, msgAndArgs ...any) bool {
	t.Helper()
	return assert.Eventually(t, condition, eventuallyTimeout, eventuallyTick, msgAndArgs...)
}

// RequireEventually is AssertEventually that stops the test on failure.
func RequireEventually(t *testing.T, condition func() bool, msgAndArgs ...any) {
	t.Helper()
	require.Eventually(t, condition, eventuallyTimeout, eventuallyTick, msgAndArgs...)
}

// Listen opens a TCP listener on a free loopback port. The listener is
// closed when the test ends.
func Listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

// WaitHTTP waits until GET url answers with 200.
func WaitHTTP(t *testing.T, url string) {
	t.Helper()
	client := &http.Client{Timeout: time.Second}
	RequireEventually(t, func() bool {
		resp, err := client.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, "server at %s never became ready", url)
}
