// Package breach queries the Pwned Passwords range API using the
// k-anonymity protocol: only the first five hex characters of the
// password's SHA-1 digest ever leave the process.
package breach

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Outcome is the result of a breach lookup.
type Outcome int

const (
	// OutcomeClear means the password suffix was absent from the range
	// response.
	OutcomeClear Outcome = iota
	// OutcomeCompromised means the suffix appeared in the range
	// response, so the password is known-breached.
	OutcomeCompromised
)

// Doer abstracts the HTTP client so tests can substitute fakes.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

const defaultRequestTimeout = 5 * time.Second

// Client performs k-anonymity range lookups against a breach database.
type Client struct {
	baseURL string
	client  Doer
	timeout time.Duration
}

// NewClient constructs a breach lookup client. A nil doer falls back to
// a default HTTP client with a bounded timeout.
func NewClient(baseURL string, doer Doer, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	if doer == nil {
		doer = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  doer,
		timeout: timeout,
	}
}

// Check reports whether the password is known-compromised. Any network
// or protocol failure returns a non-nil error so the caller can apply
// its own fail-open or fail-closed policy; an error never maps to a
// silent "clear".
func (c *Client) Check(ctx context.Context, password string) (Outcome, error) {
	if c == nil || c.client == nil {
		return OutcomeClear, fmt.Errorf("breach: client not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	prefix, suffix := splitDigest(password)

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := c.baseURL + "/range/" + prefix
	req, errReq := http.NewRequestWithContext(requestCtx, http.MethodGet, url, nil)
	if errReq != nil {
		return OutcomeClear, fmt.Errorf("breach: build request: %w", errReq)
	}

	resp, errDo := c.client.Do(req)
	if errDo != nil {
		return OutcomeClear, fmt.Errorf("breach: request failed: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return OutcomeClear, fmt.Errorf("breach: unexpected status %d", resp.StatusCode)
	}

	// Each line is "SUFFIX:COUNT" for every known hash sharing the
	// prefix. Presence of our suffix means the password is breached.
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		candidate, _, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if strings.EqualFold(candidate, suffix) {
			return OutcomeCompromised, nil
		}
	}
	if errScan := scanner.Err(); errScan != nil {
		return OutcomeClear, fmt.Errorf("breach: read response: %w", errScan)
	}

	return OutcomeClear, nil
}

// splitDigest returns the uppercase hex SHA-1 of the password split
// into the 5-character range prefix and the 35-character suffix.
func splitDigest(password string) (prefix, suffix string) {
	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	return digest[:5], digest[5:]
}
