package websession

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/ragerrors"
)

const userAgent = "Mozilla/5.0 (compatible; ragcore-websession/1.0)"

// tokenPattern matches "<TOKEN_KEY>":"<captured-value>" in the
// provider's root page HTML. The key itself varies by provider, so the
// pattern is configured per Client rather than hardcoded.
func tokenPattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*:\s*"([^"]+)"`)
}

// extractToken implements C8's CSRF-token harvest (spec.md §4.8.2): a
// cache check, then a GET of the provider's root page with session
// cookies and a browser-like user agent, then a regex extraction.
func (c *Client) extractToken(ctx context.Context) (string, error) {
	if token, ok := c.tokenCache.Get(time.Now()); ok {
		return token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.rootURL, nil)
	if err != nil {
		return "", fmt.Errorf("websession.extractToken: request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	setCookieHeader(req, c.resolveCookies(ctx))

	resp, err := c.http.Do(req)
	if err != nil {
		return "", ragerrors.NewUnavailable("websession.extractToken", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", ragerrors.NewUnavailable("websession.extractToken", fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", ragerrors.NewUnavailable("websession.extractToken", err)
	}

	match := c.tokenPattern.FindSubmatch(body)
	if match == nil {
		return "", ragerrors.NewParseError("token not found in root page")
	}

	token := string(match[1])
	c.tokenCache.Set(token, time.Now())
	return token, nil
}
