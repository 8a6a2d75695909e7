// Package websession implements C8, a representative pattern for any
// private third-party web session whose wire protocol is not a public
// API: a cookie-based authentication probe, a CSRF-token harvest, and a
// single-turn send operation against a JSONP-prelude wire format.
package websession

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"

	"github.com/connexus-ai/ragbox-backend/internal/cache"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/ragerrors"
	"github.com/connexus-ai/ragbox-backend/internal/websession/wireformat"
)

// CookieStore is the host runtime's session-cookie collaborator. C8
// delegates cookie lookup to it rather than owning a cookie jar itself.
type CookieStore interface {
	Cookies(ctx context.Context, domain string) (psid, psidts string, ok bool)
}

// Client implements C8 against a single provider endpoint.
type Client struct {
	rootURL    string
	sendURL    string
	domain     string
	tokenKey   string
	cookies    CookieStore
	tokenCache *cache.TokenCache

	tokenPattern *regexp.Regexp
	http         *http.Client
}

// Config configures a Client.
type Config struct {
	RootURL  string
	SendURL  string
	Domain   string
	TokenKey string
	Cookies  CookieStore

	// TokenCacheOpts configures the client's TokenCache, e.g. to attach a
	// RedisTokenCache promotion layer via cache.WithTokenRemote.
	TokenCacheOpts []cache.TokenCacheOption
}

// New creates a Client.
func New(cfg Config) *Client {
	return &Client{
		rootURL:      cfg.RootURL,
		sendURL:      cfg.SendURL,
		domain:       cfg.Domain,
		tokenKey:     cfg.TokenKey,
		cookies:      cfg.Cookies,
		tokenCache:   cache.NewTokenCache(model.TokenTTL, cfg.TokenCacheOpts...),
		tokenPattern: tokenPattern(cfg.TokenKey),
		http:         &http.Client{},
	}
}

// resolvedCookies is a snapshot of the two session cookies gating
// authentication.
type resolvedCookies struct {
	psid, psidts string
	ok           bool
}

func (c *Client) resolveCookies(ctx context.Context) resolvedCookies {
	psid, psidts, ok := c.cookies.Cookies(ctx, c.domain)
	return resolvedCookies{psid: psid, psidts: psidts, ok: ok}
}

// IsAuthenticated implements C8's authentication probe: true iff both
// PSID and PSIDTS cookies exist for the provider's domain. Cookie
// lookup is delegated to the host runtime's session store.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	psid, psidts, ok := c.cookies.Cookies(ctx, c.domain)
	return ok && psid != "" && psidts != ""
}

// Response is the result of Send.
type Response struct {
	Text string
}

// OnChunk is an optional streaming callback; Send always calls it with
// the full body if non-nil, since the wire format has no true
// incremental framing this client parses.
type OnChunk func(chunk string)

// Send implements C8's single-turn request (spec.md §4.8.3).
func (c *Client) Send(ctx context.Context, prompt string, onChunk OnChunk) (Response, error) {
	if !c.IsAuthenticated(ctx) {
		return Response{}, ragerrors.NewAuthError("no active web session")
	}

	token, err := c.extractToken(ctx)
	if err != nil {
		return Response{}, err
	}

	body, err := buildRequestBody(prompt, token)
	if err != nil {
		return Response{}, fmt.Errorf("websession.Send: build body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sendURL, bytes.NewBufferString(body))
	if err != nil {
		return Response{}, fmt.Errorf("websession.Send: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", "https://"+c.domain)
	req.Header.Set("Referer", c.rootURL)
	req.Header.Set("X-Same-Domain", "1")
	req.Header.Set("User-Agent", userAgent)
	cookies := c.resolveCookies(ctx)
	setCookieHeader(req, cookies)

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, ragerrors.NewUnavailable("websession.Send", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.tokenCache.Clear()
		return Response{}, ragerrors.NewAuthError("session expired")
	case resp.StatusCode == http.StatusTooManyRequests:
		return Response{}, ragerrors.NewRateLimitError("websession rate limited")
	case resp.StatusCode >= 500:
		return Response{}, ragerrors.NewServerError(resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		respBody, _ := io.ReadAll(resp.Body)
		return Response{}, fmt.Errorf("websession.Send: status %d: %s", resp.StatusCode, respBody)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, ragerrors.NewUnavailable("websession.Send", err)
	}
	if onChunk != nil {
		onChunk(string(raw))
	}

	result, err := wireformat.Parse(string(raw))
	if err != nil {
		return Response{}, err
	}
	return Response{Text: result.Text}, nil
}

// buildRequestBody encodes prompt into the provider's nested-JSON
// payload shape: [[prompt], null, null], wrapped as
// [null, JSON.stringify(inner)], then form-encoded with the CSRF token
// (spec.md §4.8.3).
func buildRequestBody(prompt, token string) (string, error) {
	inner := []any{[]any{prompt}, nil, nil}
	innerJSON, err := json.Marshal(inner)
	if err != nil {
		return "", err
	}
	outer := []any{nil, string(innerJSON)}
	outerJSON, err := json.Marshal(outer)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("req", string(outerJSON))
	form.Set("at", token)
	return form.Encode(), nil
}

func setCookieHeader(req *http.Request, rc resolvedCookies) {
	if rc.psid != "" {
		req.AddCookie(&http.Cookie{Name: "PSID", Value: rc.psid})
	}
	if rc.psidts != "" {
		req.AddCookie(&http.Cookie{Name: "PSIDTS", Value: rc.psidts})
	}
}
