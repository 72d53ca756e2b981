package granite

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/forge-ai/testgen/shared/apierr"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

const (
	apiKeyGrantType = "urn:ibm:params:oauth:grant-type:apikey"

	// RefreshMargin is subtracted from the reported lifetime so a token is
	// replaced before the service would reject it.
	RefreshMargin = 300 * time.Second

	defaultTokenTTL   = 3600 * time.Second
	defaultIAMTimeout = 15 * time.Second
	defaultRetryWait  = 500 * time.Millisecond
)

// TokenCache exchanges an API key for a short-lived IAM bearer token and
// keeps it until RefreshMargin before expiry. Safe for concurrent use:
// callers racing past an expired token share a single exchange.
type TokenCache struct {
	conf      *clientcredentials.Config
	http      *http.Client
	retryWait time.Duration
	now       func() time.Time
	onRefresh func(error)

	group singleflight.Group

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type TokenOption func(*TokenCache)

// WithIAMHTTPClient replaces the client used for the exchange. Its Timeout
// bounds each attempt.
func WithIAMHTTPClient(c *http.Client) TokenOption {
	return func(tc *TokenCache) { tc.http = c }
}

func WithClock(now func() time.Time) TokenOption {
	return func(tc *TokenCache) { tc.now = now }
}

// WithRetryWait sets the backoff before the single retry of a failed exchange.
func WithRetryWait(d time.Duration) TokenOption {
	return func(tc *TokenCache) { tc.retryWait = d }
}

// WithRefreshHook is called after every exchange with its outcome.
func WithRefreshHook(fn func(error)) TokenOption {
	return func(tc *TokenCache) { tc.onRefresh = fn }
}

func NewTokenCache(iamURL, apiKey string, opts ...TokenOption) *TokenCache {
	tc := &TokenCache{
		conf: &clientcredentials.Config{
			TokenURL: iamURL,
			EndpointParams: url.Values{
				"grant_type": {apiKeyGrantType},
				"apikey":     {apiKey},
			},
			AuthStyle: oauth2.AuthStyleInParams,
		},
		http:      &http.Client{Timeout: defaultIAMTimeout},
		retryWait: defaultRetryWait,
		now:       time.Now,
	}
	for _, o := range opts {
		o(tc)
	}
	return tc
}

// AccessToken returns a valid bearer token, exchanging the API key when the
// cached one is missing or past its refresh point. Failures are AuthErrors
// and leave the cache untouched.
//
// The shared exchange is detached from ctx and bounded by the IAM client
// timeout; a caller whose ctx ends stops waiting without failing the others.
func (tc *TokenCache) AccessToken(ctx context.Context) (string, error) {
	if tok, ok := tc.cached(); ok {
		return tok, nil
	}
	exchange := context.WithoutCancel(ctx)
	ch := tc.group.DoChan("token", func() (any, error) {
		if tok, ok := tc.cached(); ok {
			return tok, nil
		}
		return tc.refresh(exchange)
	})
	select {
	case <-ctx.Done():
		return "", apierr.Wrap(apierr.Auth, ctx.Err(), "failed to get access token")
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Token adapts the cache to oauth2.TokenSource.
func (tc *TokenCache) Token() (*oauth2.Token, error) {
	tok, err := tc.AccessToken(context.Background())
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer", Expiry: tc.ExpiresAt()}, nil
}

// Invalidate drops the cached token so the next call exchanges again.
func (tc *TokenCache) Invalidate() {
	tc.mu.Lock()
	tc.token = ""
	tc.expiresAt = time.Time{}
	tc.mu.Unlock()
}

// ExpiresAt is the refresh point of the cached token (zero when empty).
func (tc *TokenCache) ExpiresAt() time.Time {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.expiresAt
}

func (tc *TokenCache) cached() (string, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.token != "" && tc.now().Before(tc.expiresAt) {
		return tc.token, true
	}
	return "", false
}

func (tc *TokenCache) refresh(ctx context.Context) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, tc.http)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = tc.retryWait

	var tok *oauth2.Token
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		var err error
		tok, err = tc.conf.Token(ctx)
		if err != nil && !retryableExchange(err) {
			return backoff.Permanent(err)
		}
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("IAM token exchange failed")
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, 1), ctx))

	if tc.onRefresh != nil {
		tc.onRefresh(err)
	}
	if err != nil {
		if retryableExchange(err) {
			return "", apierr.Transient(apierr.Auth, err, "failed to get access token")
		}
		return "", apierr.Wrap(apierr.Auth, err, "failed to get access token")
	}

	ttl := tokenTTL(tok)
	now := tc.now()

	tc.mu.Lock()
	tc.token = tok.AccessToken
	tc.expiresAt = now.Add(ttl - refreshMargin(ttl))
	tc.mu.Unlock()

	log.Debug().Dur("ttl", ttl).Int("attempts", attempt).Msg("IAM token refreshed")
	return tok.AccessToken, nil
}

// refreshMargin is RefreshMargin, shrunk to half the lifetime for tokens
// that would otherwise be expired on arrival.
func refreshMargin(ttl time.Duration) time.Duration {
	if ttl <= 2*RefreshMargin {
		return ttl / 2
	}
	return RefreshMargin
}

// tokenTTL reads expires_in from the raw IAM response.
func tokenTTL(tok *oauth2.Token) time.Duration {
	var secs float64
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		secs = v
	case json.Number:
		secs, _ = v.Float64()
	case string:
		secs, _ = strconv.ParseFloat(v, 64)
	}
	if secs <= 0 {
		return defaultTokenTTL
	}
	return time.Duration(secs) * time.Second
}

// Network errors and 5xx responses are worth one more attempt; a rejected
// key or an unreadable body is not.
func retryableExchange(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return re.Response != nil && re.Response.StatusCode >= http.StatusInternalServerError
	}
	var ue *url.Error
	return errors.As(err, &ue)
}
