package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

type anonymousKey struct{}

// bearerTransport attaches the current session token through oauth2.Transport.
type bearerTransport struct {
	tokens TokenProvider
	base   http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if anon, _ := req.Context().Value(anonymousKey{}).(bool); anon {
		return base.RoundTrip(req)
	}
	tok := t.tokens.CurrentToken()
	if tok == "" {
		return base.RoundTrip(req)
	}
	ot := &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok, TokenType: "Bearer"}),
		Base:   base,
	}
	return ot.RoundTrip(req)
}

// loggingTransport logs every exchange with the backend.
type loggingTransport struct {
	base http.RoundTripper
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		log.Warn().Err(err).Str("method", req.Method).Str("url", req.URL.String()).
			Float64("time", time.Since(start).Seconds()).Msg("request failed")
		return nil, err
	}
	log.Info().Str("method", req.Method).Str("url", req.URL.String()).
		Float64("time", time.Since(start).Seconds()).Int("status", resp.StatusCode).Msg("request")
	return resp, nil
}
