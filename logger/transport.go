package logger

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// Transport logs HTTP requests and responses at debug level.
type Transport struct {
	Transport http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	log.Debug().
		Str("req.method", req.Method).
		Str("req.url", req.URL.Redacted()).
		Msg("http req")

	rt := t.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	res, err := rt.RoundTrip(req)
	if err != nil {
		log.Debug().
			Str("req.method", req.Method).
			Str("req.url", req.URL.Redacted()).
			Err(err).
			Msg("http req failed")
		return nil, err
	}

	log.Debug().
		Str("req.method", req.Method).
		Str("req.url", req.URL.Redacted()).
		Int("res.status", res.StatusCode).
		Msg("http resp")

	return res, nil
}
