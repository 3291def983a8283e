package gateway

import "net/http"

// Transport returns an http.RoundTripper that authenticates every request the
// same way Do does. Requests must already target the API; non-401 statuses
// are passed through untouched for the caller to relay.
func (g *Gateway) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{gateway: g, base: base}
}

type transport struct {
	gateway *Gateway
	base    http.RoundTripper
}

// Compile-time check that transport implements http.RoundTripper.
var _ http.RoundTripper = (*transport)(nil)

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.gateway.send(req, t.base.RoundTrip)
}
