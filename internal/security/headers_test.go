package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func serveWithHeaders(t *testing.T, h Headers, withTLS bool) http.Header {
	t.Helper()
	handler := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/shipping/quote", nil)
	if withTLS {
		req.TLS = &tls.ConnectionState{}
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr.Header()
}

func TestHeadersHardenShippingResponses(t *testing.T) {
	hdr := serveWithHeaders(t, Headers{Enable: true}, false)
	require.Equal(t, "nosniff", hdr.Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", hdr.Get("X-Frame-Options"))
	require.Equal(t, "no-referrer", hdr.Get("Referrer-Policy"))
	require.Empty(t, hdr.Get("Strict-Transport-Security"))
}

func TestHeadersDisabledLeavesResponseBare(t *testing.T) {
	hdr := serveWithHeaders(t, Headers{}, false)
	require.Empty(t, hdr.Get("X-Content-Type-Options"))
}

func TestHeadersHSTSOnlyOverTLS(t *testing.T) {
	h := Headers{Enable: true, EnableHSTS: true, HSTSMaxAge: 600, HSTSIncludeSubdomains: true}

	hdr := serveWithHeaders(t, h, true)
	require.Equal(t, "max-age=600; includeSubDomains", hdr.Get("Strict-Transport-Security"))

	hdr = serveWithHeaders(t, h, false)
	require.Empty(t, hdr.Get("Strict-Transport-Security"))
}
