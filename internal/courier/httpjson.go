package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dafnadaf/artist-sub000/internal/resilience"
)

// maxErrorBody bounds how much of an upstream error payload is retained as
// diagnostic details.
const maxErrorBody = 8 << 10

type jsonCall struct {
	method  string
	url     string
	body    any
	form    string // overrides body with form-encoded payload when set
	headers map[string]string
}

// doJSON performs an upstream call through the resilient client and decodes a
// 2xx JSON response into out. Any other outcome is normalised into
// *ProviderError attributed to provider.
func doJSON(ctx context.Context, client *resilience.HTTPClient, provider Code, call jsonCall, out any) error {
	var reader io.Reader
	contentType := ""
	switch {
	case call.form != "":
		reader = strings.NewReader(call.form)
		contentType = "application/x-www-form-urlencoded"
	case call.body != nil:
		payload, err := json.Marshal(call.body)
		if err != nil {
			return NewProviderError(provider, 0, "encode request", nil, err)
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, call.method, call.url, reader)
	if err != nil {
		return NewProviderError(provider, 0, "build request", nil, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range call.headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(ctx, req)
	if err != nil {
		return NewProviderError(provider, 0, "request failed", nil, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		details := readErrorDetails(resp.Body)
		return NewProviderError(provider, 0, fmt.Sprintf("upstream returned %d", resp.StatusCode), details, nil)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewProviderError(provider, 0, "decode response", nil, err)
	}
	return nil
}

// readErrorDetails mirrors the upstream error body: JSON when possible,
// otherwise the raw text, truncated.
func readErrorDetails(body io.Reader) any {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return nil
	}
	var parsed any
	if json.Unmarshal(raw, &parsed) == nil {
		return parsed
	}
	return string(raw)
}
