// Package maas implements the upstream MAAS API client: OAuth1 PLAINTEXT
// signed requests, query-parameter GETs, and multipart/form-data mutations
// carrying the upstream "op=" operation parameter.
package maas

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/errdefs"
)

// maxErrorBodyBytes bounds how much of an upstream error body is read into
// the error message.
const maxErrorBodyBytes = 4 << 10

// Client speaks the MAAS 2.0 API dialect. All methods take a context and
// return errdefs-typed errors so the dispatcher can translate upstream
// failures without inspecting HTTP details.
type Client struct {
	baseURL    string
	httpClient *http.Client

	consumerKey string
	tokenKey    string
	tokenSecret string

	// retryMaxElapsed caps the total time spent retrying an idempotent GET.
	retryMaxElapsed time.Duration
}

// NewClient creates a client for the given API root. apiKey is the MAAS
// credential triple "consumer:token:secret".
func NewClient(baseURL, apiKey string, timeout time.Duration) (*Client, error) {
	parts := strings.SplitN(apiKey, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, fmt.Errorf("invalid MAAS API key: expected consumer:token:secret")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		httpClient:      &http.Client{Timeout: timeout},
		consumerKey:     parts[0],
		tokenKey:        parts[1],
		tokenSecret:     parts[2],
		retryMaxElapsed: 15 * time.Second,
	}, nil
}

// authorizationHeader builds the OAuth1 PLAINTEXT Authorization value. MAAS
// uses an empty consumer secret, so the signature is "&{token_secret}".
func (c *Client) authorizationHeader() string {
	nonce := make([]byte, 16)
	_, _ = rand.Read(nonce)
	return fmt.Sprintf(`OAuth oauth_version="1.0", oauth_signature_method="PLAINTEXT", `+
		`oauth_consumer_key=%q, oauth_token=%q, oauth_signature="%s", `+
		`oauth_nonce=%q, oauth_timestamp="%d"`,
		c.consumerKey, c.tokenKey,
		url.QueryEscape("&"+c.tokenSecret),
		hex.EncodeToString(nonce), time.Now().Unix())
}

// get performs a signed GET with query parameters and decodes the JSON
// response into out. Transient failures (network errors, upstream 5xx) are
// retried with capped exponential backoff; GETs are idempotent so this is
// safe. All other statuses fail permanently with the mapped error kind.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(errdefs.Internal("create request", err))
		}
		req.Header.Set("Authorization", c.authorizationHeader())
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctxErr := errdefs.FromContext(err); ctxErr != nil {
				return backoff.Permanent(ctxErr)
			}
			return errdefs.Wrap(errdefs.KindUpstreamError, "upstream request failed", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return statusError(resp)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(statusError(resp))
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(errdefs.Wrap(errdefs.KindUpstreamError, "decode upstream response", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = c.retryMaxElapsed
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

// formFile is one file part of a multipart mutation.
type formFile struct {
	field    string
	filename string
	content  []byte
}

// call performs a signed mutation (POST/PUT/DELETE) with a multipart
// form-data body. The upstream selects the operation via the "op" form
// parameter; an empty opName omits it (plain entity create/update/delete).
// Mutations are never retried.
func (c *Client) call(ctx context.Context, method, path, opName string, params map[string]string, files []formFile, out any) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if opName != "" {
		if err := w.WriteField("op", opName); err != nil {
			return errdefs.Internal("encode form", err)
		}
	}
	for k, v := range params {
		if err := w.WriteField(k, v); err != nil {
			return errdefs.Internal("encode form", err)
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.filename)
		if err != nil {
			return errdefs.Internal("encode form file", err)
		}
		if _, err := part.Write(f.content); err != nil {
			return errdefs.Internal("encode form file", err)
		}
	}
	if err := w.Close(); err != nil {
		return errdefs.Internal("encode form", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &body)
	if err != nil {
		return errdefs.Internal("create request", err)
	}
	req.Header.Set("Authorization", c.authorizationHeader())
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := errdefs.FromContext(err); ctxErr != nil {
			return ctxErr
		}
		return errdefs.Wrap(errdefs.KindUpstreamError, "upstream request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errdefs.Wrap(errdefs.KindUpstreamError, "decode upstream response", err)
	}
	return nil
}

// post is the common mutation shorthand.
func (c *Client) post(ctx context.Context, path, opName string, params map[string]string, out any) error {
	return c.call(ctx, http.MethodPost, path, opName, params, nil, out)
}

// statusError reads the (bounded) error body and maps the status to an
// errdefs kind. MAAS error bodies are plain text.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	slog.Debug("Upstream error response",
		"status", resp.StatusCode, "url", resp.Request.URL.Path, "body", msg)
	return errdefs.FromUpstreamStatus(resp.StatusCode, msg)
}
