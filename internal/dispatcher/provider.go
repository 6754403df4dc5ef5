package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/util"
)

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 1 << 20

// Sender delivers one notification to a subscriber endpoint.
type Sender interface {
	Send(ctx context.Context, endpoint string, n model.Notification) (Result, error)
}

// Result is what the provider reported for an accepted request.
type Result struct {
	StatusCode        int
	SuccessfulTokens  []string
	InvalidTokens     []string
	RateLimitedTokens []string
}

type providerResponse struct {
	Result struct {
		SuccessfulTokens  []string `json:"successfulTokens"`
		InvalidTokens     []string `json:"invalidTokens"`
		RateLimitedTokens []string `json:"rateLimitedTokens"`
	} `json:"result"`
}

// HTTPProvider posts notifications as JSON. A request fails on transport
// errors, non-2xx statuses and bodies that are not JSON.
type HTTPProvider struct {
	client *http.Client
}

func NewHTTPProvider(timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{client: &http.Client{Timeout: timeout}}
}

var _ Sender = (*HTTPProvider)(nil)

func (p *HTTPProvider) Send(ctx context.Context, endpoint string, n model.Notification) (Result, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return Result{}, fmt.Errorf("endpoint=%s: bad request: %w", util.RedactEndpoint(endpoint), err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		// *url.Error repeats the full endpoint, which may embed a secret
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return Result{}, fmt.Errorf("endpoint=%s: %w", util.RedactEndpoint(endpoint), err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("endpoint=%s read body: %w", util.RedactEndpoint(endpoint), err)
	}

	if res.StatusCode/100 != 2 {
		return Result{}, fmt.Errorf("endpoint=%s status=%d", util.RedactEndpoint(endpoint), res.StatusCode)
	}
	if !json.Valid(body) {
		return Result{}, fmt.Errorf("endpoint=%s status=%d: response is not JSON", util.RedactEndpoint(endpoint), res.StatusCode)
	}

	out := Result{StatusCode: res.StatusCode}
	var pr providerResponse
	if err := json.Unmarshal(body, &pr); err == nil {
		out.SuccessfulTokens = pr.Result.SuccessfulTokens
		out.InvalidTokens = pr.Result.InvalidTokens
		out.RateLimitedTokens = pr.Result.RateLimitedTokens
	}
	return out, nil
}
