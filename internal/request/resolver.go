package request

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	// dnsStatusNoError and dnsStatusNXDomain are DNS RCODEs in the JSON
	// resolver response.
	dnsStatusNoError  = 0
	dnsStatusNXDomain = 3

	defaultDoHTimeout = 2 * time.Second
)

// DoHResolver performs DNS existence checks against a DNS-over-HTTPS JSON
// endpoint (the dns.google/resolve wire shape). It is a short side request;
// callers treat any transport or server failure as fail-open.
type DoHResolver struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewDoHResolver constructs a resolver for baseURL, e.g.
// "https://dns.google". timeout <= 0 falls back to a 2s default.
func NewDoHResolver(baseURL string, timeout time.Duration, logger *zap.Logger) *DoHResolver {
	if timeout <= 0 {
		timeout = defaultDoHTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DoHResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type dohResponse struct {
	Status int `json:"Status"`
	Answer []struct {
		Name string `json:"name"`
		Type int    `json:"type"`
		Data string `json:"data"`
	} `json:"Answer"`
}

// Resolve queries an A record for host. It returns false only when the
// resolver explicitly reports no answer (NXDOMAIN or an empty answer
// section); every other failure is an error the caller fails open on.
func (r *DoHResolver) Resolve(ctx context.Context, host string) (bool, error) {
	endpoint := fmt.Sprintf("%s/resolve?name=%s&type=A", r.baseURL, url.QueryEscape(host))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("build resolver request: %w", err)
	}
	req.Header.Set("Accept", "application/dns-json")

	resp, err := r.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("resolver request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.Debug("close resolver response", zap.Error(cerr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("resolver status %d", resp.StatusCode)
	}
	var body dohResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode resolver response: %w", err)
	}
	switch {
	case body.Status == dnsStatusNXDomain:
		return false, nil
	case body.Status == dnsStatusNoError && len(body.Answer) == 0:
		return false, nil
	case body.Status != dnsStatusNoError:
		return false, fmt.Errorf("resolver rcode %d", body.Status)
	default:
		return true, nil
	}
}
