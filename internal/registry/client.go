// Package registry talks to the CMS NPPES NPI registry. Lookups confirm that
// an NPI that passed the checksum actually belongs to an enumerated provider.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rosterparse/internal"
	"rosterparse/internal/config"
)

type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
}

type apiResponse struct {
	ResultCount int             `json:"result_count"`
	Results     []apiResult     `json:"results"`
	Errors      json.RawMessage `json:"Errors"`
}

type apiResult struct {
	Number          string   `json:"number"`
	EnumerationType string   `json:"enumeration_type"`
	Basic           apiBasic `json:"basic"`
}

type apiBasic struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	OrganizationName string `json:"organization_name"`
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.RegistryTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.RegistryRateLimitRPS),
	}
}

// Lookup queries NPPES for one NPI. A valid query that matches no provider
// returns a record with Found=false, not an error.
func (c *Client) Lookup(ctx context.Context, npi string) (internal.RegistryRecord, error) {
	npi = strings.TrimSpace(npi)
	if len(npi) != 10 {
		return internal.RegistryRecord{}, fmt.Errorf("npi must be 10 digits, got %q", npi)
	}

	body, err := c.fetchJSON(ctx, map[string]string{"version": "2.1", "number": npi})
	if err != nil {
		return internal.RegistryRecord{}, err
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return internal.RegistryRecord{}, err
	}
	if len(resp.Errors) > 0 && string(resp.Errors) != "null" {
		return internal.RegistryRecord{}, fmt.Errorf("nppes api error: %s", string(resp.Errors))
	}

	record := internal.RegistryRecord{NPI: npi}
	if resp.ResultCount == 0 || len(resp.Results) == 0 {
		return record, nil
	}

	result := resp.Results[0]
	record.Found = true
	record.Type = result.EnumerationType
	if result.Basic.OrganizationName != "" {
		record.Name = result.Basic.OrganizationName
	} else {
		record.Name = strings.TrimSpace(result.Basic.FirstName + " " + result.Basic.LastName)
	}
	return record, nil
}

func (c *Client) fetchJSON(ctx context.Context, params map[string]string) ([]byte, error) {
	u, err := url.Parse(strings.TrimRight(c.cfg.RegistryBaseURL, "/") + "/")
	if err != nil {
		return nil, err
	}

	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		c.limiter.WaitTurn()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < 5 {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				time.Sleep(backoff)
				lastErr = fmt.Errorf("nppes status %d", resp.StatusCode)
				continue
			}
			return nil, fmt.Errorf("nppes api error: status=%d body=%s", resp.StatusCode, string(body))
		}
		return body, nil
	}

	if lastErr == nil {
		lastErr = errors.New("nppes request failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
