package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"smart-plug/internal/domain"
	"smart-plug/internal/infra"
)

// Client exposes Home Assistant switch entities as a device directory. The
// long-lived access token plays the role of the account secret.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      infra.RetryConfig
}

func NewClient(baseURL string, maxAttempts int) *Client {
	// Remove trailing slash if present
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retry:      infra.DefaultRetryConfig().WithAttempts(maxAttempts),
	}
}

// Entity represents a Home Assistant entity
type Entity struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged string                 `json:"last_changed"`
}

// Login checks the token against the API root. Home Assistant has no session
// exchange, so the token itself becomes the account's session.
func (c *Client) Login(ctx context.Context, identity, secret string) (*domain.Account, error) {
	account := &domain.Account{Identity: identity, ID: c.baseURL, Token: secret}

	resp, err := c.doRequest(ctx, account, http.MethodGet, "/api/", nil, c.retry.WithAttempts(1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAuth, err)
	}

	var result struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("%w: parsing api status: %w", domain.ErrAuth, err)
	}

	return account, nil
}

func (c *Client) ListDevices(ctx context.Context, account *domain.Account) ([]domain.Device, error) {
	resp, err := c.doRequest(ctx, account, http.MethodGet, "/api/states", nil, c.retry)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching states: %w", domain.ErrFetch, err)
	}

	var entities []Entity
	if err := json.Unmarshal(resp, &entities); err != nil {
		return nil, fmt.Errorf("%w: parsing states: %w", domain.ErrFetch, err)
	}

	devices := make([]domain.Device, 0)
	for _, e := range entities {
		if !strings.HasPrefix(e.EntityID, "switch.") {
			continue
		}

		name := e.EntityID
		if friendlyName, ok := e.Attributes["friendly_name"].(string); ok {
			name = friendlyName
		}

		// "unavailable" and "unknown" both fall through to StatusUnknown.
		devices = append(devices, domain.Device{
			ID:     e.EntityID,
			Name:   name,
			Type:   "switch",
			Status: domain.ParseStatus(e.State),
		})
	}

	return devices, nil
}

// Toggle calls switch.toggle once; it is not retried.
func (c *Client) Toggle(ctx context.Context, account *domain.Account, device domain.Device) error {
	body, err := json.Marshal(map[string]string{"entity_id": device.ID})
	if err != nil {
		return fmt.Errorf("%w: marshaling request: %w", domain.ErrToggle, err)
	}

	if _, err := c.doRequest(ctx, account, http.MethodPost, "/api/services/switch/toggle", body, c.retry.WithAttempts(1)); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrToggle, err)
	}

	return nil
}

func (c *Client) doRequest(ctx context.Context, account *domain.Account, method, path string, body []byte, retry infra.RetryConfig) ([]byte, error) {
	var respBody []byte

	retryErr := infra.WithRetry(ctx, retry, func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}

		req.Header.Set("Authorization", "Bearer "+account.Token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return infra.Permanent(fmt.Errorf("%w: check your Home Assistant token", domain.ErrAuth))
		}

		if infra.IsRetryableHTTPStatus(resp.StatusCode) {
			return fmt.Errorf("home assistant API error %d (retryable): %s", resp.StatusCode, string(respBody))
		}

		if resp.StatusCode >= 400 {
			return infra.Permanent(fmt.Errorf("home assistant API error %d: %s", resp.StatusCode, string(respBody)))
		}

		return nil
	})

	if retryErr != nil {
		return nil, retryErr
	}

	return respBody, nil
}
