package tuya

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"smart-plug/internal/domain"
	"smart-plug/internal/infra"
)

const (
	DefaultBaseURL = "https://openapi.tuyaus.com"

	tokenPath    = "/v1.0/token?grant_type=1"
	devicesPath  = "/v1.0/iot-01/associated-users/devices"
	statusPath   = "/v1.0/iot-03/devices/%s/status"
	commandsPath = "/v1.0/iot-03/devices/%s/commands"

	codeTokenInvalid = 1010
)

// Data point codes that carry a plug's relay state, in lookup order.
var switchCodes = []string{"switch_1", "switch", "switch_led"}

// Client is a device directory over the Tuya OpenAPI. The project's client
// ID is the account identity and its secret signs every request of that
// account's session.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      infra.RetryConfig
}

func NewClient(region string, maxAttempts int) *Client {
	baseURL := DefaultBaseURL
	switch strings.ToLower(region) {
	case "eu":
		baseURL = "https://openapi.tuyaeu.com"
	case "cn":
		baseURL = "https://openapi.tuyacn.com"
	case "in":
		baseURL = "https://openapi.tuyain.com"
	}

	return NewClientWithURL(baseURL, maxAttempts)
}

func NewClientWithURL(baseURL string, maxAttempts int) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retry:      infra.DefaultRetryConfig().WithAttempts(maxAttempts),
	}
}

type response struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Result  json.RawMessage `json:"result"`
}

type dataPoint struct {
	Code  string `json:"code"`
	Value any    `json:"value"`
}

// Login exchanges the client credentials for an access token. The returned
// account carries the secret as its signing key.
func (c *Client) Login(ctx context.Context, identity, secret string) (*domain.Account, error) {
	pending := &domain.Account{Identity: identity, SigningKey: secret}

	resp, err := c.doRequest(ctx, pending, http.MethodGet, tokenPath, nil, c.retry.WithAttempts(1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAuth, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: tuya error %d: %s", domain.ErrAuth, resp.Code, resp.Msg)
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpireTime  int64  `json:"expire_time"`
		UID         string `json:"uid"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: parsing token response: %w", domain.ErrAuth, err)
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response carried no access token", domain.ErrAuth)
	}

	return &domain.Account{
		Identity:   identity,
		ID:         result.UID,
		Token:      result.AccessToken,
		SigningKey: secret,
	}, nil
}

func (c *Client) ListDevices(ctx context.Context, account *domain.Account) ([]domain.Device, error) {
	resp, err := c.doRequest(ctx, account, http.MethodGet, devicesPath, nil, c.retry)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching devices: %w", domain.ErrFetch, err)
	}
	if err := responseError(resp); err != nil {
		return nil, fmt.Errorf("%w: fetching devices: %w", domain.ErrFetch, err)
	}

	var result struct {
		Devices []struct {
			ID       string      `json:"id"`
			Name     string      `json:"name"`
			Category string      `json:"category"`
			Online   bool        `json:"online"`
			Status   []dataPoint `json:"status"`
		} `json:"devices"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: parsing devices: %w", domain.ErrFetch, err)
	}

	devices := make([]domain.Device, 0, len(result.Devices))
	for _, d := range result.Devices {
		status := domain.StatusUnknown
		if d.Online {
			_, status = switchState(d.Status)
		}
		devices = append(devices, domain.Device{
			ID:     d.ID,
			Name:   d.Name,
			Type:   categoryToType(d.Category),
			Status: status,
		})
	}

	return devices, nil
}

// Toggle emulates a toggle, which Tuya lacks: it reads the live relay state
// and commands its inverse. The command is sent exactly once.
func (c *Client) Toggle(ctx context.Context, account *domain.Account, device domain.Device) error {
	path := fmt.Sprintf(statusPath, device.ID)
	resp, err := c.doRequest(ctx, account, http.MethodGet, path, nil, c.retry)
	if err != nil {
		return fmt.Errorf("%w: reading switch state: %w", domain.ErrToggle, err)
	}
	if err := responseError(resp); err != nil {
		return fmt.Errorf("%w: reading switch state: %w", domain.ErrToggle, err)
	}

	var points []dataPoint
	if err := json.Unmarshal(resp.Result, &points); err != nil {
		return fmt.Errorf("%w: parsing switch state: %w", domain.ErrToggle, err)
	}

	code, status := switchState(points)
	if status == domain.StatusUnknown {
		return fmt.Errorf("%w: device %s reports no switch state", domain.ErrToggle, device.ID)
	}

	body, err := json.Marshal(map[string]any{
		"commands": []map[string]any{{"code": code, "value": status != domain.StatusOn}},
	})
	if err != nil {
		return fmt.Errorf("%w: marshaling command: %w", domain.ErrToggle, err)
	}

	path = fmt.Sprintf(commandsPath, device.ID)
	resp, err = c.doRequest(ctx, account, http.MethodPost, path, body, c.retry.WithAttempts(1))
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrToggle, err)
	}
	if err := responseError(resp); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrToggle, err)
	}

	return nil
}

func switchState(points []dataPoint) (string, domain.Status) {
	for _, code := range switchCodes {
		for _, p := range points {
			if p.Code != code {
				continue
			}
			if on, ok := p.Value.(bool); ok {
				if on {
					return code, domain.StatusOn
				}
				return code, domain.StatusOff
			}
		}
	}
	return "", domain.StatusUnknown
}

func responseError(resp *response) error {
	switch {
	case resp.Success:
		return nil
	case resp.Code == codeTokenInvalid:
		return fmt.Errorf("%w: tuya error %d: %s", domain.ErrAuth, resp.Code, resp.Msg)
	default:
		return fmt.Errorf("tuya error %d: %s", resp.Code, resp.Msg)
	}
}

func (c *Client) doRequest(ctx context.Context, account *domain.Account, method, path string, body []byte, retry infra.RetryConfig) (*response, error) {
	var respBody []byte
	retryErr := infra.WithRetry(ctx, retry, func() error {
		timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())

		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}

		req.Header.Set("client_id", account.Identity)
		req.Header.Set("sign", Sign(account.Identity, account.SigningKey, account.Token, timestamp, method, path, body))
		req.Header.Set("t", timestamp)
		req.Header.Set("sign_method", "HMAC-SHA256")
		if account.Token != "" {
			req.Header.Set("access_token", account.Token)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return infra.Permanent(fmt.Errorf("%w: tuya API status %d", domain.ErrAuth, resp.StatusCode))
		case infra.IsRetryableHTTPStatus(resp.StatusCode):
			return fmt.Errorf("tuya API error %d (retryable): %s", resp.StatusCode, string(respBody))
		case resp.StatusCode >= 400:
			return infra.Permanent(fmt.Errorf("tuya API error %d: %s", resp.StatusCode, string(respBody)))
		}

		return nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	var parsed response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	return &parsed, nil
}

// Sign computes the OpenAPI request signature. token is empty for the token
// request itself.
func Sign(clientID, secret, token, timestamp, method, path string, body []byte) string {
	bodyHash := sha256.Sum256(body)
	stringToSign := method + "\n" + hex.EncodeToString(bodyHash[:]) + "\n\n" + path

	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(clientID + token + timestamp + stringToSign))
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}

func categoryToType(category string) string {
	switch category {
	case "cz", "pc":
		return "plug"
	case "kg", "tdq":
		return "switch"
	case "dj", "dd", "fwd", "xdd", "dc", "tgq":
		return "light"
	default:
		return "other"
	}
}
