package vesync

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"smart-plug/internal/domain"
	"smart-plug/internal/infra"
)

const (
	DefaultBaseURL = "https://smartapi.vesync.com"

	loginPath   = "/cloud/v1/user/login"
	devicesPath = "/cloud/v1/deviceManaged/devices"
	togglePath  = "/cloud/v1/deviceManaged/deviceToggle"

	appVersion = "2.8.6"
	pageSize   = 100

	// Response codes for a token the service no longer accepts.
	codeTokenExpired = -11012022
	codeTokenInvalid = -11001000
)

// Client talks to the VeSync cloud account API.
type Client struct {
	baseURL    string
	timeZone   string
	httpClient *http.Client
	retry      infra.RetryConfig
}

func NewClient(timeZone string, maxAttempts int) *Client {
	return NewClientWithURL(DefaultBaseURL, timeZone, maxAttempts)
}

func NewClientWithURL(baseURL, timeZone string, maxAttempts int) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		timeZone:   timeZone,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retry:      infra.DefaultRetryConfig().WithAttempts(maxAttempts),
	}
}

type envelope struct {
	Code   int             `json:"code"`
	Msg    string          `json:"msg"`
	Result json.RawMessage `json:"result"`
}

type baseRequest struct {
	AcceptLanguage string `json:"acceptLanguage"`
	AppVersion     string `json:"appVersion"`
	PhoneBrand     string `json:"phoneBrand"`
	PhoneOS        string `json:"phoneOS"`
	TimeZone       string `json:"timeZone"`
	TraceID        string `json:"traceId"`
	Method         string `json:"method"`
}

func (c *Client) base(method string) baseRequest {
	return baseRequest{
		AcceptLanguage: "en",
		AppVersion:     appVersion,
		PhoneBrand:     "smart-plug",
		PhoneOS:        "linux",
		TimeZone:       c.timeZone,
		TraceID:        strconv.FormatInt(time.Now().Unix(), 10),
		Method:         method,
	}
}

// Login is attempted once. A failed login ends the control attempt that
// needed it.
func (c *Client) Login(ctx context.Context, identity, secret string) (*domain.Account, error) {
	sum := md5.Sum([]byte(secret))
	req := struct {
		baseRequest
		Email    string `json:"email"`
		Password string `json:"password"`
		DevToken string `json:"devToken"`
		UserType string `json:"userType"`
	}{
		baseRequest: c.base("login"),
		Email:       identity,
		Password:    hex.EncodeToString(sum[:]),
		UserType:    "1",
	}

	env, err := c.post(ctx, loginPath, req, c.retry.WithAttempts(1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAuth, err)
	}
	if env.Code != 0 {
		return nil, fmt.Errorf("%w: vesync error %d: %s", domain.ErrAuth, env.Code, env.Msg)
	}

	var result struct {
		AccountID string `json:"accountID"`
		Token     string `json:"token"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: parsing login result: %w", domain.ErrAuth, err)
	}
	if result.Token == "" || result.AccountID == "" {
		return nil, fmt.Errorf("%w: login returned no session", domain.ErrAuth)
	}

	return &domain.Account{
		Identity: identity,
		ID:       result.AccountID,
		Token:    result.Token,
	}, nil
}

func (c *Client) ListDevices(ctx context.Context, account *domain.Account) ([]domain.Device, error) {
	req := struct {
		baseRequest
		Token     string `json:"token"`
		AccountID string `json:"accountID"`
		PageNo    int    `json:"pageNo"`
		PageSize  int    `json:"pageSize"`
	}{
		baseRequest: c.base("devices"),
		Token:       account.Token,
		AccountID:   account.ID,
		PageNo:      1,
		PageSize:    pageSize,
	}

	env, err := c.post(ctx, devicesPath, req, c.retry)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching devices: %w", domain.ErrFetch, err)
	}
	if err := codeError(env); err != nil {
		return nil, fmt.Errorf("%w: fetching devices: %w", domain.ErrFetch, err)
	}

	var result struct {
		List []struct {
			CID              string `json:"cid"`
			DeviceName       string `json:"deviceName"`
			DeviceType       string `json:"deviceType"`
			DeviceStatus     string `json:"deviceStatus"`
			ConnectionStatus string `json:"connectionStatus"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: parsing devices: %w", domain.ErrFetch, err)
	}

	devices := make([]domain.Device, 0, len(result.List))
	for _, d := range result.List {
		devices = append(devices, domain.Device{
			ID:     d.CID,
			Name:   d.DeviceName,
			Type:   d.DeviceType,
			Status: reportedStatus(d.DeviceStatus, d.ConnectionStatus),
		})
	}

	return devices, nil
}

// Toggle sends exactly one request. A retried toggle could flip the plug twice.
func (c *Client) Toggle(ctx context.Context, account *domain.Account, device domain.Device) error {
	req := struct {
		baseRequest
		Token     string `json:"token"`
		AccountID string `json:"accountID"`
		CID       string `json:"cid"`
	}{
		baseRequest: c.base("deviceToggle"),
		Token:       account.Token,
		AccountID:   account.ID,
		CID:         device.ID,
	}

	env, err := c.post(ctx, togglePath, req, c.retry.WithAttempts(1))
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrToggle, err)
	}
	if err := codeError(env); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrToggle, err)
	}

	return nil
}

// reportedStatus treats an offline device's last report as stale.
func reportedStatus(deviceStatus, connectionStatus string) domain.Status {
	if !strings.EqualFold(connectionStatus, "online") {
		return domain.StatusUnknown
	}
	return domain.ParseStatus(deviceStatus)
}

func codeError(env *envelope) error {
	switch env.Code {
	case 0:
		return nil
	case codeTokenExpired, codeTokenInvalid:
		return fmt.Errorf("%w: vesync error %d: %s", domain.ErrAuth, env.Code, env.Msg)
	default:
		return fmt.Errorf("vesync error %d: %s", env.Code, env.Msg)
	}
}

func (c *Client) post(ctx context.Context, path string, payload any, retry infra.RetryConfig) (*envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var respBody []byte
	retryErr := infra.WithRetry(ctx, retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
		req.Header.Set("User-Agent", "okhttp/3.12.1")

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
			return infra.Permanent(fmt.Errorf("%w: vesync API status %d", domain.ErrAuth, resp.StatusCode))
		case infra.IsRetryableHTTPStatus(resp.StatusCode):
			return fmt.Errorf("vesync API error %d (retryable): %s", resp.StatusCode, string(respBody))
		case resp.StatusCode >= 400:
			return infra.Permanent(fmt.Errorf("vesync API error %d: %s", resp.StatusCode, string(respBody)))
		}

		return nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	return &env, nil
}
