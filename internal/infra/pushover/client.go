package pushover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"smart-plug/internal/application"
	"smart-plug/internal/domain"
)

const defaultURL = "https://api.pushover.net/1/messages.json"

// Pushover message priorities.
const (
	priorityQuiet  = -1
	priorityNormal = 0
	priorityHigh   = 1
)

// Client sends plug outcomes as Pushover messages.
type Client struct {
	token      string
	userKey    string
	url        string
	httpClient *http.Client
}

func NewClient(token, userKey string) *Client {
	return NewClientWithURL(token, userKey, defaultURL)
}

func NewClientWithURL(token, userKey, endpoint string) *Client {
	return &Client{
		token:      token,
		userKey:    userKey,
		url:        endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify posts n. Failures ring through; routine changes arrive silently.
func (c *Client) Notify(ctx context.Context, n application.Notification) error {
	if c.token == "" || c.userKey == "" {
		return nil
	}

	data := url.Values{}
	data.Set("token", c.token)
	data.Set("user", c.userKey)
	data.Set("title", "Smart Plug: "+n.Device)
	data.Set("message", n.Message)
	data.Set("priority", strconv.Itoa(priority(n.Outcome)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Status int      `json:"status"`
		Errors []string `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("pushover error: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK || result.Status != 1 {
		return fmt.Errorf("pushover error: %s: %s", resp.Status, strings.Join(result.Errors, "; "))
	}

	return nil
}

func priority(o domain.Outcome) int {
	switch o {
	case domain.OutcomeError:
		return priorityHigh
	case domain.OutcomeToggledBlindly:
		return priorityNormal
	default:
		return priorityQuiet
	}
}
