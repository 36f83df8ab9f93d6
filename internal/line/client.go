package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the LINE Messaging API. Credentials are per shop, so
// every call takes the channel access token instead of holding one.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// APIError carries the non-2xx status and response body from the platform
// so handlers can attach it to their own error responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("LINE API error: %d - %s", e.StatusCode, e.Body)
}

type pushRequest struct {
	To       string    `json:"to"`
	Messages []Message `json:"messages"`
}

type replyRequest struct {
	ReplyToken string    `json:"replyToken"`
	Messages   []Message `json:"messages"`
}

// Profile is the LINE profile of an end user.
type Profile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	PictureURL  string `json:"pictureUrl"`
}

// Quota is the monthly message limit configured for a channel.
type Quota struct {
	Type  string `json:"type"` // none, limited
	Value int64  `json:"value"`
}

// QuotaConsumption is the number of messages sent this month.
type QuotaConsumption struct {
	TotalUsage int64 `json:"totalUsage"`
}

func (c *Client) sendRequest(ctx context.Context, method, path, token string, body interface{}, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		return json.Unmarshal(respBody, out)
	}
	return nil
}

// Push sends messages to a user id.
func (c *Client) Push(ctx context.Context, token, to string, messages []Message) error {
	return c.sendRequest(ctx, "POST", "/v2/bot/message/push", token, pushRequest{To: to, Messages: messages}, nil)
}

// Reply sends messages in response to a webhook event's reply token.
func (c *Client) Reply(ctx context.Context, token, replyToken string, messages []Message) error {
	return c.sendRequest(ctx, "POST", "/v2/bot/message/reply", token, replyRequest{ReplyToken: replyToken, Messages: messages}, nil)
}

// GetProfile fetches the display name and avatar of a user.
func (c *Client) GetProfile(ctx context.Context, token, userID string) (*Profile, error) {
	var p Profile
	if err := c.sendRequest(ctx, "GET", "/v2/bot/profile/"+userID, token, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetQuota fetches the channel's monthly message quota.
func (c *Client) GetQuota(ctx context.Context, token string) (*Quota, error) {
	var q Quota
	if err := c.sendRequest(ctx, "GET", "/v2/bot/message/quota", token, nil, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// GetQuotaConsumption fetches how much of the quota has been used.
func (c *Client) GetQuotaConsumption(ctx context.Context, token string) (*QuotaConsumption, error) {
	var qc QuotaConsumption
	if err := c.sendRequest(ctx, "GET", "/v2/bot/message/quota/consumption", token, nil, &qc); err != nil {
		return nil, err
	}
	return &qc, nil
}
