// Package messenger sends text messages through the WhatsApp Cloud API.
package messenger

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/onurcolak/outreach-campaign-service/environments"
	"github.com/onurcolak/outreach-campaign-service/pkg/logger"
)

type textBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type sendTextRequest struct {
	MessagingProduct      string   `json:"messaging_product"`
	RecipientType         string   `json:"recipient_type"`
	To                    string   `json:"to"`
	Type                  string   `json:"type"`
	Text                  textBody `json:"text"`
	BizOpaqueCallbackData string   `json:"biz_opaque_callback_data,omitempty"`
}

type sendTextResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type Client struct {
	httpClient  *resty.Client
	messagesURL string
}

func NewClient(cfg environments.MessengerConfig) *Client {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetAuthToken(cfg.Token).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		messagesURL: fmt.Sprintf("%s/%s/%s/messages",
			strings.TrimRight(cfg.BaseURL, "/"), cfg.APIVersion, cfg.PhoneNumberID),
	}
}

// IdempotencyKey names one delivery attempt of a lead. A lead reclaimed after
// a crash retries the same attempt number and so sends the same key.
func IdempotencyKey(leadID int64, attempt int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("lead:%d:attempt:%d", leadID, attempt))).String()
}

// SendText delivers a plain text message on behalf of an agent and returns
// the provider message id. An empty idempotencyKey omits the header.
func (c *Client) SendText(ctx context.Context, agentID int64, address, text, idempotencyKey string) (string, error) {
	payload := sendTextRequest{
		MessagingProduct:      "whatsapp",
		RecipientType:         "individual",
		To:                    address,
		Type:                  "text",
		Text:                  textBody{Body: text},
		BizOpaqueCallbackData: fmt.Sprintf("agent:%d", agentID),
	}

	var result sendTextResponse
	var failure apiError

	startTime := time.Now()

	req := c.httpClient.R().SetContext(ctx)
	if idempotencyKey != "" {
		req.SetHeader("Idempotency-Key", idempotencyKey)
	}

	resp, err := req.
		SetBody(payload).
		SetResult(&result).
		SetError(&failure).
		Post(c.messagesURL)

	duration := time.Since(startTime)

	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	logger.Debugf("Messenger request for agent %d completed in %v (status: %d)", agentID, duration, resp.StatusCode())

	if resp.IsError() {
		if failure.Error.Message != "" {
			return "", fmt.Errorf("messenger rejected message (status %d, code %d): %s",
				resp.StatusCode(), failure.Error.Code, failure.Error.Message)
		}
		return "", fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), resp.String())
	}

	if len(result.Messages) == 0 || result.Messages[0].ID == "" {
		return "", fmt.Errorf("messenger response carried no message id")
	}

	return result.Messages[0].ID, nil
}
