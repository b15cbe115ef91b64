package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"CredentialDesk/pkg/apperr"
)

// SMSChannel 通过 Twilio 发送短信
type SMSChannel struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	client     *http.Client
}

// NewSMSChannel 创建短信渠道
func NewSMSChannel(baseURL, accountSID, authToken, from string, timeout time.Duration) *SMSChannel {
	return &SMSChannel{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		client:     &http.Client{Timeout: timeout},
	}
}

// Configured 是否配置了凭据
func (c *SMSChannel) Configured() bool {
	return c != nil && c.accountSID != "" && c.authToken != ""
}

// Send 发送短信，表单字段 From/To/Body
func (c *SMSChannel) Send(ctx context.Context, to, body string) error {
	if !c.Configured() {
		return apperr.ExternalService("send sms", fmt.Errorf("Twilio 凭据未配置"))
	}

	apiURL := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)

	data := url.Values{}
	data.Set("From", c.from)
	data.Set("To", to)
	data.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("创建短信请求失败: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperr.ExternalService("send sms", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return apperr.ExternalService("send sms", fmt.Errorf("Twilio 返回错误 (%d): %s", resp.StatusCode, string(respBody)))
	}
	return nil
}

// smsText 短信正文
func smsText(payload Payload) string {
	return fmt.Sprintf("%s: %s", payload.Title, payload.Metadata.MessagePreview)
}
