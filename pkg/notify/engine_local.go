package notify

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/time/rate"

	"CredentialDesk/pkg/config"
	"CredentialDesk/pkg/model"
)

// LocalEngine 进程内的多渠道投递：邮件必发，有手机号且短信已配置时再发短信
type LocalEngine struct {
	email    *EmailChannel
	sms      *SMSChannel
	limiters map[model.NotificationChannel]*rate.Limiter
}

// NewLocalEngine 创建本地引擎，rps 为每个渠道每秒允许的请求数
func NewLocalEngine(email *EmailChannel, sms *SMSChannel, rps float64) *LocalEngine {
	if rps <= 0 {
		rps = 10
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &LocalEngine{
		email: email,
		sms:   sms,
		limiters: map[model.NotificationChannel]*rate.Limiter{
			model.ChannelEmail: rate.NewLimiter(rate.Limit(rps), burst),
			model.ChannelSMS:   rate.NewLimiter(rate.Limit(rps), burst),
		},
	}
}

// Send 依次尝试各渠道，单个渠道失败不影响其它渠道
func (e *LocalEngine) Send(ctx context.Context, payload Payload) (*EngineResult, error) {
	logger := logx.WithContext(ctx)
	result := &EngineResult{}

	if e.email != nil {
		res := ChannelResult{Channel: model.ChannelEmail}
		if err := e.wait(ctx, model.ChannelEmail); err != nil {
			res.Error = err.Error()
		} else if id, err := e.email.Send(ctx, payload); err != nil {
			res.Error = err.Error()
			logger.Errorf("邮件发送给 %s 失败: %v", payload.Recipient.Email, err)
		} else {
			res.Success = true
			logger.Infof("邮件已发送给 %s, id=%s", payload.Recipient.Email, id)
		}
		result.Results = append(result.Results, res)
	}

	if payload.Recipient.Phone != "" && e.sms.Configured() {
		res := ChannelResult{Channel: model.ChannelSMS}
		if err := e.wait(ctx, model.ChannelSMS); err != nil {
			res.Error = err.Error()
		} else if err := e.sms.Send(ctx, payload.Recipient.Phone, smsText(payload)); err != nil {
			res.Error = err.Error()
			logger.Errorf("短信发送给 %s 失败: %v", payload.Recipient.Phone, err)
		} else {
			res.Success = true
		}
		result.Results = append(result.Results, res)
	}

	return result, nil
}

func (e *LocalEngine) wait(ctx context.Context, channel model.NotificationChannel) error {
	if err := e.limiters[channel].Wait(ctx); err != nil {
		return fmt.Errorf("%s 渠道限流等待失败: %w", channel, err)
	}
	return nil
}

// NewEngine 根据配置选择投递引擎
func NewEngine(cfg *config.Config) (Engine, error) {
	n := cfg.Notification
	switch n.EngineMode {
	case "http":
		if n.EngineURL == "" {
			return nil, fmt.Errorf("http 模式需要配置 notification.engine_url")
		}
		return NewHTTPEngine(n.EngineURL, n.EngineKey, n.Timeout), nil
	case "local", "":
		email := NewEmailChannel(n.Resend.BaseURL, n.Resend.APIKey, n.Resend.From, n.Timeout)
		sms := NewSMSChannel(n.Twilio.BaseURL, n.Twilio.AccountSID, n.Twilio.AuthToken, n.Twilio.From, n.Timeout)
		return NewLocalEngine(email, sms, n.ChannelRPS), nil
	default:
		return nil, fmt.Errorf("未知的通知引擎模式: %s", n.EngineMode)
	}
}
