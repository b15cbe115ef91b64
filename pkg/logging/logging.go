// Package logging 封装 logx 初始化以及请求级上下文
package logging

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"CredentialDesk/pkg/config"
)

// RequestContext 请求级上下文，随 context 传递到每一次日志调用
type RequestContext struct {
	SessionID string
	UserID    string
}

type requestKey struct{}

// Setup 根据配置初始化 logx
func Setup(cfg *config.Config) {
	logx.MustSetup(logx.LogConf{
		ServiceName: cfg.App.Name,
		Mode:        cfg.Log.Mode,
		Encoding:    cfg.Log.Encoding,
		Level:       cfg.Log.Level,
		Path:        cfg.Log.Path,
	})
	logx.DisableStat()
}

// WithRequest 把请求上下文写入 ctx，并附加 session_id / user_id 日志字段
func WithRequest(ctx context.Context, rc RequestContext) context.Context {
	ctx = context.WithValue(ctx, requestKey{}, rc)

	var fields []logx.LogField
	if rc.SessionID != "" {
		fields = append(fields, logx.Field("session_id", rc.SessionID))
	}
	if rc.UserID != "" {
		fields = append(fields, logx.Field("user_id", rc.UserID))
	}
	if len(fields) == 0 {
		return ctx
	}
	return logx.ContextWithFields(ctx, fields...)
}

// FromContext 取出请求上下文
func FromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(requestKey{}).(RequestContext)
	return rc, ok
}
