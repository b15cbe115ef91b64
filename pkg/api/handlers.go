package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"CredentialDesk/pkg/apperr"
	"CredentialDesk/pkg/classifier"
	"CredentialDesk/pkg/model"
	"CredentialDesk/pkg/monitor"
	"CredentialDesk/pkg/notify"
	"CredentialDesk/pkg/service"
)

// Handlers API处理程序
type Handlers struct {
	messages   *service.MessageService
	analyses   *service.AnalysisService
	dispatcher *notify.Dispatcher
	classifier *classifier.Classifier
	mailer     *notify.TemplateMailer
	sms        *notify.SMSChannel
	monitor    *monitor.Monitor
}

// Deps 处理程序依赖，classifier / mailer / sms / monitor 可为空
type Deps struct {
	Messages   *service.MessageService
	Analyses   *service.AnalysisService
	Dispatcher *notify.Dispatcher
	Classifier *classifier.Classifier
	Mailer     *notify.TemplateMailer
	SMS        *notify.SMSChannel
	Monitor    *monitor.Monitor
}

// NewHandlers 创建新的API处理程序
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{
		messages:   deps.Messages,
		analyses:   deps.Analyses,
		dispatcher: deps.Dispatcher,
		classifier: deps.Classifier,
		mailer:     deps.Mailer,
		sms:        deps.SMS,
		monitor:    deps.Monitor,
	}
}

// HealthCheck 健康检查处理程序
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// ReadinessCheck 就绪检查处理程序
func (h *Handlers) ReadinessCheck(c *gin.Context) {
	if h.monitor == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}

	h.monitor.RunChecks(c.Request.Context())
	if !h.monitor.Healthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": h.monitor.GetAllStatus(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"components": h.monitor.GetAllStatus(),
	})
}

// SendMessageRequest 发送消息请求
type SendMessageRequest struct {
	Body       string `json:"body"`
	SenderID   string `json:"sender_id"`
	SenderRole string `json:"sender_role"`
	ReplyTo    string `json:"reply_to"`
}

// SendMessage 发送消息
func (h *Handlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("send message", "无效的请求参数: "+err.Error()))
		return
	}
	if req.SenderID == "" {
		req.SenderID = c.GetHeader(HeaderUserID)
	}

	msg, err := h.messages.SendMessage(c.Request.Context(), service.SendRequest{
		Body:       req.Body,
		SenderID:   req.SenderID,
		SenderRole: model.Role(req.SenderRole),
		ReplyTo:    req.ReplyTo,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": msg})
}

// ListMessages 最近的消息
func (h *Handlers) ListMessages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, apperr.Validation("list messages", "limit 必须是整数"))
			return
		}
		limit = n
	}

	msgs, err := h.messages.ListMessages(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": msgs})
}

// GetThread 会话内的全部消息
func (h *Handlers) GetThread(c *gin.Context) {
	msgs, err := h.messages.Thread(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": msgs})
}

// MarkReadRequest 标记已读请求
type MarkReadRequest struct {
	ViewerRole string `json:"viewer_role" binding:"required"`
}

// MarkAsRead 标记已读
func (h *Handlers) MarkAsRead(c *gin.Context) {
	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("mark as read", "无效的请求参数: "+err.Error()))
		return
	}
	msg, err := h.messages.MarkAsRead(c.Request.Context(), c.Param("id"), model.Role(req.ViewerRole))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": msg})
}

// ClassifyMessage 同步分类一条消息
func (h *Handlers) ClassifyMessage(c *gin.Context) {
	if h.classifier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "分类服务未配置"})
		return
	}

	ctx := c.Request.Context()
	msg, err := h.messages.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	sender := classifier.SenderInfo{Role: msg.SenderRole}
	if msg.Sender != nil {
		sender.Name = msg.Sender.DisplayName()
		sender.Email = msg.Sender.Email
	}
	analysis, err := h.classifier.Classify(ctx, msg.ID, msg.Body, sender)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": analysis})
}

// ListAnalyses 消息的全部AI分析
func (h *Handlers) ListAnalyses(c *gin.Context) {
	analyses, err := h.analyses.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": analyses})
}

// LatestAnalysis 消息最新的AI分析
func (h *Handlers) LatestAnalysis(c *gin.Context) {
	analysis, err := h.analyses.Latest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": analysis})
}

// ReviewRequest 审核请求
type ReviewRequest struct {
	Approved *bool  `json:"approved" binding:"required"`
	Notes    string `json:"notes"`
}

// ReviewAnalysis 开发者审核AI分析
func (h *Handlers) ReviewAnalysis(c *gin.Context) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("review analysis", "无效的请求参数: "+err.Error()))
		return
	}
	analysis, err := h.analyses.Review(c.Request.Context(), c.Param("id"), *req.Approved, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": analysis})
}

// ProcessNotificationsRequest 通知处理请求
type ProcessNotificationsRequest struct {
	MessageID string `json:"message_id" binding:"required"`
}

// ProcessNotifications 处理消息的待发送通知。
// 逐个接收人处理之前的任何错误都返回 500。
func (h *Handlers) ProcessNotifications(c *gin.Context) {
	var req ProcessNotificationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("process notifications", "无效的请求参数: "+err.Error()))
		return
	}

	result, err := h.dispatcher.ProcessMessageNotifications(c.Request.Context(), req.MessageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"sent":    result.Sent,
		"failed":  result.Failed,
		"details": result.Details,
	})
}

// TemplateEmailRequest 模板邮件请求
type TemplateEmailRequest struct {
	Type      string                 `json:"type" binding:"required"`
	To        string                 `json:"to" binding:"required"`
	FirstName string                 `json:"firstName"`
	Data      map[string]interface{} `json:"data"`
}

// SendTemplateEmail 发送邀请、欢迎等模板邮件
func (h *Handlers) SendTemplateEmail(c *gin.Context) {
	if h.mailer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "邮件服务未配置"})
		return
	}
	var req TemplateEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("send template email", "无效的请求参数: "+err.Error()))
		return
	}

	err := h.mailer.Send(c.Request.Context(), notify.TemplateEmail{
		Type:      req.Type,
		To:        req.To,
		FirstName: req.FirstName,
		Data:      req.Data,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SMSRequest 短信请求
type SMSRequest struct {
	To   string `json:"to" binding:"required"`
	Body string `json:"body" binding:"required"`
}

// SendSMS 直接发送一条短信
func (h *Handlers) SendSMS(c *gin.Context) {
	if !h.sms.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "短信服务未配置"})
		return
	}
	var req SMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("send sms", "无效的请求参数: "+err.Error()))
		return
	}
	if err := h.sms.Send(c.Request.Context(), req.To, req.Body); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
