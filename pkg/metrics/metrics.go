// Package metrics 定义进程内的 Prometheus 指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsTotal 通知处理结果，status: sent / failed
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credentialdesk",
		Name:      "notifications_total",
		Help:      "Notification log rows processed by the dispatcher.",
	}, []string{"status"})

	// ClassificationsTotal 分类结果，result: ok / parse_error / llm_error / store_error
	ClassificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credentialdesk",
		Name:      "classifications_total",
		Help:      "AI classification attempts by outcome.",
	}, []string{"result"})

	// MessagesSentTotal 按发送方角色统计消息数
	MessagesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credentialdesk",
		Name:      "messages_sent_total",
		Help:      "Messages stored by the send path.",
	}, []string{"sender_role"})

	// JobsEnqueueFailures 通知任务入队失败次数
	JobsEnqueueFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "credentialdesk",
		Name:      "notification_enqueue_failures_total",
		Help:      "Notification jobs that could not be handed to the queue.",
	})
)
