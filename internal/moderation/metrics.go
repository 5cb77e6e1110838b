package moderation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var handleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "moderation_handle_duration_sec",
	Help: "Duration of one coordinator invocation",
}, []string{"branch"})

var branchCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_handle_branch_total",
	Help: "Number of coordinator invocations by branch taken",
}, []string{"branch"})

var transitionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_classification_transition_total",
	Help: "Number of classifications by first applied transition",
}, []string{"transition"})

var notifyFailureCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_notify_failures_total",
	Help: "Number of admin notifications that failed to deliver",
}, []string{"channel"})

var reviewCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_review_total",
	Help: "Number of admin review decisions by transition",
}, []string{"transition"})

var submitCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "moderation_submitted_total",
	Help: "Number of comments submitted for moderation",
})
