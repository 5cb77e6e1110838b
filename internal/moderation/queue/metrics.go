package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var deliveryCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_queue_deliveries_total",
	Help: "Number of handled task deliveries by outcome",
}, []string{"queue", "outcome"})

var publishCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_queue_published_total",
	Help: "Number of tasks published",
}, []string{"queue"})
