package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 核心链路指标
var (
	// RoutingRequests 外部路线服务调用计数，label: ok/empty/error
	RoutingRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "routing_requests_total",
		Help: "Routing provider calls by outcome",
	}, []string{"outcome"})

	// GroupBroadcasts 群组快照广播计数
	GroupBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "group_broadcasts_total",
		Help: "Full-snapshot group location broadcasts",
	})

	// SOSDeliveries SOS 扩散投递计数，label: group/contact
	SOSDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sos_deliveries_total",
		Help: "SOS fan-out deliveries by channel",
	}, []string{"channel"})

	// LocationUpdates 位置上报处理计数，label: ok/dropped
	LocationUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "location_updates_total",
		Help: "Location updates by outcome",
	}, []string{"outcome"})
)
