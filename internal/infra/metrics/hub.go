package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(hubSubscribers, hubEventsPublishedTotal, hubSubscribersDroppedTotal) }

var hubSubscribers = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "progress_hub_subscribers",
		Help: "Currently connected progress-stream subscribers across all owners.",
	},
)

var hubEventsPublishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "progress_hub_events_published_total",
		Help: "Progress events published to the broadcast hub, labeled by kind.",
	},
	[]string{"kind"},
)

var hubSubscribersDroppedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "progress_hub_subscribers_dropped_total",
		Help: "Subscribers dropped because their delivery queue filled up.",
	},
)

func IncHubSubscribers() { hubSubscribers.Inc() }

func DecHubSubscribers() { hubSubscribers.Dec() }

func IncHubEvent(kind string) { hubEventsPublishedTotal.WithLabelValues(norm(kind)).Inc() }

func IncHubDropped() { hubSubscribersDroppedTotal.Inc() }
