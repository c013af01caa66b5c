package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(aiTokensIn, aiTokensOut, aiCallsLatencyMs, aiCallsTotal) }

var aiTokensIn = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ai_tokens_in",
		Help: "Sum of prompt (input) tokens per provider/model.",
	},
	[]string{"provider", "model"},
)

var aiTokensOut = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ai_tokens_out",
		Help: "Sum of completion (output) tokens per provider/model.",
	},
	[]string{"provider", "model"},
)

var aiCallsLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ai_calls_latency_ms",
		Help:    "AI call latency distribution in milliseconds.",
		Buckets: prometheus.ExponentialBuckets(50, 2, 12),
	},
	[]string{"provider", "model"},
)

var aiCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ai_calls_total",
		Help: "AI calls per provider/model and success flag.",
	},
	[]string{"provider", "model", "ok"},
)

// ObserveAICall records usage and latency for one provider round-trip.
func ObserveAICall(provider, model string, tokensIn, tokensOut, latencyMs int, ok bool) {
	lbl := []string{norm(provider), norm(model)}
	aiTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
	aiTokensOut.WithLabelValues(lbl...).Add(float64(tokensOut))
	aiCallsLatencyMs.WithLabelValues(lbl...).Observe(float64(latencyMs))
	okStr := "false"
	if ok {
		okStr = "true"
	}
	aiCallsTotal.WithLabelValues(norm(provider), norm(model), okStr).Inc()
}
