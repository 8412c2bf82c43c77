package daemon

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	requestsSeen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vrf_requests_seen",
		Help: "Incremented for each request log decoded from the chain.",
	})
	decodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vrf_decode_failures",
		Help: "Incremented for each malformed request log skipped.",
	})
	proofsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vrf_proofs_generated",
		Help: "Incremented for each round a proof was generated for.",
	})
	submissionAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vrf_submission_attempts",
		Help: "Incremented for each fulfillment transaction sent.",
	})
	submissionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vrf_submission_retries",
		Help: "Incremented for each retryable submission failure.",
	})
	roundsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vrf_rounds_confirmed",
		Help: "Incremented for each round confirmed at the configured depth.",
	})
	roundsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vrf_rounds_failed",
		Help: "Incremented for each round that needs operator action.",
	})
)

// ServeMetrics exposes the Prometheus endpoint on addr. Blocks, so run it
// in its own goroutine.
func ServeMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Infof("serving metrics at %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Errorf("metrics server stopped: %v", err)
	}
}
