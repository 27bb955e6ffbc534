package middleware

import (
	"net/http"
	"time"

	"openprices_sync/metrics"
)

// PrometheusMiddleware records method, host, status and time to headers of
// every outbound request.
func PrometheusMiddleware(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		start := time.Now()

		resp, err := next.RoundTrip(r)

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		metrics.RecordRequest(r.Method, r.URL.Host, status, time.Since(start))
		return resp, err
	})
}
