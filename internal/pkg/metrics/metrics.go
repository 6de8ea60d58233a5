package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// 业务与 HTTP 指标，统一在 InitMetrics 里注册。
var (
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	UserRegisteredTotal    prometheus.Counter
	EmailVerifiedTotal     prometheus.Counter
	OTPIssuedTotal         prometheus.Counter
	LoginSuccessTotal      prometheus.Counter
	LoginFailedTotal       prometheus.Counter
	TaskCreatedTotal       prometheus.Counter
	TaskSharedTotal        prometheus.Counter
	RateLimitRejectedTotal prometheus.Counter

	initOnce sync.Once
)

// InitMetrics 注册所有 Prometheus 指标，幂等。
func InitMetrics() {
	initOnce.Do(func() {
		HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskmanager_http_requests_total",
			Help: "Total HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"})

		HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskmanager_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})

		UserRegisteredTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskmanager_users_registered_total",
			Help: "Total users registered.",
		})

		EmailVerifiedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskmanager_emails_verified_total",
			Help: "Total successful email verifications.",
		})

		OTPIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskmanager_otp_issued_total",
			Help: "Total verification codes issued.",
		})

		LoginSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskmanager_login_success_total",
			Help: "Total successful logins.",
		})

		LoginFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskmanager_login_failed_total",
			Help: "Total failed logins.",
		})

		TaskCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskmanager_tasks_created_total",
			Help: "Total tasks created.",
		})

		TaskSharedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskmanager_tasks_shared_total",
			Help: "Total share grants created.",
		})

		RateLimitRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskmanager_ratelimit_rejected_total",
			Help: "Total requests rejected by the auth rate limiter.",
		})

		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			UserRegisteredTotal,
			EmailVerifiedTotal,
			OTPIssuedTotal,
			LoginSuccessTotal,
			LoginFailedTotal,
			TaskCreatedTotal,
			TaskSharedTotal,
			RateLimitRejectedTotal,
		)
	})
}
