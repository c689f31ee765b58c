package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/okq550/muslim-compnion-sub002/internal/core/port"
)

// AuthMetrics implements port.AuthMetrics with Prometheus counters.
type AuthMetrics struct {
	logins        *prometheus.CounterVec
	lockouts      prometheus.Counter
	rateLimited   *prometheus.CounterVec
	tokenReuse    prometheus.Counter
	storeDegraded *prometheus.CounterVec
}

// NewAuthMetrics constructs and registers the authentication counters. An
// already registered collector is reused, so repeated construction in tests
// is safe.
func NewAuthMetrics(reg prometheus.Registerer) (*AuthMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts partitioned by outcome.",
	}, []string{"outcome"})
	if err := registerCounterVec(reg, &logins); err != nil {
		return nil, err
	}

	lockouts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "account_lockouts_total",
		Help:      "Total number of accounts locked after repeated failures.",
	})
	if err := registerCounter(reg, &lockouts); err != nil {
		return nil, err
	}

	rateLimited := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "rate_limited_total",
		Help:      "Total number of requests rejected by a rate-limit tier, partitioned by endpoint class.",
	}, []string{"endpoint_class"})
	if err := registerCounterVec(reg, &rateLimited); err != nil {
		return nil, err
	}

	tokenReuse := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "token_reuse_detected_total",
		Help:      "Total number of refresh token reuse detections.",
	})
	if err := registerCounter(reg, &tokenReuse); err != nil {
		return nil, err
	}

	storeDegraded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "store_degraded_total",
		Help:      "Total number of operations that fell back to degraded mode because the counter store was unreachable, partitioned by component.",
	}, []string{"component"})
	if err := registerCounterVec(reg, &storeDegraded); err != nil {
		return nil, err
	}

	return &AuthMetrics{
		logins:        logins,
		lockouts:      lockouts,
		rateLimited:   rateLimited,
		tokenReuse:    tokenReuse,
		storeDegraded: storeDegraded,
	}, nil
}

func registerCounter(reg prometheus.Registerer, counter *prometheus.Counter) error {
	if err := reg.Register(*counter); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return fmt.Errorf("register counter: %w", err)
		}
		existing, ok := already.ExistingCollector.(prometheus.Counter)
		if !ok {
			return fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		*counter = existing
	}
	return nil
}

func registerCounterVec(reg prometheus.Registerer, vec **prometheus.CounterVec) error {
	if err := reg.Register(*vec); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return fmt.Errorf("register counter vec: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		*vec = existing
	}
	return nil
}

// IncLogin counts a login attempt by outcome.
func (m *AuthMetrics) IncLogin(outcome string) {
	m.logins.WithLabelValues(outcome).Inc()
}

// IncLockout counts a newly armed account lockout.
func (m *AuthMetrics) IncLockout() {
	m.lockouts.Inc()
}

// IncRateLimited counts a rejected request by endpoint class.
func (m *AuthMetrics) IncRateLimited(class string) {
	m.rateLimited.WithLabelValues(class).Inc()
}

// IncTokenReuse counts a refresh token reuse detection.
func (m *AuthMetrics) IncTokenReuse() {
	m.tokenReuse.Inc()
}

// IncStoreDegraded counts a degraded-mode fallback by component.
func (m *AuthMetrics) IncStoreDegraded(component string) {
	m.storeDegraded.WithLabelValues(component).Inc()
}

var _ port.AuthMetrics = (*AuthMetrics)(nil)
