package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/tenantgate"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Identity metrics
	IdentityResolvesTotal   metric.Int64Counter
	TenantsProvisionedTotal metric.Int64Counter
	UsersProvisionedTotal   metric.Int64Counter
	TenantRenamesTotal      metric.Int64Counter

	// Gateway metrics
	AuthFailuresTotal  metric.Int64Counter
	ProxyRequestsTotal metric.Int64Counter
	ProxyTimeoutsTotal metric.Int64Counter
	ProxyErrorsTotal   metric.Int64Counter
	ProxyDuration      metric.Float64Histogram

	// Key source metrics
	KeyFetchesTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Identity metrics
	m.IdentityResolvesTotal, _ = meter.Int64Counter(
		"tenantgate.identity.resolves.total",
		metric.WithDescription("Total number of successful identity resolutions"),
		metric.WithUnit("{resolve}"),
	)

	m.TenantsProvisionedTotal, _ = meter.Int64Counter(
		"tenantgate.identity.tenants_provisioned.total",
		metric.WithDescription("Total number of tenants created on first contact"),
		metric.WithUnit("{tenant}"),
	)

	m.UsersProvisionedTotal, _ = meter.Int64Counter(
		"tenantgate.identity.users_provisioned.total",
		metric.WithDescription("Total number of users created on first contact"),
		metric.WithUnit("{user}"),
	)

	m.TenantRenamesTotal, _ = meter.Int64Counter(
		"tenantgate.identity.tenant_renames.total",
		metric.WithDescription("Total number of tenant renames applied"),
		metric.WithUnit("{rename}"),
	)

	// Gateway metrics
	m.AuthFailuresTotal, _ = meter.Int64Counter(
		"tenantgate.gateway.auth_failures.total",
		metric.WithDescription("Total number of rejected bearer tokens"),
		metric.WithUnit("{request}"),
	)

	m.ProxyRequestsTotal, _ = meter.Int64Counter(
		"tenantgate.proxy.requests.total",
		metric.WithDescription("Total number of requests forwarded to downstream services"),
		metric.WithUnit("{request}"),
	)

	m.ProxyTimeoutsTotal, _ = meter.Int64Counter(
		"tenantgate.proxy.timeouts.total",
		metric.WithDescription("Total number of forwarded requests abandoned after the proxy timeout"),
		metric.WithUnit("{request}"),
	)

	m.ProxyErrorsTotal, _ = meter.Int64Counter(
		"tenantgate.proxy.errors.total",
		metric.WithDescription("Total number of forwarded requests that failed in transport"),
		metric.WithUnit("{error}"),
	)

	m.ProxyDuration, _ = meter.Float64Histogram(
		"tenantgate.proxy.duration",
		metric.WithDescription("Duration of forwarded requests"),
		metric.WithUnit("ms"),
	)

	// Key source metrics
	m.KeyFetchesTotal, _ = meter.Int64Counter(
		"tenantgate.keys.fetches.total",
		metric.WithDescription("Total number of verification key set fetches"),
		metric.WithUnit("{fetch}"),
	)

	return m
}
