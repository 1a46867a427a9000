package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all service metrics
const namespace = "eventreg"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "ledger_backend"},
)

// RegistrationOperationsTotal counts registration operations by outcome code
var RegistrationOperationsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registration_operations_total",
		Help:      "Total registration operations by operation and outcome code",
	},
	[]string{"operation", "code"},
)

// RegistrationOperationDuration records end-to-end service latency
var RegistrationOperationDuration = promauto.With(Registry).NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "registration_operation_duration_seconds",
		Help:      "Registration operation latency in seconds, including retries",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	},
	[]string{"operation"},
)

// RegistrationRetriesTotal counts retries caused by transient failures
var RegistrationRetriesTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registration_retries_total",
		Help:      "Total retries of registration operations after transient failures",
	},
	[]string{"operation"},
)

// DirectoryLookupsTotal tracks event directory cache efficiency
var DirectoryLookupsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "directory_lookups_total",
		Help:      "Event directory lookups by cache result",
	},
	[]string{"result"}, // result: hit|miss
)

// NotificationFailuresTotal counts lifecycle notifications that could not be published
var NotificationFailuresTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_failures_total",
		Help:      "Registration lifecycle notifications that failed to publish",
	},
	[]string{"subject"},
)

// Init registers runtime collectors and sets version information
func Init(version, ledgerBackend string) {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	AppInfo.WithLabelValues(version, ledgerBackend).Set(1)
}
