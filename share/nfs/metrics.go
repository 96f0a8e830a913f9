package nfs

import "github.com/prometheus/client_golang/prometheus"

var (
	shareOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exportd",
		Subsystem: "nfs",
		Name:      "share_operations_total",
		Help:      "Total share operations by type.",
	}, []string{"op"})

	shareOpErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exportd",
		Subsystem: "nfs",
		Name:      "share_operation_errors_total",
		Help:      "Failed share operations by type.",
	}, []string{"op"})

	// ExportedMountpoints tracks the number of distinct mountpoints in the
	// exports file. Updated by the agent reconciler.
	ExportedMountpoints = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "exportd",
		Subsystem: "nfs",
		Name:      "exported_mountpoints",
		Help:      "Current number of exported mountpoints.",
	})
)

func init() {
	prometheus.MustRegister(
		shareOpsTotal,
		shareOpErrors,
		ExportedMountpoints,
	)
}

func observeOp(op string, err *error) {
	shareOpsTotal.WithLabelValues(op).Inc()
	if *err != nil {
		shareOpErrors.WithLabelValues(op).Inc()
	}
}
