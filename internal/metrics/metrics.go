package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	DumpLinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asresolver_dump_lines_total",
			Help: "Routing dump lines read, by outcome.",
		},
		[]string{"result"},
	)

	ClassificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asresolver_classifications_total",
			Help: "Address classifications written, by outcome (match, no_match).",
		},
		[]string{"outcome"},
	)

	ParseErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asresolver_parse_errors_total",
			Help: "Parse failures by stage.",
		},
		[]string{"stage", "reason"},
	)

	StreamUnavailableTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asresolver_stream_unavailable_total",
			Help: "Input streams that could not be opened.",
		},
		[]string{"stream"},
	)

	HostLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asresolver_host_lookups_total",
			Help: "Host name arguments looked up, by result (resolved, failed).",
		},
		[]string{"result"},
	)

	RegistryEntriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "asresolver_registry_entries_total",
			Help: "AS registry entries scanned during cross-reference.",
		},
	)

	ResolvedAddresses = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "asresolver_resolved_addresses",
			Help: "Addresses by final state after a run (named, unnamed, unknown).",
		},
		[]string{"state"},
	)

	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "asresolver_phase_duration_seconds",
			Help:    "Wall time spent per run phase.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"phase"},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			DumpLinesTotal,
			ClassificationsTotal,
			ParseErrorsTotal,
			StreamUnavailableTotal,
			HostLookupsTotal,
			RegistryEntriesTotal,
			ResolvedAddresses,
			RunDuration,
		)
	})
}

// WriteTextfile writes the default registry in the node_exporter textfile
// collector format. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
