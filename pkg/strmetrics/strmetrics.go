// Package strmetrics wires the transport core's runtime counters into a
// github.com/VictoriaMetrics/metrics.Set, in the style of
// pkg/api/api0's lazily-initialized metrics struct.
package strmetrics

import (
	"io"
	"sync"

	"github.com/VictoriaMetrics/metrics"
)

var (
	set  *metrics.Set
	once sync.Once

	ArrivalsTotal           *metrics.Counter
	ArrivalBytes            *metrics.Counter
	DeparturesSentTotal     *metrics.Counter
	DeparturesFailedTotal   *metrics.Counter
	ReassemblyDurationSec   *metrics.Histogram
	DockerTickDurationSec   *metrics.Histogram
	connectionsByState      struct {
		def, preparing, ready, maintaining, expired, err *metrics.Counter
	}
)

func m() *metrics.Set {
	once.Do(func() {
		set = metrics.NewSet()
		ArrivalsTotal = set.NewCounter(`startrek_arrivals_total`)
		ArrivalBytes = set.NewCounter(`startrek_arrival_bytes_total`)
		DeparturesSentTotal = set.NewCounter(`startrek_departures_sent_total`)
		DeparturesFailedTotal = set.NewCounter(`startrek_departures_failed_total`)
		ReassemblyDurationSec = set.NewHistogram(`startrek_reassembly_duration_seconds`)
		DockerTickDurationSec = set.NewHistogram(`startrek_docker_tick_duration_seconds`)
		connectionsByState.def = set.NewCounter(`startrek_connections_by_state_total{state="default"}`)
		connectionsByState.preparing = set.NewCounter(`startrek_connections_by_state_total{state="preparing"}`)
		connectionsByState.ready = set.NewCounter(`startrek_connections_by_state_total{state="ready"}`)
		connectionsByState.maintaining = set.NewCounter(`startrek_connections_by_state_total{state="maintaining"}`)
		connectionsByState.expired = set.NewCounter(`startrek_connections_by_state_total{state="expired"}`)
		connectionsByState.err = set.NewCounter(`startrek_connections_by_state_total{state="error"}`)
	})
	return set
}

// RecordStateTransition increments the by-state counter matching
// stateName, the lowercase string form of conn.State
// (passed as a string to avoid an import cycle with pkg/conn).
func RecordStateTransition(stateName string) {
	m()
	switch stateName {
	case "default":
		connectionsByState.def.Inc()
	case "preparing":
		connectionsByState.preparing.Inc()
	case "ready":
		connectionsByState.ready.Inc()
	case "maintaining":
		connectionsByState.maintaining.Inc()
	case "expired":
		connectionsByState.expired.Inc()
	case "error":
		connectionsByState.err.Inc()
	}
}

// WritePrometheus renders every registered metric in the Prometheus
// text exposition format.
func WritePrometheus(w io.Writer) {
	m().WritePrometheus(w)
}

func init() {
	m()
}
