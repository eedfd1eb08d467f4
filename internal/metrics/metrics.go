// Package metrics exports editing-core counters through the Prometheus
// default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	edits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gapedit_edits_total",
		Help: "Editing operations applied, by command",
	}, []string{"command"})

	undos = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gapedit_undo_total",
		Help: "Undo log events by result (undo, redo, degraded, failed)",
	}, []string{"result"})

	alignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gapedit_alignments_total",
		Help: "Overlap alignments by method and result",
	}, []string{"method", "result"})

	joins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gapedit_joins_total",
		Help: "Contig joins by result",
	}, []string{"result"})

	events = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gapedit_events_total",
		Help: "Contig events delivered to listeners, by kind",
	}, []string{"kind"})
)

func Edit(command string)             { edits.WithLabelValues(command).Inc() }
func Undo(result string)              { undos.WithLabelValues(result).Inc() }
func Alignment(method, result string) { alignments.WithLabelValues(method, result).Inc() }
func Join(result string)              { joins.WithLabelValues(result).Inc() }
func Event(kind string)               { events.WithLabelValues(kind).Inc() }

// WriteFile writes every registered metric in text exposition format.
func WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
