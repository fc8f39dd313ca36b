package metrics

import (
	"github.com/getmockd/switchboard/pkg/protocol"
)

var _ protocol.Observer = (*Metrics)(nil)

// Detected implements protocol.Observer.
func (m *Metrics) Detected(p protocol.Protocol) {
	m.DetectedTotal.WithLabelValues(string(p)).Inc()
}

// Rejected implements protocol.Observer.
func (m *Metrics) Rejected() {
	m.RejectedTotal.Inc()
}

// StatusChanged implements protocol.Observer. The status label is the
// status kind; handoff targets are counted by Handoff.
func (m *Metrics) StatusChanged(_ string, p protocol.Protocol, s protocol.Status) {
	m.TransitionsTotal.WithLabelValues(string(p), s.Kind().String()).Inc()
}

// Handoff implements protocol.Observer.
func (m *Metrics) Handoff(from, to protocol.Protocol) {
	m.HandoffsTotal.WithLabelValues(string(from), string(to)).Inc()
}

// Fault implements protocol.Observer.
func (m *Metrics) Fault(p protocol.Protocol) {
	m.FaultsTotal.WithLabelValues(string(p)).Inc()
}
