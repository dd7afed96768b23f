package metrics

import "media-downloader/internal/registry"

// RegistryListener keeps the registry counters current. Attach it with
// registry.WithListener.
type RegistryListener struct{}

// RecordAdded implements registry.Listener.
func (RegistryListener) RecordAdded(rec registry.Record) {
	RegistryRegistrationsTotal.WithLabelValues(string(rec.Kind)).Inc()
	RegistryRecordsLive.Inc()
}

// RecordRemoved implements registry.Listener.
func (RegistryListener) RecordRemoved(_ registry.Record, reason registry.Reason) {
	RegistryRemovalsTotal.WithLabelValues(string(reason)).Inc()
	RegistryRecordsLive.Dec()
}

var _ registry.Listener = RegistryListener{}
