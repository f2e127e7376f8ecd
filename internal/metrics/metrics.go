// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package metrics tracks daemon-internal counters with
// prometheus/client_golang, but deliberately never exposes them over an
// HTTP listener — rendering is only reachable through the IPC `stats`
// command, matching the "no remote IPC" non-goal even for observability
// surfaces. Grounded on the promauto counter/histogram declarations used
// throughout the teacher's graph package, collected here into a private
// registry instead of the default one so nothing else in the process can
// accidentally wire them to a network exporter.
package metrics

import (
	"bytes"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Registry holds every metric this daemon records. It is never
// registered with prometheus.DefaultRegisterer.
type Registry struct {
	reg *prometheus.Registry

	ScansTotal      prometheus.Counter
	ScanDuration    prometheus.Histogram
	SymbolsTotal    prometheus.Gauge
	FilesSkipped    prometheus.Counter
	WatcherErrors   prometheus.Counter
	ResyncsTotal    prometheus.Counter
	IPCConnsTotal   prometheus.Counter
	CacheStrategy   prometheus.Gauge
	PublishFailures prometheus.Counter
}

// New builds a Registry with every metric registered against a fresh
// prometheus.Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		ScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "discoveryd_scans_total",
			Help: "Number of full or subset scans completed.",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "discoveryd_scan_duration_seconds",
			Help:    "Wall-clock duration of a scan+parse+publish cycle.",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		}),
		SymbolsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "discoveryd_symbols_total",
			Help: "Number of symbols currently tracked in the metadata index.",
		}),
		FilesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "discoveryd_files_skipped_total",
			Help: "Number of files skipped for exceeding the size gate.",
		}),
		WatcherErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "discoveryd_watcher_errors_total",
			Help: "Number of filesystem watcher errors observed.",
		}),
		ResyncsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "discoveryd_resyncs_total",
			Help: "Number of full-resync batches emitted after watcher loss.",
		}),
		IPCConnsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "discoveryd_ipc_connections_total",
			Help: "Number of IPC connections accepted.",
		}),
		CacheStrategy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "discoveryd_cache_strategy",
			Help: "Currently selected cache strategy: 0=memory, 1=hybrid, 2=file.",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "discoveryd_publish_failures_total",
			Help: "Number of artifact publish attempts that failed.",
		}),
	}

	reg.MustRegister(
		m.ScansTotal, m.ScanDuration, m.SymbolsTotal, m.FilesSkipped,
		m.WatcherErrors, m.ResyncsTotal, m.IPCConnsTotal, m.CacheStrategy,
		m.PublishFailures,
	)
	return m
}

// Render encodes every metric in the Prometheus text exposition format,
// the same bytes an HTTP /metrics endpoint would serve, but delivered
// only as the IPC `stats` command's response body.
func (m *Registry) Render() (string, error) {
	families, err := m.reg.Gather()
	if err != nil {
		return "", fmt.Errorf("gathering metrics: %w", err)
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, fam := range families {
		if err := enc.Encode(fam); err != nil {
			return "", fmt.Errorf("encoding metric family %s: %w", fam.GetName(), err)
		}
	}
	return buf.String(), nil
}
