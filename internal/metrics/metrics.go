// Package metrics provides Prometheus metrics for the workflow engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts total workflow runs by final status.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reelforge",
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Total number of workflow runs by final status",
		},
		[]string{"status"}, // "completed", "failed", "cancelled"
	)

	// RunsActive tracks currently executing runs.
	RunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reelforge",
			Subsystem: "engine",
			Name:      "runs_active",
			Help:      "Number of currently executing workflow runs",
		},
	)

	// RunDuration tracks end-to-end run duration.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reelforge",
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"status"},
	)

	// NodesTotal counts node executions by node type and status.
	NodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reelforge",
			Subsystem: "engine",
			Name:      "nodes_total",
			Help:      "Total number of node executions by type and status",
		},
		[]string{"type", "status"}, // status: "completed", "failed"
	)

	// NodeDuration tracks node execution duration by node type.
	NodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reelforge",
			Subsystem: "engine",
			Name:      "node_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	// GenerationsTotal counts generation backend calls by model and outcome.
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reelforge",
			Subsystem: "engine",
			Name:      "generations_total",
			Help:      "Total number of generation backend calls",
		},
		[]string{"model", "result"}, // result: "success", "error"
	)

	// GenerationDuration tracks generation backend latency.
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reelforge",
			Subsystem: "engine",
			Name:      "generation_duration_seconds",
			Help:      "Generation backend call duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"model"},
	)

	// FanoutSize tracks the number of items per batched generation.
	FanoutSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "reelforge",
			Subsystem: "engine",
			Name:      "fanout_size",
			Help:      "Number of items per batched generation",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
		},
	)

	// EventsTotal counts events emitted by type.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reelforge",
			Subsystem: "engine",
			Name:      "events_total",
			Help:      "Total number of run events emitted",
		},
		[]string{"type"},
	)

	// CreditsSpent tracks credits deducted per model.
	CreditsSpent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reelforge",
			Subsystem: "credits",
			Name:      "spent_total",
			Help:      "Total credits deducted",
		},
		[]string{"model"},
	)

	// CreditsRefunded tracks credits returned after failed generations.
	CreditsRefunded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reelforge",
			Subsystem: "credits",
			Name:      "refunded_total",
			Help:      "Total credits refunded",
		},
		[]string{"model"},
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reelforge",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reelforge",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// SSEClientsActive tracks connected event stream clients.
	SSEClientsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reelforge",
			Subsystem: "api",
			Name:      "sse_clients_active",
			Help:      "Number of connected event stream clients",
		},
	)
)
