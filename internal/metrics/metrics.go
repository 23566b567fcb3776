// Package metrics wires chain, blockpool, and per-sender statistics into
// a Prometheus registry for exposition through internal/status.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the metrics jive5ged exports, along with the
// prometheus.Registry they're registered against.
type Registry struct {
	reg *prometheus.Registry

	ChainBytes       *prometheus.CounterVec
	BlockpoolInUse   *prometheus.GaugeVec
	BlockpoolHighWM  *prometheus.GaugeVec
	SenderLossTotal  *prometheus.CounterVec
	SenderPktTotal   *prometheus.CounterVec
}

// New builds a fresh registry with all collectors registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		reg: reg,
		ChainBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jive5ge",
			Subsystem: "chain",
			Name:      "bytes_total",
			Help:      "Bytes moved through a chain, by chain name and stage name.",
		}, []string{"chain", "stage"}),
		BlockpoolInUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "jive5ge",
			Subsystem: "blockpool",
			Name:      "outstanding_blocks",
			Help:      "Blocks currently checked out of a blockpool.",
		}, []string{"pool"}),
		BlockpoolHighWM: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "jive5ge",
			Subsystem: "blockpool",
			Name:      "allocated_blocks",
			Help:      "Blocks a blockpool has allocated so far (high-water mark).",
		}, []string{"pool"}),
		SenderLossTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jive5ge",
			Subsystem: "netstats",
			Name:      "loss_total",
			Help:      "Lost packets observed per UDP sender.",
		}, []string{"sender"}),
		SenderPktTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jive5ge",
			Subsystem: "netstats",
			Name:      "packets_total",
			Help:      "Packets observed per UDP sender.",
		}, []string{"sender"}),
	}

	reg.MustRegister(m.ChainBytes, m.BlockpoolInUse, m.BlockpoolHighWM, m.SenderLossTotal, m.SenderPktTotal)
	return m
}

// Registry exposes the underlying prometheus.Registry for mounting as an
// HTTP handler.
func (m *Registry) Registry() *prometheus.Registry { return m.reg }

// AddChainBytes implements chain.MetricsSink: a chain attached via
// Chain.AttachMetrics reports its per-stage byte deltas here as they
// accrue.
func (m *Registry) AddChainBytes(chainName, stageID string, n uint64) {
	m.ChainBytes.WithLabelValues(chainName, stageID).Add(float64(n))
}

// SetBlockpoolGauges implements block.MetricsSink: a pool attached via
// Blockpool.AttachMetrics reports its occupancy here on every Get/Release.
func (m *Registry) SetBlockpoolGauges(name string, outstanding, allocated int64) {
	m.BlockpoolInUse.WithLabelValues(name).Set(float64(outstanding))
	m.BlockpoolHighWM.WithLabelValues(name).Set(float64(allocated))
}

// AddSenderCounters implements netstats.MetricsSink: a SenderTable
// attached via SenderTable.Attach reports its loss/packet deltas here on
// every Observe.
func (m *Registry) AddSenderCounters(sender string, lossDelta, pktDelta uint64) {
	if lossDelta > 0 {
		m.SenderLossTotal.WithLabelValues(sender).Add(float64(lossDelta))
	}
	if pktDelta > 0 {
		m.SenderPktTotal.WithLabelValues(sender).Add(float64(pktDelta))
	}
}
