// Package status exposes a lightweight HTTP status/debug endpoint: a
// JSON snapshot of chain byte counters and blockpool occupancy, plus the
// Prometheus exposition format mounted alongside it.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package status

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/jive5ge/jive5ge/internal/metrics"
	"github.com/jive5ge/jive5ge/internal/nlog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ChainSnapshot is one chain's byte counters at the moment of sampling.
type ChainSnapshot struct {
	Name       string           `json:"name"`
	StageBytes map[string]int64 `json:"stage_bytes"`
}

// BlockpoolSnapshot is one blockpool's occupancy at the moment of
// sampling.
type BlockpoolSnapshot struct {
	Name        string `json:"name"`
	Outstanding int64  `json:"outstanding"`
	Allocated   int64  `json:"allocated"`
}

// Payload is the full status/debug JSON document.
type Payload struct {
	Chains     []ChainSnapshot     `json:"chains"`
	Blockpools []BlockpoolSnapshot `json:"blockpools"`
}

// Source is implemented by whatever owns the live chain/blockpool state;
// kept narrow so status doesn't import runtime/chain and create a cycle.
type Source interface {
	Snapshot() Payload
}

// Server serves the status/debug payload and the Prometheus exposition
// format from one fasthttp listener.
type Server struct {
	addr    string
	source  Source
	metrics *metrics.Registry
}

// New builds a Server bound to addr (e.g. ":8090"), backed by source for
// the JSON payload and m for the /metrics exposition.
func New(addr string, source Source, m *metrics.Registry) *Server {
	return &Server{addr: addr, source: source, metrics: m}
}

// ListenAndServe blocks serving /status and /metrics until the process
// is terminated or the listener fails. It uses fasthttp's package-level
// ListenAndServe, so no server handle for a Shutdown call is exposed.
func (s *Server) ListenAndServe() error {
	promHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	handler := func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/status":
			s.serveStatus(ctx)
		case "/metrics":
			promHandler(ctx)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}

	nlog.Infoln("status: listening on", s.addr)
	return fasthttp.ListenAndServe(s.addr, handler)
}

func (s *Server) serveStatus(ctx *fasthttp.RequestCtx) {
	payload := s.source.Snapshot()
	body, err := json.Marshal(payload)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
