// Command jive5ged is the jive5ge transfer-pipeline engine's process
// entrypoint: it bootstraps a runtime.Runtime, starts the status/metrics
// HTTP server, and waits for a termination signal, at which point it
// disables every queue registered on the runtime's interchain hub and
// exits; it does not tear down the active chain itself.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/jive5ge/jive5ge/internal/constraint"
	"github.com/jive5ge/jive5ge/internal/metrics"
	"github.com/jive5ge/jive5ge/internal/nlog"
	"github.com/jive5ge/jive5ge/internal/runtime"
	"github.com/jive5ge/jive5ge/internal/status"
)

func main() {
	var (
		statusAddr  = flag.String("status-addr", ":8090", "address for the status/metrics HTTP endpoint")
		mountpoints = flag.String("mountpoints", "", "comma-separated list of VBS mountpoints")
		debugLevel  = flag.Int("debug", 0, "log verbosity (0=error, 1=warning, 2=info, 3=debug)")
	)
	flag.Parse()

	nlog.SetLevel(nlog.Level(*debugLevel))

	reg := metrics.New()
	cfg := runtime.Config{
		Mountpoints: splitNonEmpty(*mountpoints),
		ControlPort: 2620,
		DebugLevel:  *debugLevel,
		DefaultNetparms: constraint.Netparms{
			Protocol:      constraint.ProtoUDPS,
			MTU:           4470,
			BlocksizeHint: 168272,
		},
		Metrics: reg,
	}
	rt := runtime.New(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	statusSrv := status.New(*statusAddr, &runtimeStatusSource{rt: rt}, reg)

	go func() {
		if err := statusSrv.ListenAndServe(); err != nil {
			nlog.Errorln("status server exited:", err)
		}
	}()

	nlog.Infoln("jive5ged started, status endpoint on", *statusAddr)
	<-ctx.Done()
	nlog.Infoln("jive5ged shutting down")
	rt.Hub().DisableAll()
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// runtimeStatusSource adapts runtime.Runtime to status.Source. It is
// kept in main rather than in internal/status to avoid that package
// importing internal/runtime (and, transitively, internal/chain) just
// for this one method.
type runtimeStatusSource struct {
	rt *runtime.Runtime
}

func (s *runtimeStatusSource) Snapshot() status.Payload {
	var payload status.Payload

	if ac := s.rt.ActiveChain(); ac != nil {
		stageBytes := make(map[string]int64)
		for stage, n := range ac.Stats().Snapshot() {
			stageBytes[stage] = int64(n)
		}
		payload.Chains = append(payload.Chains, status.ChainSnapshot{
			Name:       ac.ID(),
			StageBytes: stageBytes,
		})
	}

	for name, p := range s.rt.Blockpools() {
		payload.Blockpools = append(payload.Blockpools, status.BlockpoolSnapshot{
			Name:        name,
			Outstanding: int64(p.Outstanding()),
			Allocated:   int64(p.Allocated()),
		})
	}

	return payload
}
