// Package runtime models the per-unit transfer-mode gate: the state
// machine that arbitrates which transfer mode (record, play, net2disk,
// disk2net, ..., bankswitch) a jive5ge unit is currently in, and rejects
// operations that are inconsistent with the current mode.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package runtime

import (
	"fmt"
	"sync"

	"github.com/jive5ge/jive5ge/internal/block"
	"github.com/jive5ge/jive5ge/internal/chain"
	"github.com/jive5ge/jive5ge/internal/constraint"
	"github.com/jive5ge/jive5ge/internal/errs"
	"github.com/jive5ge/jive5ge/internal/headersearch"
	"github.com/jive5ge/jive5ge/internal/interchain"
	"github.com/jive5ge/jive5ge/internal/metrics"
	"github.com/jive5ge/jive5ge/internal/netstats"
)

// TransferMode names the mutually exclusive modes a unit can be in.
type TransferMode string

const (
	ModeNoTransfer TransferMode = "no_transfer"
	ModeRecord     TransferMode = "record"
	ModePlay       TransferMode = "play"
	ModeNet2Disk   TransferMode = "net2disk"
	ModeDisk2Net   TransferMode = "disk2net"
	ModeDisk2File  TransferMode = "disk2file"
	ModeIn2Disk    TransferMode = "in2disk"
	ModeBankSwitch TransferMode = "bankswitch"
)

// INPROGRESS reports whether mode represents an active data transfer
// (as opposed to idle or a housekeeping mode like bankswitch).
func (m TransferMode) INPROGRESS() bool {
	switch m {
	case ModeRecord, ModePlay, ModeNet2Disk, ModeDisk2Net, ModeDisk2File, ModeIn2Disk:
		return true
	default:
		return false
	}
}

// OpTag marks properties of a requested operation the gate cares about.
type OpTag int

const (
	// TouchesDiskLayout marks operations that read or mutate the
	// scan directory or chunk layout; these are rejected while the
	// unit is in bankswitch mode (see DESIGN.md's bank-switch
	// conservatism decision).
	TouchesDiskLayout OpTag = 1 << iota
)

// Config is the parameter record the embedding harness populates at
// startup; no file-format parser is implemented here, consistent with
// config parsing being an external concern.
type Config struct {
	Mountpoints      []string
	ControlPort      int
	DebugLevel       int
	MaxBlockpoolSize int
	DefaultNetparms  constraint.Netparms

	// Metrics is optional; when set, the active chain, every registered
	// blockpool, and the sender table all report into it.
	Metrics *metrics.Registry
}

// ActiveChain is the narrow surface Runtime needs from the live chain: an
// identifier and its byte-counter table. Declared here rather than
// requiring a concrete *chain.Chain[T] so Runtime doesn't have to carry
// chain's type parameter.
type ActiveChain interface {
	ID() string
	Stats() *chain.ChainStats
}

// TrackFormat is the unit's currently configured track layout, per
// spec.md §3's Data Model ("track format" as Runtime state).
type TrackFormat struct {
	Format    headersearch.Format
	NumTracks int
}

// expectedSenders sizes the sender table's cuckoo filter; see
// netstats.NewSenderTable.
const expectedSenders = 8

// Runtime is the per-unit singleton-by-construction state: exactly one
// instance is expected per process, created once at startup and handed
// to every stage and control-socket handler by reference (never as a
// package-level global).
type Runtime struct {
	mu   sync.Mutex
	mode TransferMode

	netparms    constraint.Netparms
	hub         *interchain.Hub
	activeChain ActiveChain
	trackFormat TrackFormat
	senders     *netstats.SenderTable
	blockpools  map[string]*block.Blockpool

	xlrLock sync.Mutex // guards the placeholder device handle below
	device  *DeviceHandle

	errRing *errs.Ring
	metrics *metrics.Registry
}

// DeviceHandle stands in for the external streamstor SDK's device
// handle; its only job here is to demonstrate the single-lock boundary
// real device I/O would need.
type DeviceHandle struct {
	Open bool
}

// New constructs a Runtime in ModeNoTransfer.
func New(cfg Config) *Runtime {
	senders := netstats.NewSenderTable(expectedSenders)
	if cfg.Metrics != nil {
		senders.Attach(cfg.Metrics)
	}
	return &Runtime{
		mode:       ModeNoTransfer,
		netparms:   cfg.DefaultNetparms,
		hub:        interchain.NewHub(),
		senders:    senders,
		blockpools: make(map[string]*block.Blockpool),
		device:     &DeviceHandle{},
		errRing:    errs.NewRing(16),
		metrics:    cfg.Metrics,
	}
}

// Hub returns the broadcast hub owned by this runtime; stages receive it
// by injection rather than reaching for a package-level singleton.
func (r *Runtime) Hub() *interchain.Hub { return r.hub }

// Senders returns the runtime's per-sender UDP statistics table.
func (r *Runtime) Senders() *netstats.SenderTable { return r.senders }

// SetActiveChain installs c as the runtime's currently running chain,
// attaching it to the metrics registry (if any) under its own id. Pass
// nil when the chain has torn down.
func (r *Runtime) SetActiveChain(c ActiveChain) {
	r.mu.Lock()
	r.activeChain = c
	m := r.metrics
	r.mu.Unlock()
	if c != nil && m != nil {
		c.Stats().Attach(m, c.ID())
	}
}

// ActiveChain returns the currently running chain, or nil if none is
// active.
func (r *Runtime) ActiveChain() ActiveChain {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeChain
}

// SetTrackFormat records the unit's currently configured track layout.
func (r *Runtime) SetTrackFormat(tf TrackFormat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trackFormat = tf
}

// TrackFormat returns the unit's currently configured track layout.
func (r *Runtime) TrackFormat() TrackFormat {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trackFormat
}

// RegisterBlockpool adds p to the runtime's named blockpool registry,
// attaching it to the metrics registry (if any) under name, so it shows
// up in both the status payload and /metrics.
func (r *Runtime) RegisterBlockpool(name string, p *block.Blockpool) {
	r.mu.Lock()
	r.blockpools[name] = p
	m := r.metrics
	r.mu.Unlock()
	if m != nil {
		p.AttachMetrics(m, name)
	}
}

// Blockpools returns a snapshot of the runtime's named blockpool
// registry.
func (r *Runtime) Blockpools() map[string]*block.Blockpool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*block.Blockpool, len(r.blockpools))
	for k, v := range r.blockpools {
		out[k] = v
	}
	return out
}

// Mode returns the current transfer mode.
func (r *Runtime) Mode() TransferMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// TryTransition attempts to move the runtime from its current mode to
// next, honoring the rule that a change from an in-progress transfer to
// any mode other than itself or ModeNoTransfer is rejected (the caller
// must stop the transfer first, by transitioning to ModeNoTransfer) and
// that operations tagged TouchesDiskLayout are rejected outright while
// in ModeBankSwitch.
func (r *Runtime) TryTransition(next TransferMode, tag OpTag) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mode == ModeBankSwitch && tag&TouchesDiskLayout != 0 {
		return errs.New(errs.KindMode, fmt.Sprintf("runtime: disk-layout operation rejected while bankswitch in progress"))
	}
	if r.mode.INPROGRESS() && next != r.mode && next != ModeNoTransfer {
		return errs.New(errs.KindMode, fmt.Sprintf("runtime: cannot switch from %s to %s while a transfer is in progress", r.mode, next))
	}
	r.mode = next
	return nil
}

// Netparms returns a copy of the current netparms. Netparms fields are
// write-gated to ModeNoTransfer via SetNetparms.
func (r *Runtime) Netparms() constraint.Netparms {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.netparms
}

// SetNetparms updates the netparms, rejecting the call unless the unit
// is idle: netparms must not change mid-transfer.
func (r *Runtime) SetNetparms(np constraint.Netparms) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode != ModeNoTransfer {
		return errs.New(errs.KindMode, "runtime: netparms can only be changed while no_transfer")
	}
	r.netparms = np
	return nil
}

// WithDevice serialises access to the placeholder device handle behind
// xlrLock, modeling the external SDK's single-threaded access
// requirement.
func (r *Runtime) WithDevice(fn func(*DeviceHandle) error) error {
	r.xlrLock.Lock()
	defer r.xlrLock.Unlock()
	return fn(r.device)
}

// Errors returns the runtime's last-error ring, surfaced via the
// control-socket "error?" query (wiring out of scope; see
// internal/control).
func (r *Runtime) Errors() *errs.Ring {
	return r.errRing
}

// RecordError pushes err onto the runtime's error ring.
func (r *Runtime) RecordError(err *errs.Error) {
	r.errRing.Push(err)
}
