// Package constraint implements the sizing-parameter solver: given
// netparms, an optional frame format, and an optional compression
// scheme, it derives a mutually consistent (blocksize, read_size,
// write_size, framesize, payload_offset, payload_size) tuple.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package constraint

import (
	"fmt"

	"github.com/jive5ge/jive5ge/internal/headersearch"
)

// Protocol overhead constants, in bytes. ip_header is the IPv4 header
// (no options); each wire protocol then adds its own header; udps and
// itcp additionally carry the 8-byte jive sequence/preamble header.
const (
	IPHeader            = 20
	TCPHeader           = 20
	UDPHeader           = 8
	UDTHeader           = 16
	JiveSequenceHeader  = 8
	ITCPIDPreambleBytes = 8
)

type Protocol string

const (
	ProtoTCP  Protocol = "tcp"
	ProtoUDP  Protocol = "udp"
	ProtoUDPS Protocol = "udps"
	ProtoUDT  Protocol = "udt"
	ProtoITCP Protocol = "itcp"
)

// Netparms is the subset of transfer-wide network parameters the solver
// consumes.
type Netparms struct {
	Protocol      Protocol
	MTU           int
	BlocksizeHint int
}

// Overhead returns the total per-packet byte overhead for p, i.e.
// ip_header + proto_header + jive_sequence_header from rule 1.
func (p Protocol) Overhead() (int, error) {
	switch p {
	case ProtoTCP:
		return IPHeader + TCPHeader, nil
	case ProtoUDP:
		return IPHeader + UDPHeader, nil
	case ProtoUDPS:
		return IPHeader + UDPHeader + JiveSequenceHeader, nil
	case ProtoUDT:
		return IPHeader + UDTHeader, nil
	case ProtoITCP:
		return IPHeader + TCPHeader + ITCPIDPreambleBytes, nil
	default:
		return 0, fmt.Errorf("constraint: unknown protocol %q", p)
	}
}

// CompressionScheme names a compression codec usable as the solver's
// compression_solution input.
type CompressionScheme string

const (
	CompressionNone CompressionScheme = ""
	CompressionLZ4  CompressionScheme = "lz4"
	CompressionZstd CompressionScheme = "zstd"
)

// CompressionSolution carries the chosen scheme and its expected ratio
// (uncompressed bytes per compressed byte); ratio is supplied by the
// caller because it is data-dependent and the solver treats it as an
// opaque planning estimate, not something it measures itself.
type CompressionSolution struct {
	Scheme CompressionScheme
	Ratio  float64 // e.g. 2.0 means payload halves in size
}

func (c *CompressionSolution) active() bool {
	return c != nil && c.Scheme != CompressionNone && c.Ratio > 1
}

// FramingInfo describes the payload-granularity framing derived from a
// frame format, distinct from headersearch.Tracker's header-detection
// stride (which includes the header bytes themselves).
type FramingInfo struct {
	Format    headersearch.Format
	FrameSize int // payload bytes per frame, excluding any header
}

// Mark5BPayloadSize is fixed regardless of bitrate: a Mark5B frame
// always carries 10000 bytes of payload (the data rate changes the
// frame rate, not the frame's payload size).
const Mark5BPayloadSize = 10000

// Mark4FrameSize derives the Mark4 payload framesize from the number of
// recorded tracks.
func Mark4FrameSize(nrTracks int) int {
	return nrTracks * 2500
}

// ConstraintSet is the immutable tuple of mutually consistent sizing
// parameters for one end-to-end transfer.
type ConstraintSet struct {
	Blocksize     int
	ReadSize      int
	WriteSize     int
	Framesize     int // 0 means unframed
	PayloadOffset int
	PayloadSize   int
	Application   Protocol
}

// Solve derives a ConstraintSet from netparms and the optional framing /
// compression inputs, per the five sizing rules numbered in the comments
// below.
func Solve(np Netparms, framing *FramingInfo, comp *CompressionSolution) (ConstraintSet, error) {
	overhead, err := np.Protocol.Overhead()
	if err != nil {
		return ConstraintSet{}, err
	}
	if np.MTU <= overhead {
		return ConstraintSet{}, fmt.Errorf("constraint: mtu %d too small for protocol overhead %d", np.MTU, overhead)
	}

	// Rule 1.
	writeSize := np.MTU - overhead

	framesize := 0
	payloadSize := writeSize
	payloadOffset := 0
	if framing != nil && framing.FrameSize > 0 {
		framesize = framing.FrameSize
		// Rule 2: payload_size divides framesize and at least one
		// payload fits in write_size without crossing a frame boundary.
		payloadSize = largestDivisorAtMost(framesize, writeSize)
		if payloadSize < 1 {
			return ConstraintSet{}, fmt.Errorf("constraint: no payload size <= write_size %d divides framesize %d", writeSize, framesize)
		}
	}

	// Rule 3: compression shrinks the payload actually carried on the wire.
	if comp.active() {
		post := int(float64(payloadSize) / comp.Ratio)
		if post < 1 {
			return ConstraintSet{}, fmt.Errorf("constraint: compression ratio %.2f collapses payload_size %d to zero", comp.Ratio, payloadSize)
		}
		if post > writeSize {
			return ConstraintSet{}, fmt.Errorf("constraint: compressed payload %d exceeds write_size %d", post, writeSize)
		}
		payloadSize = post
	}

	// Rule 4.
	readSize := writeSize
	if framesize > 0 {
		readSize = ceilMultiple(writeSize, framesize)
	}

	// Rule 5.
	hint := np.BlocksizeHint
	if hint < 1 {
		hint = writeSize
	}
	modulus := writeSize
	if framesize > 0 {
		modulus = lcm(writeSize, framesize)
	}
	blocksize := ceilMultiple(hint, modulus)
	if blocksize < modulus {
		blocksize = modulus
	}

	cs := ConstraintSet{
		Blocksize:     blocksize,
		ReadSize:      readSize,
		WriteSize:     writeSize,
		Framesize:     framesize,
		PayloadOffset: payloadOffset,
		PayloadSize:   payloadSize,
		Application:   np.Protocol,
	}
	return cs, cs.Validate()
}

// Validate asserts all of the ConstraintSet invariants, returning a
// structured error naming the first violated invariant.
func (cs ConstraintSet) Validate() error {
	if cs.WriteSize <= 0 {
		return fmt.Errorf("constraint: write_size must be positive, got %d", cs.WriteSize)
	}
	if cs.Blocksize <= 0 || cs.Blocksize%cs.WriteSize != 0 {
		return fmt.Errorf("constraint: blocksize %d must be a positive multiple of write_size %d", cs.Blocksize, cs.WriteSize)
	}
	if cs.PayloadSize > cs.WriteSize {
		return fmt.Errorf("constraint: payload_size %d exceeds write_size %d", cs.PayloadSize, cs.WriteSize)
	}
	if cs.Framesize > 0 {
		if cs.Blocksize%cs.Framesize != 0 {
			return fmt.Errorf("constraint: blocksize %d must divide evenly by framesize %d", cs.Blocksize, cs.Framesize)
		}
		if cs.ReadSize%cs.Framesize != 0 {
			return fmt.Errorf("constraint: read_size %d must be a multiple of framesize %d", cs.ReadSize, cs.Framesize)
		}
	}
	if cs.ReadSize < cs.WriteSize {
		return fmt.Errorf("constraint: read_size %d must be >= write_size %d", cs.ReadSize, cs.WriteSize)
	}
	return nil
}

func largestDivisorAtMost(n, limit int) int {
	if limit >= n {
		return n
	}
	for d := limit; d >= 1; d-- {
		if n%d == 0 {
			return d
		}
	}
	return 1
}

func ceilMultiple(value, modulus int) int {
	if modulus <= 0 {
		return value
	}
	if value%modulus == 0 {
		return value
	}
	return (value/modulus + 1) * modulus
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}
