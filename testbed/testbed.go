// Package testbed is an in-process RESP server for tests.
//
// Server understands the subset of redis commands used by this module: connection setup,
// keyspace introspection, SCAN, mutations, CLUSTER NODES/SLOTS and SENTINEL master lookup.
// Failures could be injected per command and key.
package testbed

import (
	"github.com/joomcode/redisbulk/redisdumb"
)

// Do sends single command to addr with one-shot connection.
func Do(addr string, cmd string, args ...interface{}) interface{} {
	return redisdumb.Do(addr, cmd, args...)
}
