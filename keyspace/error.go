package keyspace

import (
	"github.com/joomcode/errorx"
)

var (
	// Errors is a namespace for keyspace errors.
	Errors = errorx.NewNamespace("keyspace")

	// ErrTopology - deployment could not be turned into list of nodes.
	ErrTopology = Errors.NewType("topology")
	// ErrUnsupportedTopology - there is no strategy for topology kind.
	ErrUnsupportedTopology = ErrTopology.NewSubtype("unsupported")
	// ErrNoNodes - topology has no node to scan.
	ErrNoNodes = ErrTopology.NewSubtype("no_nodes")

	// ErrInvalidFilter - filter is malformed.
	ErrInvalidFilter = Errors.NewType("invalid_filter")

	// ErrNode - node could not be scanned.
	ErrNode = Errors.NewType("node")

	// EKNode - address of node.
	EKNode = errorx.RegisterProperty("node")
	// EKTopology - topology kind.
	EKTopology = errorx.RegisterProperty("topology")
)
