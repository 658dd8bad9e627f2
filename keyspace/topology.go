package keyspace

import (
	"strings"

	"github.com/joomcode/redisbulk/redis"
)

// TopologyKind is a kind of redis deployment.
type TopologyKind int

const (
	// Unknown is zero value.
	Unknown TopologyKind = iota
	// Standalone is a single server.
	Standalone
	// Sentinel is a master discovered through sentinels.
	Sentinel
	// Cluster is redis cluster.
	Cluster
)

var kindNames = map[TopologyKind]string{
	Unknown:    "unknown",
	Standalone: "standalone",
	Sentinel:   "sentinel",
	Cluster:    "cluster",
}

func (k TopologyKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseTopologyKind parses kind name. Empty name means Standalone.
func ParseTopologyKind(s string) (TopologyKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Standalone, nil
	}
	for k, name := range kindNames {
		if name == s && k != Unknown {
			return k, nil
		}
	}
	return Unknown, ErrUnsupportedTopology.New("unknown topology kind %q", s)
}

// Role is a replication role of node.
type Role int

const (
	// RoleAny matches every node.
	RoleAny Role = iota
	// RoleMaster is a writable primary.
	RoleMaster
	// RoleReplica is a read-only replica.
	RoleReplica
)

func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleReplica:
		return "replica"
	}
	return "any"
}

// Node is a single redis server requests could be sent to.
type Node interface {
	redis.Sender
	// Addr returns address of node.
	Addr() string
	// DB returns logical database selected on node.
	DB() int
	// Role returns replication role of node.
	Role() Role
}

// Client represents redis deployment as set of nodes.
type Client interface {
	Kind() TopologyKind
	// Nodes returns nodes of given role. RoleAny returns all.
	Nodes(role Role) ([]Node, error)
}
