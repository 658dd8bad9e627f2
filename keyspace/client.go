package keyspace

import (
	"github.com/joomcode/redisbulk/rediscluster"
	"github.com/joomcode/redisbulk/redisconn"
)

type connNode struct {
	*redisconn.Connection
	role Role
}

func (n connNode) Role() Role { return n.role }

type standaloneClient struct {
	conn *redisconn.Connection
	kind TopologyKind
}

// NewStandaloneClient wraps single connection to master.
// kind should be Standalone or Sentinel.
func NewStandaloneClient(conn *redisconn.Connection, kind TopologyKind) Client {
	return standaloneClient{conn: conn, kind: kind}
}

func (c standaloneClient) Kind() TopologyKind { return c.kind }

func (c standaloneClient) Nodes(role Role) ([]Node, error) {
	if role == RoleReplica {
		return nil, nil
	}
	return []Node{connNode{Connection: c.conn, role: RoleMaster}}, nil
}

type clusterClient struct {
	cluster *rediscluster.Cluster
}

// NewClusterClient represents every known cluster member as Node.
func NewClusterClient(cluster *rediscluster.Cluster) Client {
	return clusterClient{cluster: cluster}
}

func (c clusterClient) Kind() TopologyKind { return Cluster }

func (c clusterClient) Nodes(role Role) ([]Node, error) {
	var res []Node
	for _, n := range c.cluster.Nodes() {
		r := RoleReplica
		if n.Master {
			r = RoleMaster
		}
		if role != RoleAny && role != r {
			continue
		}
		res = append(res, connNode{Connection: n.Conn, role: r})
	}
	return res, nil
}
