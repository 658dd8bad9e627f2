package testbed

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// ClusterNode is a Server which pretends to be a member of redis cluster.
type ClusterNode struct {
	*Server
	NodeID  string
	Master  int // index of master for replica, -1 for master itself
	Failed  bool
	slotLow int
	slotHi  int
}

// Cluster is a set of testbed servers publishing consistent CLUSTER NODES and
// CLUSTER SLOTS replies. Slots are split evenly between masters.
type Cluster struct {
	mu    sync.Mutex
	Nodes []*ClusterNode
}

var nodeSeq struct {
	sync.Mutex
	n int
}

func nextNodeID() string {
	nodeSeq.Lock()
	defer nodeSeq.Unlock()
	nodeSeq.n++
	return fmt.Sprintf("%040x", nodeSeq.n)
}

// NewCluster starts masters*(1+replicas) servers. First `masters` nodes are masters,
// the rest are replicas assigned round-robin.
func NewCluster(masters, replicas int) (*Cluster, error) {
	cl := &Cluster{}
	const numSlots = 1 << 14
	for i := 0; i < masters; i++ {
		node := &ClusterNode{Server: &Server{}, NodeID: nextNodeID(), Master: -1}
		node.slotLow = i * numSlots / masters
		node.slotHi = (i+1)*numSlots/masters - 1
		cl.Nodes = append(cl.Nodes, node)
	}
	for i := 0; i < masters*replicas; i++ {
		node := &ClusterNode{Server: &Server{}, NodeID: nextNodeID(), Master: i % masters}
		cl.Nodes = append(cl.Nodes, node)
	}
	for _, node := range cl.Nodes {
		if err := node.Start(); err != nil {
			cl.Stop()
			return nil, err
		}
	}
	cl.Publish()
	return cl, nil
}

// Masters returns master nodes.
func (cl *Cluster) Masters() []*ClusterNode {
	var res []*ClusterNode
	for _, node := range cl.Nodes {
		if node.Master == -1 {
			res = append(res, node)
		}
	}
	return res
}

// Replicas returns replica nodes.
func (cl *Cluster) Replicas() []*ClusterNode {
	var res []*ClusterNode
	for _, node := range cl.Nodes {
		if node.Master != -1 {
			res = append(res, node)
		}
	}
	return res
}

// Addrs returns addresses of all nodes.
func (cl *Cluster) Addrs() []string {
	res := make([]string, len(cl.Nodes))
	for i, node := range cl.Nodes {
		res[i] = node.Addr()
	}
	return res
}

// MarkFailed flags node as failed in published configuration.
func (cl *Cluster) MarkFailed(i int) {
	cl.mu.Lock()
	cl.Nodes[i].Failed = true
	cl.mu.Unlock()
	cl.Publish()
}

// Publish renders current configuration into every node.
func (cl *Cluster) Publish() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for _, self := range cl.Nodes {
		self.SetClusterNodes(cl.nodesText(self))
		self.SetClusterSlots(cl.slotsReply())
	}
}

// Stop stops all nodes.
func (cl *Cluster) Stop() {
	for _, node := range cl.Nodes {
		node.Stop()
	}
}

func (cl *Cluster) nodesText(self *ClusterNode) string {
	var b strings.Builder
	for i, node := range cl.Nodes {
		var flags []string
		if node == self {
			flags = append(flags, "myself")
		}
		masterID := "-"
		if node.Master == -1 {
			flags = append(flags, "master")
		} else {
			flags = append(flags, "slave")
			masterID = cl.Nodes[node.Master].NodeID
		}
		if node.Failed {
			flags = append(flags, "fail")
		}
		fmt.Fprintf(&b, "%s %s@0 %s %s 0 0 %d connected",
			node.NodeID, node.Addr(), strings.Join(flags, ","), masterID, i+1)
		if node.Master == -1 {
			fmt.Fprintf(&b, " %d-%d", node.slotLow, node.slotHi)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (cl *Cluster) slotsReply() []interface{} {
	var res []interface{}
	for i, master := range cl.Nodes {
		if master.Master != -1 {
			continue
		}
		rng := []interface{}{int64(master.slotLow), int64(master.slotHi), hostPort(master)}
		for _, replica := range cl.Nodes {
			if replica.Master == i {
				rng = append(rng, hostPort(replica))
			}
		}
		res = append(res, rng)
	}
	return res
}

func hostPort(node *ClusterNode) []interface{} {
	addr := node.Addr()
	ix := strings.LastIndexByte(addr, ':')
	port, _ := strconv.Atoi(addr[ix+1:])
	return []interface{}{addr[:ix], int64(port), node.NodeID}
}
