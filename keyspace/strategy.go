package keyspace

// Strategy decides which nodes should be scanned to visit whole keyspace.
type Strategy interface {
	Name() string
	EnumerateNodes(c Client) ([]Node, error)
}

// SelectStrategy returns strategy for topology kind.
func SelectStrategy(kind TopologyKind) (Strategy, error) {
	switch kind {
	case Standalone, Sentinel:
		return StandaloneStrategy{}, nil
	case Cluster:
		return ClusterStrategy{}, nil
	}
	return nil, ErrUnsupportedTopology.New("no scan strategy for topology").
		WithProperty(EKTopology, kind.String())
}

// StandaloneStrategy scans the single master.
type StandaloneStrategy struct{}

// Name implements Strategy.Name
func (StandaloneStrategy) Name() string { return "standalone" }

// EnumerateNodes implements Strategy.EnumerateNodes
func (StandaloneStrategy) EnumerateNodes(c Client) ([]Node, error) {
	nodes, err := c.Nodes(RoleMaster)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, ErrNoNodes.New("no master to scan").WithProperty(EKTopology, c.Kind().String())
	}
	return nodes[:1], nil
}

// ClusterStrategy scans every master of cluster. Replicas hold copies of
// the same keys, so they are never scanned.
type ClusterStrategy struct{}

// Name implements Strategy.Name
func (ClusterStrategy) Name() string { return "cluster" }

// EnumerateNodes implements Strategy.EnumerateNodes
func (ClusterStrategy) EnumerateNodes(c Client) ([]Node, error) {
	nodes, err := c.Nodes(RoleMaster)
	if err != nil {
		return nil, err
	}
	masters := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Role() == RoleMaster {
			masters = append(masters, n)
		}
	}
	if len(masters) == 0 {
		return nil, ErrNoNodes.New("cluster has no master to scan").WithProperty(EKTopology, c.Kind().String())
	}
	return masters, nil
}
