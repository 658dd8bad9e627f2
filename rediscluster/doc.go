/*
Package rediscluster discovers topology of redis cluster.

Cluster learns node list from CLUSTER NODES (falling back to CLUSTER SLOTS when
the former is not available), keeps one connection per known node and
periodically refreshes configuration. Connections to nodes which left the
cluster are closed.

It does not route keyed requests: callers pick a node from Nodes() and talk to
it directly. This is what keyspace enumeration needs, since SCAN is per-node.
*/
package rediscluster
