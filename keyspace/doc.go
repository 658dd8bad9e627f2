/*
Package keyspace enumerates keys of a redis deployment.

Client abstracts deployment topology (standalone, sentinel-managed or cluster) as a
set of nodes. Strategy picks nodes which should be scanned so every key is visited
exactly once: a standalone server is scanned directly, a cluster is scanned on every
master. Scanner walks one node with SCAN and enriches every returned key with its
type, ttl and memory usage in a single pipelined round-trip.
*/
package keyspace
