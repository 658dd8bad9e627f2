/*
Package redisbulk scans keyspace of a Redis deployment and applies bulk mutations
to matched keys.

Deployment may be a standalone server, a sentinel-managed master or a cluster.
Keys are enumerated with SCAN on every master node, every key is introspected
(TYPE, TTL, MEMORY USAGE) and then mutated with one of DEL, UNLINK, EXPIRE or PERSIST.
Progress of every node and aggregated results are published as snapshots.

Packages

- redis: protocol core - requests, replies, errors, synchronous wrappers.

- redisconn: single connection with implicit pipelining and reconnects.

- rediscluster: cluster topology discovery on top of redisconn.

- redissentinel: master address resolution through sentinels.

- keyspace: topology strategies and SCAN-based keyspace scanner.

- bulk: actions, their runner, progress, error summary and registry.

- databases: configured connection records and lazily connected pool.

- server: HTTP API and WebSocket progress stream.

Usage

Typical service is started with

	redisbulk serve --config redisbulk.yaml

and one-off action is run with

	redisbulk run --addr 127.0.0.1:6379 --kind delete --match 'session:*'

Library usage is shown in example.
*/
package redisbulk
