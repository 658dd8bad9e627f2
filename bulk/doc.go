/*
Package bulk applies one mutation (delete, unlink, expire, persist) to every key
matching a filter, across every node of a deployment.

Registry owns live actions: at most one per owner, a new action replaces the
previous one. Runner drives one action: a task per node walks the keyspace
batch by batch, sends the mutation for each batch as a single pipeline and
folds results into Summary and per-node ScanProgress. Progress snapshots are
delivered to Sink through a debouncing Emitter; the terminal snapshot is always
delivered.
*/
package bulk
