/*
Package redisconn implements pipelined connection to single redis server.

Connection wraps single tcp (or unix-socket) connection. Requests from all goroutines are
appended to one buffer which a writer goroutine flushes as a whole, and responses are read
by a reader goroutine that resolves futures in order.
Connection is thread-safe, ie it doesn't need external synchronization.

Connection reconnects after network failures, but it never retries requests: every request
in flight at the moment of failure is resolved with an error carrying redis.ErrTraitConnectivity.
*/
package redisconn
