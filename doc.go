// Package capi implements a caching, read-only API gateway for cryptocurrency daemon nodes.
/*
capi provides one microservice (package gateway) that sits in front of a set of daemon nodes and exposes their
RESTful and JSON-RPC APIs to many clients while shielding the nodes from their load.

Architecture

Client requests are answered from three layers, best first:

1) a mirror of the blockchain kept in a database (package lib/mirror), fed by an external synchronization job. The
 gateway only reads the mirror and checks its block count against the network consensus before trusting it; a mirror
 that drifts too far behind is bypassed and a divergence event is published to the message broker (package lib/msg).

2) a short-lived in-memory result cache (package lib/cache) over live upstream replies, keyed per node and request, so
 bursts of identical queries cost one upstream call per TTL window.

3) live calls to the daemon nodes themselves (package lib/daemon), over their plain HTTP endpoints and their JSON-RPC
 endpoint.

Network-wide values such as the chain height and difficulty are not taken from any single node. The gateway polls all
configured seed nodes and the public mining pools concurrently (package lib/pools), reduces the answers to a plurality
vote (package lib/consensus) and serves the winning value together with a confidence score. Background refreshers keep
these aggregates and the pool directory warm so clients mostly hit cached entries.

The mirror database is product agnostic (package lib/mirror/db) with MongoDB and PostgreSQL backends. The message
broker layer is product agnostic too and currently implements AMQP.

The gateway can be monitored via a Prometheus API by setting the flag "-m" at startup.

Gateway

The gateway microservice can be started running cmd/gateway/main.go. Configuration comes from a JSON config file (see
cmd/conf.json for a sample) overridable with CAPI_ prefixed environment variables: the seed nodes, the default node for
single-node queries, the pool directory url, the cache TTL, upstream timeouts and the tolerated mirror deviance.
*/
package capi
