// Package gateway implements the caching read-only gateway microservice.
//
// This microservice implements a RESTful and JSON-RPC API for clients to query cryptocurrency daemon nodes. Queries
// are answered from a local mirror of the blockchain when possible, from a short-lived result cache, or from live
// upstream calls, and network-wide values (height, difficulty) are aggregated over a set of trusted seed nodes and
// mining pools into a consensus value with a confidence score.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tarancss/capi/lib/cache"
	"github.com/tarancss/capi/lib/config"
	"github.com/tarancss/capi/lib/consensus"
	"github.com/tarancss/capi/lib/daemon"
	"github.com/tarancss/capi/lib/mirror"
	"github.com/tarancss/capi/lib/mirror/db"
	"github.com/tarancss/capi/lib/msg"
	"github.com/tarancss/capi/lib/pools"
)

// Cache scope tags for the network-wide aggregates.
const (
	scopeNetHeight     = "network:height"
	scopeNetDifficulty = "network:difficulty"
	scopePoolHeight    = "pools:height"
	scopePoolDiff      = "pools:difficulty"
)

// Errors returned
var (
	ErrNoValue = errors.New("source reply carries no usable value")
)

// Gateway contains the data necessary to deliver the service
type Gateway struct {
	conf  config.ServiceConfig
	cache *cache.Cache
	mir   mirror.Store     // mirror connection, nil when not configured
	mb    msg.Broker       // event broker, nil when not configured
	pools *pools.Directory // mining pool directory

	timeout time.Duration // per upstream call
	ttl     time.Duration // result cache TTL

	s  *http.Server  // http server
	ss *http.Server  // https server
	sc chan struct{} // http server channel used for graceful shutdowns

	done     chan struct{} // closed to stop the background refreshers
	wg       sync.WaitGroup
	mirrorUp int32 // last observed mirror readiness, to publish transitions only
}

// New returns a pointer to a new Gateway service
func New(conf config.ServiceConfig, mir mirror.Store, mb msg.Broker) *Gateway {
	ttl := time.Duration(conf.CacheTTL) * time.Second

	return &Gateway{
		conf:    conf,
		cache:   cache.New(ttl, ttl),
		mir:     mir,
		mb:      mb,
		pools:   pools.New(conf.PoolList, time.Duration(conf.Timeout)*time.Second),
		timeout: time.Duration(conf.Timeout) * time.Second,
		ttl:     ttl,
		done:    make(chan struct{}),
	}
}

// StopGateway shuts down the http servers implementing the API, stops the background refreshers and closes gracefully
// the connections to message broker and mirror database.
func (g *Gateway) StopGateway() {
	var err error
	// stop background refreshers
	close(g.done)
	g.wg.Wait()
	g.cache.Stop()
	// shutdown http server
	if g.s != nil {
		if err = g.s.Shutdown(context.Background()); err != nil {
			log.Printf("Error in http server shutdown:%e", err)
		}
	}
	if g.ss != nil {
		if err = g.ss.Shutdown(context.Background()); err != nil {
			log.Printf("Error in https server shutdown:%e", err)
		}
	}
	if g.sc != nil {
		close(g.sc) // close server channel to indicate shutdowns have finished
	}
	// close message broker
	if g.mb != nil {
		if err = g.mb.Close(); err != nil {
			log.Printf("Error closing message broker:%e", err)
		}
	}
	// close mirror database
	if g.mir != nil {
		err = db.Close(g.conf.DbType, g.mir)
		log.Printf("Disconnecting %v mirror database, err:%e\n", g.conf.DbType, err)
	}
}

// cached wraps a producer operation with the read-through result cache. On a hit the stored value is returned and the
// producer is not invoked. On a miss the producer runs once and its result is stored only on success, so a transient
// failure self-heals on the next request. Duplicate concurrent misses may both invoke the producer; the last write to
// the cache wins.
func (g *Gateway) cached(key string, fn func() (interface{}, error)) (interface{}, bool, error) {
	if v, ok := g.cache.Get(key); ok {
		cacheHitMetric.Inc()

		return v, true, nil
	}

	cacheMissMetric.Inc()

	v, err := fn()
	if err != nil {
		return nil, false, err
	}

	g.cache.Set(key, v)

	return v, false, nil
}

// aggregate serves one network-wide consensus value through the cache.
func (g *Gateway) aggregate(key string, produce func() consensus.Result) consensus.Result {
	v, hit, _ := g.cached(key, func() (interface{}, error) {
		return produce(), nil
	})

	r := v.(consensus.Result)
	r.Cached = hit

	return r
}

// NetworkHeight returns the consensus of the trusted nodes' reported heights.
func (g *Gateway) NetworkHeight() consensus.Result {
	return g.aggregate(scopeNetHeight, g.produceNetworkHeight)
}

// NetworkDifficulty returns the consensus of the trusted nodes' reported difficulties.
func (g *Gateway) NetworkDifficulty() consensus.Result {
	return g.aggregate(scopeNetDifficulty, g.produceNetworkDifficulty)
}

// PoolHeight returns the consensus of the mining pools' reported network heights.
func (g *Gateway) PoolHeight() consensus.Result {
	return g.aggregate(scopePoolHeight, g.producePoolHeight)
}

// PoolDifficulty returns the consensus of the mining pools' reported network difficulties.
func (g *Gateway) PoolDifficulty() consensus.Result {
	return g.aggregate(scopePoolDiff, g.producePoolDifficulty)
}

func (g *Gateway) produceNetworkHeight() consensus.Result {
	return g.pollNodes(scopeNetHeight, func(d *daemon.Daemon) (map[string]interface{}, error) {
		return d.Height()
	}, "height")
}

func (g *Gateway) produceNetworkDifficulty() consensus.Result {
	return g.pollNodes(scopeNetDifficulty, func(d *daemon.Daemon) (map[string]interface{}, error) {
		return d.Info()
	}, "difficulty")
}

func (g *Gateway) producePoolHeight() consensus.Result {
	return g.pollPools(scopePoolHeight, "height")
}

func (g *Gateway) producePoolDifficulty() consensus.Result {
	return g.pollPools(scopePoolDiff, "difficulty")
}

// pollNodes queries every trusted node concurrently and reduces the given numeric field of their replies.
func (g *Gateway) pollNodes(scope string, call func(*daemon.Daemon) (map[string]interface{}, error),
	field string) consensus.Result {
	nodes := g.conf.Nodes

	samples := consensus.Poll(len(nodes), func(i int) (float64, error) {
		d := daemon.New(nodes[i].Host, nodes[i].Port, g.timeout)
		defer d.Close()

		m, err := call(d)
		if err != nil {
			upstreamErrorMetric.WithLabelValues(nodes[i].URI()).Inc()

			return 0, err
		}

		return numField(m, field)
	})

	r := consensus.Reduce(samples)
	aggregationAnswersMetric.WithLabelValues(scope).Set(float64(r.Ans))

	return r
}

// pollPools queries every known pool's stats endpoint concurrently and reduces the given field of their network
// documents. The poll works over the current directory snapshot so a concurrent refresh never changes the sample set
// mid-round.
func (g *Gateway) pollPools(scope, field string) consensus.Result {
	list := g.pools.Snapshot()

	samples := consensus.Poll(len(list), func(i int) (float64, error) {
		m, err := g.pools.Stats(list[i])
		if err != nil {
			upstreamErrorMetric.WithLabelValues(list[i].Name).Inc()

			return 0, err
		}

		net, ok := m["network"].(map[string]interface{})
		if !ok {
			return 0, fmt.Errorf("pool %s: %w", list[i].Name, ErrNoValue)
		}

		return numField(net, field)
	})

	r := consensus.Reduce(samples)
	aggregationAnswersMetric.WithLabelValues(scope).Set(float64(r.Ans))

	return r
}

// numField extracts a numeric JSON field from a decoded document.
func numField(m map[string]interface{}, field string) (float64, error) {
	v, ok := m[field].(float64)
	if !ok {
		return 0, fmt.Errorf("field %s: %w", field, ErrNoValue)
	}

	return v, nil
}

// Start launches the background refreshers: the pool directory on its own period, each aggregate at half its TTL so
// clients mostly hit warm entries, and the mirror readiness watch. Each refresher runs its task inline in its own
// goroutine, so a slow round is skipped over rather than overlapped.
func (g *Gateway) Start() {
	if err := g.pools.Refresh(); err != nil {
		log.Printf("Initial pool directory refresh failed, starting empty: %e", err)
	}

	poolListMetric.Set(float64(len(g.pools.Snapshot())))

	g.every(time.Duration(g.conf.PoolRefresh)*time.Second, func() {
		if err := g.pools.Refresh(); err != nil {
			log.Printf("Pool directory refresh failed, keeping previous list: %e", err)

			return
		}

		poolListMetric.Set(float64(len(g.pools.Snapshot())))
	})

	half := g.ttl / 2
	g.refreshAggregate(half, scopeNetHeight, g.produceNetworkHeight)
	g.refreshAggregate(half, scopeNetDifficulty, g.produceNetworkDifficulty)
	g.refreshAggregate(half, scopePoolHeight, g.producePoolHeight)
	g.refreshAggregate(half, scopePoolDiff, g.producePoolDifficulty)

	if g.mir != nil {
		g.watchMirror() // publish the initial state before serving
		g.every(g.ttl, g.watchMirror)
	}
}

// every runs task on each tick until the gateway stops. The task runs inline, so it can never overlap itself; ticks
// that fire while it is still running are dropped by the ticker.
func (g *Gateway) every(period time.Duration, task func()) {
	g.wg.Add(1)

	go func() {
		defer g.wg.Done()

		t := time.NewTicker(period)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				task()
			case <-g.done:
				return
			}
		}
	}()
}

// refreshAggregate recomputes one aggregate ahead of its expiry, bypassing the read-through path. A round with no
// usable answers does not overwrite the cache: a stale-but-present entry remains servable until real data returns.
func (g *Gateway) refreshAggregate(period time.Duration, key string, produce func() consensus.Result) {
	g.every(period, func() {
		r := produce()
		if r.Ans == 0 {
			log.Printf("[%s] Refresh round got no usable answers", key)

			return
		}

		g.cache.Set(key, r)
	})
}

// watchMirror polls the mirror's readiness and publishes ready/lost transitions to the broker.
func (g *Gateway) watchMirror() {
	up := g.mir.Ready()

	if up && atomic.CompareAndSwapInt32(&g.mirrorUp, 0, 1) {
		log.Printf("Mirror dataset is ready")
		g.sendEvent(msg.MirrorReady, "mirror", "")
	} else if !up && atomic.CompareAndSwapInt32(&g.mirrorUp, 1, 0) {
		log.Printf("Mirror dataset is not ready, serving from live nodes")
		g.sendEvent(msg.MirrorLost, "mirror", "")
	}
}

// sendEvent publishes a gateway event, dropping it when no broker is configured.
func (g *Gateway) sendEvent(eventType, source, detail string) {
	if g.mb == nil {
		return
	}

	if err := g.mb.SendEvent(msg.NewEvent(eventType, source, detail)); err != nil {
		log.Printf("Error publishing %s event:%e", eventType, err)
	}
}
