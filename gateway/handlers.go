package gateway

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tarancss/capi/lib/config"
	"github.com/tarancss/capi/lib/consensus"
	"github.com/tarancss/capi/lib/daemon"
	"github.com/tarancss/capi/lib/mirror"
)

// Errors returned to client requests.
var (
	ErrBadrequest = errors.New("bad request")
	ErrNoHashes   = errors.New("a txs_hashes array is required")
)

// writeJSON encodes v to the client. Callers set the status code first when it is not 200.
func writeJSON(rw http.ResponseWriter, v interface{}) {
	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	_ = json.NewEncoder(rw).Encode(v)
}

// homeHandler just replies a welcome message to the client.
func (g *Gateway) homeHandler(rw http.ResponseWriter, r *http.Request) {
	// log request
	log.Printf("httpreq from %v %s\n", r.RemoteAddr, r.RequestURI)
	// just reply a welcome message
	writeJSON(rw, map[string]string{"body": "Hello, this is your caching daemon gateway!"})
}

// nodeFromRequest resolves the target daemon from the request path, defaulting to the configured default node. The
// port variable is constrained to digits by the router, so Atoi cannot fail here.
func (g *Gateway) nodeFromRequest(r *http.Request) config.Node {
	vars := mux.Vars(r)

	n := g.conf.DefaultNode
	if host, ok := vars["node"]; ok {
		n.Host = host
		n.Port = config.DefaultNodeDefault.Port

		if port, ok := vars["port"]; ok {
			n.Port, _ = strconv.Atoi(port)
		}
	}

	return n
}

// withCached annotates a cache-served document so clients can tell a fresh answer from a stored one. The stored map
// is shallow-copied first: annotating it in place would leak the flag into the cache itself.
func withCached(m map[string]interface{}, hit bool) map[string]interface{} {
	if !hit {
		return m
	}

	out := make(map[string]interface{}, len(m)+1)
	for k, v := range m {
		out[k] = v
	}

	out["cached"] = true

	return out
}

// nodeEndpoint services one parameterless daemon endpoint through the result cache. A failing upstream is not an
// error of the gateway itself: the client gets a 200 reply naming the node and its error, matching what a direct
// daemon query feels like.
func (g *Gateway) nodeEndpoint(rw http.ResponseWriter, r *http.Request, method string,
	call func(*daemon.Daemon) (map[string]interface{}, error)) {
	var err error

	var res map[string]interface{}

	var hit bool

	n := g.nodeFromRequest(r)

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res = map[string]interface{}{"error": err.Error(), "node": n.URI()}
		} else {
			res = withCached(res, hit)
		}
		// log request
		log.Printf("httpreq from %v %s node:%s cached:%v err:%e\n", r.RemoteAddr, r.RequestURI, n.URI(), hit, err)
		// reply
		writeJSON(rw, res)
	}()

	var v interface{}

	v, hit, err = g.cached(n.URI()+":"+method, func() (interface{}, error) {
		d := daemon.New(n.Host, n.Port, g.timeout)
		defer d.Close()

		m, cerr := call(d)
		if cerr != nil {
			upstreamErrorMetric.WithLabelValues(n.URI()).Inc()
		}

		return m, cerr
	})
	if err == nil {
		res = v.(map[string]interface{})
	}
}

// infoHandler replies the node's status document.
func (g *Gateway) infoHandler(rw http.ResponseWriter, r *http.Request) {
	g.nodeEndpoint(rw, r, "getinfo", func(d *daemon.Daemon) (map[string]interface{}, error) {
		return d.Info()
	})
}

// heightHandler replies the node's height document.
func (g *Gateway) heightHandler(rw http.ResponseWriter, r *http.Request) {
	g.nodeEndpoint(rw, r, "getheight", func(d *daemon.Daemon) (map[string]interface{}, error) {
		return d.Height()
	})
}

// feeHandler replies the node's fee document.
func (g *Gateway) feeHandler(rw http.ResponseWriter, r *http.Request) {
	g.nodeEndpoint(rw, r, "fee", func(d *daemon.Daemon) (map[string]interface{}, error) {
		return d.Fee()
	})
}

// peersHandler replies the node's peer list.
func (g *Gateway) peersHandler(rw http.ResponseWriter, r *http.Request) {
	g.nodeEndpoint(rw, r, "getpeers", func(d *daemon.Daemon) (map[string]interface{}, error) {
		return d.Peers()
	})
}

// transactionsHandler forwards a hash lookup to the node. The request body names the hashes, so replies are never
// cached.
func (g *Gateway) transactionsHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res map[string]interface{}

	n := g.nodeFromRequest(r)

	defer func() {
		// reply to requester accordingly
		if err != nil {
			if errors.Is(err, ErrNoHashes) || errors.Is(err, ErrBadrequest) {
				rw.WriteHeader(http.StatusBadRequest)
				res = map[string]interface{}{"error": err.Error()}
			} else {
				res = map[string]interface{}{"error": err.Error(), "node": n.URI()}
			}
		}
		// log request
		log.Printf("httpreq from %v %s node:%s err:%e\n", r.RemoteAddr, r.RequestURI, n.URI(), err)
		// reply
		writeJSON(rw, res)
	}()

	var req struct {
		Hashes []string `json:"txs_hashes"`
	}

	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		err = ErrBadrequest

		return
	}

	if len(req.Hashes) == 0 {
		err = ErrNoHashes

		return
	}

	d := daemon.New(n.Host, n.Port, g.timeout)
	defer d.Close()

	if res, err = d.Transactions(req.Hashes); err != nil {
		upstreamErrorMetric.WithLabelValues(n.URI()).Inc()
	}
}

// aggregateHandler services one network-wide consensus value.
func (g *Gateway) aggregateHandler(rw http.ResponseWriter, r *http.Request, produce func() consensus.Result) {
	res := produce()

	log.Printf("httpreq from %v %s win:%v con:%v ans:%d cached:%v\n",
		r.RemoteAddr, r.RequestURI, res.Win, res.Con, res.Ans, res.Cached)
	writeJSON(rw, res)
}

func (g *Gateway) networkHeightHandler(rw http.ResponseWriter, r *http.Request) {
	g.aggregateHandler(rw, r, g.NetworkHeight)
}

func (g *Gateway) networkDifficultyHandler(rw http.ResponseWriter, r *http.Request) {
	g.aggregateHandler(rw, r, g.NetworkDifficulty)
}

func (g *Gateway) poolHeightHandler(rw http.ResponseWriter, r *http.Request) {
	g.aggregateHandler(rw, r, g.PoolHeight)
}

func (g *Gateway) poolDifficultyHandler(rw http.ResponseWriter, r *http.Request) {
	g.aggregateHandler(rw, r, g.PoolDifficulty)
}

// poolsHandler replies the current mining pool directory.
func (g *Gateway) poolsHandler(rw http.ResponseWriter, r *http.Request) {
	list := g.pools.Snapshot()

	log.Printf("httpreq from %v %s pools:%d\n", r.RemoteAddr, r.RequestURI, len(list))
	writeJSON(rw, map[string]interface{}{"pools": list})
}

// trustedNodesHandler replies the configured seed nodes.
func (g *Gateway) trustedNodesHandler(rw http.ResponseWriter, r *http.Request) {
	log.Printf("httpreq from %v %s nodes:%d\n", r.RemoteAddr, r.RequestURI, len(g.conf.Nodes))
	writeJSON(rw, map[string]interface{}{"nodes": g.conf.Nodes})
}

// explorerEndpoint services one explorer read through the fallback chain and the result cache, wrapping the document
// the way the daemon's own JSON-RPC endpoint would.
func (g *Gateway) explorerEndpoint(rw http.ResponseWriter, r *http.Request, key string,
	fn func() (map[string]interface{}, error)) {
	var err error

	var res map[string]interface{}

	var hit bool

	defer func() {
		// reply to requester accordingly
		if err != nil {
			if errors.Is(err, ErrBadrequest) {
				rw.WriteHeader(http.StatusBadRequest)
				writeJSON(rw, map[string]interface{}{"error": err.Error()})
			} else {
				// nothing left to serve from
				rw.WriteHeader(http.StatusInternalServerError)
			}
		} else {
			writeJSON(rw, map[string]interface{}{"jsonrpc": "2.0", "result": withCached(res, hit)})
		}
		// log request
		log.Printf("httpreq from %v %s cached:%v err:%e\n", r.RemoteAddr, r.RequestURI, hit, err)
	}()

	var v interface{}

	v, hit, err = g.cached(key, func() (interface{}, error) {
		return fn()
	})
	if err == nil {
		res = v.(map[string]interface{})
	}
}

// blockCountHandler replies the chain's block count from the best available source.
func (g *Gateway) blockCountHandler(rw http.ResponseWriter, r *http.Request) {
	g.explorerEndpoint(rw, r, "explorer:blockcount", g.fbBlockCount)
}

// blocksHandler replies the explorer block list walking down from the requested height.
func (g *Gateway) blocksHandler(rw http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(mux.Vars(r)["height"], 10, 64)
	if err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		writeJSON(rw, map[string]interface{}{"error": ErrBadrequest.Error()})

		return
	}

	g.explorerEndpoint(rw, r, "explorer:blocks:"+mux.Vars(r)["height"], func() (map[string]interface{}, error) {
		return g.fbBlocks(height)
	})
}

// blockHandler replies one block by hash or height.
func (g *Gateway) blockHandler(rw http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	g.explorerEndpoint(rw, r, "explorer:block:"+id, func() (map[string]interface{}, error) {
		return g.fbBlock(id)
	})
}

// topHeaderHandler replies the header of the chain tip.
func (g *Gateway) topHeaderHandler(rw http.ResponseWriter, r *http.Request) {
	g.explorerEndpoint(rw, r, "explorer:topheader", g.fbTopHeader)
}

// headerHandler replies one block header by hash or height.
func (g *Gateway) headerHandler(rw http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	g.explorerEndpoint(rw, r, "explorer:header:"+id, func() (map[string]interface{}, error) {
		return g.fbHeader(id)
	})
}

// transactionHandler replies one transaction by hash.
func (g *Gateway) transactionHandler(rw http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["hash"]

	g.explorerEndpoint(rw, r, "explorer:tx:"+hash, func() (map[string]interface{}, error) {
		return g.fbTransaction(hash)
	})
}

// transactionPoolHandler replies the pending transaction pool.
func (g *Gateway) transactionPoolHandler(rw http.ResponseWriter, r *http.Request) {
	g.explorerEndpoint(rw, r, "explorer:txpool", g.fbTransactionPool)
}

// paymentIDHandler replies the transactions tagged with one payment id. Mirror-only: without a ready mirror the
// lookup cannot be answered at all.
func (g *Gateway) paymentIDHandler(rw http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	g.explorerEndpoint(rw, r, "explorer:payid:"+id, func() (map[string]interface{}, error) {
		m, err := g.fbPaymentID(id)
		if errors.Is(err, mirror.ErrNotFound) {
			return map[string]interface{}{"transactions": []interface{}{}, "status": statusOK}, nil
		}

		return m, err
	})
}

// currencyIDHandler replies the chain's currency id.
func (g *Gateway) currencyIDHandler(rw http.ResponseWriter, r *http.Request) {
	g.explorerEndpoint(rw, r, "explorer:currency", g.fbCurrencyID)
}
