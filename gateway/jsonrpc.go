package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tarancss/capi/lib/daemon"
)

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcInvalidParams  = -32602
	rpcInternalError  = -32603
)

// rpcRequest is a client's JSON-RPC call. Params stays raw until the dispatched method knows its shape.
type rpcRequest struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Jsonrpc string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

// jsonRPCHandler dispatches a JSON-RPC call. On the default-node route the explorer-shaped read methods go through
// the mirror/cache fallback chain, everything else (and all node-scoped calls) is resolved live against the target
// node, with unknown methods forwarded verbatim. Malformed envelopes are rejected before any network call is made.
func (g *Gateway) jsonRPCHandler(rw http.ResponseWriter, r *http.Request) {
	var req rpcRequest

	n := g.nodeFromRequest(r)

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("httpreq from %v %s err:%e\n", r.RemoteAddr, r.RequestURI, err)
		writeJSON(rw, rpcResponse{Jsonrpc: "2.0", Error: &rpcError{rpcParseError, "Parse error"}})

		return
	}

	if req.Method == "" {
		log.Printf("httpreq from %v %s method missing\n", r.RemoteAddr, r.RequestURI)
		writeJSON(rw, rpcResponse{Jsonrpc: "2.0", ID: req.ID, Error: &rpcError{rpcInvalidRequest, "Invalid Request"}})

		return
	}

	var (
		result interface{}
		rpcErr *rpcError
		ok     bool
	)

	// a request naming an explicit node bypasses the mirror: the caller asked that node, not the best source
	if _, nodeScoped := mux.Vars(r)["node"]; !nodeScoped {
		result, rpcErr, ok = g.dispatchMirror(req)
	}

	if !ok {
		result, rpcErr = g.dispatch(n.URI(), req, func() *daemon.Daemon {
			return daemon.New(n.Host, n.Port, g.timeout)
		})
	}

	log.Printf("httpreq from %v %s method:%s node:%s err:%+v\n", r.RemoteAddr, r.RequestURI, req.Method, n.URI(), rpcErr)
	writeJSON(rw, rpcResponse{Jsonrpc: "2.0", ID: req.ID, Result: result, Error: rpcErr})
}

// dispatchMirror resolves the explorer-shaped read methods through the fallback chain, under the same cache scope
// tags the explorer REST endpoints use, so a ready mirror answers a default-node JSON-RPC call exactly like it
// answers the REST one (the block count included, with its deviance cross-check). The last return is false when the
// method is not mirror-backed and must be dispatched live.
func (g *Gateway) dispatchMirror(req rpcRequest) (interface{}, *rpcError, bool) {
	serve := func(key string, fn func() (map[string]interface{}, error)) (interface{}, *rpcError, bool) {
		v, hit, err := g.cached(key, func() (interface{}, error) {
			return fn()
		})
		if err != nil {
			return nil, &rpcError{rpcInternalError, err.Error()}, true
		}

		return withCached(v.(map[string]interface{}), hit), nil, true
	}

	switch req.Method {
	case "getblockcount":
		return serve("explorer:blockcount", g.fbBlockCount)
	case "getlastblockheader":
		return serve("explorer:topheader", g.fbTopHeader)
	case "getcurrencyid":
		return serve("explorer:currency", g.fbCurrencyID)
	case "f_on_transactions_pool_json":
		return serve("explorer:txpool", g.fbTransactionPool)
	case "f_blocks_list_json":
		var p struct {
			Height uint64 `json:"height"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, &rpcError{rpcInvalidParams, "expected {height}"}, true
		}

		return serve("explorer:blocks:"+strconv.FormatUint(p.Height, 10), func() (map[string]interface{}, error) {
			return g.fbBlocks(p.Height)
		})
	case "f_block_json":
		var p struct {
			Hash string `json:"hash"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil || p.Hash == "" {
			return nil, &rpcError{rpcInvalidParams, "expected {hash}"}, true
		}

		return serve("explorer:block:"+p.Hash, func() (map[string]interface{}, error) {
			return g.fbBlock(p.Hash)
		})
	case "f_transaction_json":
		var p struct {
			Hash string `json:"hash"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil || p.Hash == "" {
			return nil, &rpcError{rpcInvalidParams, "expected {hash}"}, true
		}

		return serve("explorer:tx:"+p.Hash, func() (map[string]interface{}, error) {
			return g.fbTransaction(p.Hash)
		})
	}

	return nil, nil, false
}

// dispatch resolves one JSON-RPC method live against the target node. Parameterless reads are cached under the
// node's uri and method name; identifier-carrying reads and passthrough are served uncached.
func (g *Gateway) dispatch(uri string, req rpcRequest, dial func() *daemon.Daemon) (interface{}, *rpcError) {
	call := func(fn func(*daemon.Daemon) (map[string]interface{}, error)) (interface{}, *rpcError) {
		d := dial()
		defer d.Close()

		m, err := fn(d)
		if err != nil {
			upstreamErrorMetric.WithLabelValues(uri).Inc()

			return nil, &rpcError{rpcInternalError, err.Error()}
		}

		return m, nil
	}

	cachedCall := func(method string, fn func(*daemon.Daemon) (map[string]interface{}, error)) (interface{}, *rpcError) {
		v, hit, err := g.cached(uri+":"+method, func() (interface{}, error) {
			d := dial()
			defer d.Close()

			m, cerr := fn(d)
			if cerr != nil {
				upstreamErrorMetric.WithLabelValues(uri).Inc()
			}

			return m, cerr
		})
		if err != nil {
			return nil, &rpcError{rpcInternalError, err.Error()}
		}

		return withCached(v.(map[string]interface{}), hit), nil
	}

	switch req.Method {
	case "getblockcount":
		return cachedCall(req.Method, func(d *daemon.Daemon) (map[string]interface{}, error) {
			return d.BlockCount()
		})
	case "getlastblockheader":
		return cachedCall(req.Method, func(d *daemon.Daemon) (map[string]interface{}, error) {
			return d.LastBlockHeader()
		})
	case "getcurrencyid":
		return cachedCall(req.Method, func(d *daemon.Daemon) (map[string]interface{}, error) {
			return d.CurrencyID()
		})
	case "f_on_transactions_pool_json":
		return cachedCall(req.Method, func(d *daemon.Daemon) (map[string]interface{}, error) {
			return d.TransactionPool()
		})
	case "on_getblockhash":
		// positional params: [height]
		var heights []uint64
		if err := json.Unmarshal(req.Params, &heights); err != nil || len(heights) != 1 {
			return nil, &rpcError{rpcInvalidParams, "expected [height]"}
		}

		d := dial()
		defer d.Close()

		hash, err := d.BlockHash(heights[0])
		if err != nil {
			upstreamErrorMetric.WithLabelValues(uri).Inc()

			return nil, &rpcError{rpcInternalError, err.Error()}
		}

		return hash, nil
	case "getblockheaderbyhash":
		var p struct {
			Hash string `json:"hash"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil || p.Hash == "" {
			return nil, &rpcError{rpcInvalidParams, "expected {hash}"}
		}

		return call(func(d *daemon.Daemon) (map[string]interface{}, error) {
			return d.BlockHeaderByHash(p.Hash)
		})
	case "getblockheaderbyheight":
		var p struct {
			Height uint64 `json:"height"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, &rpcError{rpcInvalidParams, "expected {height}"}
		}

		return call(func(d *daemon.Daemon) (map[string]interface{}, error) {
			return d.BlockHeaderByHeight(p.Height)
		})
	case "getblocktemplate":
		var p struct {
			Address string `json:"wallet_address"`
			Reserve uint   `json:"reserve_size"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil || p.Address == "" {
			return nil, &rpcError{rpcInvalidParams, "expected {wallet_address, reserve_size}"}
		}

		return call(func(d *daemon.Daemon) (map[string]interface{}, error) {
			return d.BlockTemplate(p.Address, p.Reserve)
		})
	case "submitblock":
		// positional params: [blob]
		var blobs []string
		if err := json.Unmarshal(req.Params, &blobs); err != nil || len(blobs) != 1 {
			return nil, &rpcError{rpcInvalidParams, "expected [block_blob]"}
		}

		return call(func(d *daemon.Daemon) (map[string]interface{}, error) {
			return d.SubmitBlock(blobs[0])
		})
	case "f_blocks_list_json":
		var p struct {
			Height uint64 `json:"height"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, &rpcError{rpcInvalidParams, "expected {height}"}
		}

		return call(func(d *daemon.Daemon) (map[string]interface{}, error) {
			return d.Blocks(p.Height)
		})
	case "f_block_json":
		var p struct {
			Hash string `json:"hash"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil || p.Hash == "" {
			return nil, &rpcError{rpcInvalidParams, "expected {hash}"}
		}

		return call(func(d *daemon.Daemon) (map[string]interface{}, error) {
			return d.Block(p.Hash)
		})
	case "f_transaction_json":
		var p struct {
			Hash string `json:"hash"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil || p.Hash == "" {
			return nil, &rpcError{rpcInvalidParams, "expected {hash}"}
		}

		return call(func(d *daemon.Daemon) (map[string]interface{}, error) {
			return d.Transaction(p.Hash)
		})
	default:
		// forward verbatim, never cached
		log.Printf("[json_rpc] Passing through unknown method %s to %s", req.Method, uri)

		d := dial()
		defer d.Close()

		var params interface{}
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return nil, &rpcError{rpcInvalidParams, "invalid params"}
			}
		}

		var reply interface{}
		if err := d.Call(req.Method, params, &reply); err != nil {
			upstreamErrorMetric.WithLabelValues(uri).Inc()

			return nil, &rpcError{rpcInternalError, err.Error()}
		}

		return reply, nil
	}
}
