// Package daemon implements the client interface to one upstream daemon node. A client is stateless and addressed by
// host and port, so callers create one per call, issue the request and let it go. Plain status endpoints are served by
// the daemon over GET, everything else goes through its JSON-RPC 2.0 endpoint.
package daemon

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/powerman/rpc-codec/jsonrpc2"
)

// Errors returned
var (
	ErrBadStatus = errors.New("daemon replied with a non-OK http status")
)

// Daemon is a single-node client. Every request shares the client's timeout.
type Daemon struct {
	base string
	c    *http.Client
	rpc  *jsonrpc2.Client
}

// New returns a client for the daemon at host:port with the given per-call timeout.
func New(host string, port int, timeout time.Duration) *Daemon {
	base := "http://" + host + ":" + strconv.Itoa(port)
	c := &http.Client{Timeout: timeout}

	return &Daemon{
		base: base,
		c:    c,
		rpc:  jsonrpc2.NewCustomHTTPClient(base+"/json_rpc", c),
	}
}

// Close releases the underlying JSON-RPC client.
func (d *Daemon) Close() error {
	return d.rpc.Close()
}

// get decodes a GET endpoint reply into a map.
func (d *Daemon) get(path string) (map[string]interface{}, error) {
	resp, err := d.c.Get(d.base + path)
	if err != nil {
		return nil, fmt.Errorf("daemon: get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon: get %s: %d: %w", path, resp.StatusCode, ErrBadStatus)
	}

	var m map[string]interface{}
	if err = json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("daemon: get %s: %w", path, err)
	}

	return m, nil
}

// Info returns the daemon's /getinfo document (height, difficulty, peers, version...).
func (d *Daemon) Info() (map[string]interface{}, error) {
	return d.get("/getinfo")
}

// Fee returns the daemon's /fee document.
func (d *Daemon) Fee() (map[string]interface{}, error) {
	return d.get("/fee")
}

// Height returns the daemon's /getheight document.
func (d *Daemon) Height() (map[string]interface{}, error) {
	return d.get("/getheight")
}

// Peers returns the daemon's /getpeers document.
func (d *Daemon) Peers() (map[string]interface{}, error) {
	return d.get("/getpeers")
}

// Transactions posts the given hashes to /gettransactions and returns the daemon's reply.
func (d *Daemon) Transactions(hashes []string) (map[string]interface{}, error) {
	body, err := json.Marshal(map[string]interface{}{"txs_hashes": hashes})
	if err != nil {
		return nil, fmt.Errorf("daemon: transactions: %w", err)
	}

	resp, err := d.c.Post(d.base+"/gettransactions", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("daemon: transactions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon: transactions: %d: %w", resp.StatusCode, ErrBadStatus)
	}

	var m map[string]interface{}
	if err = json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("daemon: transactions: %w", err)
	}

	return m, nil
}

// Call forwards a named JSON-RPC method verbatim. Used for the typed wrappers below and for passthrough of methods
// this gateway does not dispatch itself.
func (d *Daemon) Call(method string, params, reply interface{}) error {
	if err := d.rpc.Call(method, params, reply); err != nil {
		return fmt.Errorf("daemon: %s: %w", method, err)
	}

	return nil
}

// callMap is Call for the majority of methods whose result is a JSON document.
func (d *Daemon) callMap(method string, params interface{}) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := d.Call(method, params, &m); err != nil {
		return nil, err
	}

	return m, nil
}

// BlockCount returns the getblockcount result ({"count":N,"status":"OK"}).
func (d *Daemon) BlockCount() (map[string]interface{}, error) {
	return d.callMap("getblockcount", nil)
}

// BlockHash returns the hash of the block at the given height (on_getblockhash takes its height positionally).
func (d *Daemon) BlockHash(height uint64) (string, error) {
	var hash string
	if err := d.Call("on_getblockhash", []uint64{height}, &hash); err != nil {
		return "", err
	}

	return hash, nil
}

// LastBlockHeader returns the header of the chain tip.
func (d *Daemon) LastBlockHeader() (map[string]interface{}, error) {
	return d.callMap("getlastblockheader", nil)
}

// BlockHeaderByHash returns the header of the block with the given hash.
func (d *Daemon) BlockHeaderByHash(hash string) (map[string]interface{}, error) {
	return d.callMap("getblockheaderbyhash", map[string]interface{}{"hash": hash})
}

// BlockHeaderByHeight returns the header of the block at the given height.
func (d *Daemon) BlockHeaderByHeight(height uint64) (map[string]interface{}, error) {
	return d.callMap("getblockheaderbyheight", map[string]interface{}{"height": height})
}

// BlockTemplate returns a mining template for the given wallet address and reserve size.
func (d *Daemon) BlockTemplate(address string, reserve uint) (map[string]interface{}, error) {
	return d.callMap("getblocktemplate", map[string]interface{}{"wallet_address": address, "reserve_size": reserve})
}

// SubmitBlock forwards a mined block blob to the daemon.
func (d *Daemon) SubmitBlock(blob string) (map[string]interface{}, error) {
	return d.callMap("submitblock", []string{blob})
}

// CurrencyID returns the getcurrencyid result.
func (d *Daemon) CurrencyID() (map[string]interface{}, error) {
	return d.callMap("getcurrencyid", nil)
}

// Blocks returns the explorer block list walking down from the given height (f_blocks_list_json).
func (d *Daemon) Blocks(height uint64) (map[string]interface{}, error) {
	return d.callMap("f_blocks_list_json", map[string]interface{}{"height": height})
}

// Block returns the explorer details of one block by hash (f_block_json).
func (d *Daemon) Block(hash string) (map[string]interface{}, error) {
	return d.callMap("f_block_json", map[string]interface{}{"hash": hash})
}

// Transaction returns the explorer details of one transaction by hash (f_transaction_json).
func (d *Daemon) Transaction(hash string) (map[string]interface{}, error) {
	return d.callMap("f_transaction_json", map[string]interface{}{"hash": hash})
}

// TransactionPool returns the daemon's pending transactions (f_on_transactions_pool_json).
func (d *Daemon) TransactionPool() (map[string]interface{}, error) {
	return d.callMap("f_on_transactions_pool_json", nil)
}
