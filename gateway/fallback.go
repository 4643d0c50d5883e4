package gateway

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"

	"github.com/tarancss/capi/lib/daemon"
	"github.com/tarancss/capi/lib/msg"
)

// statusOK matches the daemon's own result status spelling so mirror-served documents look the same to clients.
const statusOK = "OK"

// Errors returned to client requests.
var (
	ErrUnavailable = errors.New("no data source available")
	ErrNoMirror    = errors.New("no mirror configured")
)

// The fallback chain prefers the locally mirrored dataset over live network calls for explorer-style reads: the
// mirror is queried first, and on any mirror failure (not ready, not found, internal error) the call falls through to
// the default daemon node. When the live call fails too, the operation fails with ErrUnavailable. Only the block
// count cross-checks the mirror against the network consensus, because a synced-looking mirror that has silently
// stalled is indistinguishable from a healthy one by local inspection alone.

// mirrorReady reports whether mirror reads may be attempted at all.
func (g *Gateway) mirrorReady() bool {
	return g.mir != nil && g.mir.Ready()
}

// liveCall runs one operation against the default node, resolving any failure into ErrUnavailable.
func (g *Gateway) liveCall(op string, fn func(*daemon.Daemon) (map[string]interface{}, error)) (map[string]interface{}, error) {
	n := g.conf.DefaultNode

	d := daemon.New(n.Host, n.Port, g.timeout)
	defer d.Close()

	m, err := fn(d)
	if err != nil {
		log.Printf("[%s] Live fallback against %s failed:%e", op, n.URI(), err)
		upstreamErrorMetric.WithLabelValues(n.URI()).Inc()

		return nil, ErrUnavailable
	}

	return m, nil
}

// isHeight reports whether id names a block height rather than a hash. An identifier only counts as a height when
// formatting the parsed integer reproduces the input exactly, so hash-like strings with leading zeroes are never
// silently truncated into heights.
func isHeight(id string) (uint64, bool) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil || strconv.FormatUint(n, 10) != id {
		return 0, false
	}

	return n, true
}

// fbBlockCount serves the chain's block count. The mirror answer is only trusted while it stays within maxDeviance
// blocks of the aggregated network height; beyond that the mirror is considered stale and the live node answers.
func (g *Gateway) fbBlockCount() (map[string]interface{}, error) {
	if g.mirrorReady() {
		count, err := g.mir.BlockCount()
		if err == nil {
			net := g.NetworkHeight()
			if net.Ans == 0 || math.Abs(net.Win-float64(count)) <= float64(g.conf.MaxDeviance) {
				return map[string]interface{}{"count": count, "status": statusOK}, nil
			}

			detail := fmt.Sprintf("mirror count %d deviates from network height %.0f", count, net.Win)
			log.Printf("[blockcount] %s, falling back to live node", detail)
			mirrorRejectMetric.Inc()
			g.sendEvent(msg.MirrorDivergent, "mirror", detail)
		} else {
			log.Printf("[blockcount] Mirror read failed:%e", err)
		}
	}

	return g.liveCall("blockcount", func(d *daemon.Daemon) (map[string]interface{}, error) {
		return d.BlockCount()
	})
}

// fbBlocks serves the explorer block list walking down from the given height.
func (g *Gateway) fbBlocks(height uint64) (map[string]interface{}, error) {
	if g.mirrorReady() {
		if list, err := g.mir.Blocks(height); err == nil {
			return map[string]interface{}{"blocks": list, "status": statusOK}, nil
		}
	}

	return g.liveCall("blocks", func(d *daemon.Daemon) (map[string]interface{}, error) {
		return d.Blocks(height)
	})
}

// fbBlock serves one block by hash or height.
func (g *Gateway) fbBlock(id string) (map[string]interface{}, error) {
	height, byHeight := isHeight(id)

	if g.mirrorReady() {
		var (
			blk map[string]interface{}
			err error
		)

		if byHeight {
			blk, err = g.mir.BlockByHeight(height)
		} else {
			blk, err = g.mir.Block(id)
		}

		if err == nil {
			return map[string]interface{}{"block": blk, "status": statusOK}, nil
		}
	}

	return g.liveCall("block", func(d *daemon.Daemon) (map[string]interface{}, error) {
		hash := id
		if byHeight {
			var err error
			if hash, err = d.BlockHash(height); err != nil {
				return nil, err
			}
		}

		return d.Block(hash)
	})
}

// fbTopHeader serves the header of the chain tip.
func (g *Gateway) fbTopHeader() (map[string]interface{}, error) {
	if g.mirrorReady() {
		if h, err := g.mir.TopHeader(); err == nil {
			return map[string]interface{}{"block_header": h, "status": statusOK}, nil
		}
	}

	return g.liveCall("topheader", func(d *daemon.Daemon) (map[string]interface{}, error) {
		return d.LastBlockHeader()
	})
}

// fbHeader serves one block header by hash or height.
func (g *Gateway) fbHeader(id string) (map[string]interface{}, error) {
	height, byHeight := isHeight(id)

	if g.mirrorReady() {
		var (
			h   map[string]interface{}
			err error
		)

		if byHeight {
			h, err = g.mir.HeaderByHeight(height)
		} else {
			h, err = g.mir.HeaderByHash(id)
		}

		if err == nil {
			return map[string]interface{}{"block_header": h, "status": statusOK}, nil
		}
	}

	return g.liveCall("header", func(d *daemon.Daemon) (map[string]interface{}, error) {
		if byHeight {
			return d.BlockHeaderByHeight(height)
		}

		return d.BlockHeaderByHash(id)
	})
}

// fbTransaction serves one transaction by hash.
func (g *Gateway) fbTransaction(hash string) (map[string]interface{}, error) {
	if g.mirrorReady() {
		if tx, err := g.mir.Transaction(hash); err == nil {
			return map[string]interface{}{"transaction": tx, "status": statusOK}, nil
		}
	}

	return g.liveCall("transaction", func(d *daemon.Daemon) (map[string]interface{}, error) {
		return d.Transaction(hash)
	})
}

// fbTransactionPool serves the pending transaction pool.
func (g *Gateway) fbTransactionPool() (map[string]interface{}, error) {
	if g.mirrorReady() {
		if list, err := g.mir.TransactionPool(); err == nil {
			return map[string]interface{}{"transactions": list, "status": statusOK}, nil
		}
	}

	return g.liveCall("txpool", func(d *daemon.Daemon) (map[string]interface{}, error) {
		return d.TransactionPool()
	})
}

// fbPaymentID serves the transactions tagged with one payment id. Daemons do not index payment ids, so this read is
// mirror-only.
func (g *Gateway) fbPaymentID(id string) (map[string]interface{}, error) {
	if !g.mirrorReady() {
		return nil, ErrNoMirror
	}

	list, err := g.mir.TransactionsByPaymentID(id)
	if err != nil {
		return nil, fmt.Errorf("payment id lookup: %w", err)
	}

	return map[string]interface{}{"transactions": list, "status": statusOK}, nil
}

// fbCurrencyID serves the chain's currency id.
func (g *Gateway) fbCurrencyID() (map[string]interface{}, error) {
	if g.mirrorReady() {
		if id, err := g.mir.CurrencyID(); err == nil {
			return map[string]interface{}{"currency_id_blob": id, "status": statusOK}, nil
		}
	}

	return g.liveCall("currency", func(d *daemon.Daemon) (map[string]interface{}, error) {
		return d.CurrencyID()
	})
}
