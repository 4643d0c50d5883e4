package gateway

import (
	"errors"
	"testing"

	"github.com/tarancss/capi/lib/config"
	"github.com/tarancss/capi/lib/mirror"
)

// fakeMirror is an in-memory mirror.Store for the fallback tests.
type fakeMirror struct {
	ready bool
	count uint64

	blocks map[string]map[string]interface{} // by hash
	txs    map[string]map[string]interface{} // by hash
}

func (f *fakeMirror) Ready() bool { return f.ready }

func (f *fakeMirror) BlockCount() (uint64, error) {
	if !f.ready {
		return 0, mirror.ErrNotReady
	}

	return f.count, nil
}

func (f *fakeMirror) Blocks(height uint64) ([]map[string]interface{}, error) {
	return []map[string]interface{}{{"height": height}}, nil
}

func (f *fakeMirror) Block(hash string) (map[string]interface{}, error) {
	if b, ok := f.blocks[hash]; ok {
		return b, nil
	}

	return nil, mirror.ErrNotFound
}

func (f *fakeMirror) BlockByHeight(height uint64) (map[string]interface{}, error) {
	for _, b := range f.blocks {
		if b["height"] == height {
			return b, nil
		}
	}

	return nil, mirror.ErrNotFound
}

func (f *fakeMirror) TopHeader() (map[string]interface{}, error) {
	return map[string]interface{}{"height": f.count - 1}, nil
}

func (f *fakeMirror) HeaderByHash(hash string) (map[string]interface{}, error) {
	return f.Block(hash)
}

func (f *fakeMirror) HeaderByHeight(height uint64) (map[string]interface{}, error) {
	return f.BlockByHeight(height)
}

func (f *fakeMirror) Transaction(hash string) (map[string]interface{}, error) {
	if tx, ok := f.txs[hash]; ok {
		return tx, nil
	}

	return nil, mirror.ErrNotFound
}

func (f *fakeMirror) TransactionsByPaymentID(id string) ([]map[string]interface{}, error) {
	return []map[string]interface{}{}, nil
}

func (f *fakeMirror) TransactionPool() ([]map[string]interface{}, error) {
	return []map[string]interface{}{}, nil
}

func (f *fakeMirror) CurrencyID() (string, error) {
	return "deadbeef", nil
}

func TestBlockCountFromMirror(t *testing.T) {
	m1, n1 := mockNode(t, 100)
	defer m1.Close()

	// 103 is within the 5-block deviance of the network height 100
	g := testGateway(t, &fakeMirror{ready: true, count: 103}, n1)

	res, err := g.fbBlockCount()
	if err != nil {
		t.Errorf("unexpected error:%e", err)
	}

	if res["count"] != uint64(103) || res["status"] != statusOK {
		t.Errorf("expected the mirror count 103, got %+v", res)
	}
}

func TestBlockCountDivergentMirror(t *testing.T) {
	m1, n1 := mockNode(t, 100)
	defer m1.Close()

	// 110 deviates beyond 5 blocks: the live node must answer
	g := testGateway(t, &fakeMirror{ready: true, count: 110}, n1)

	res, err := g.fbBlockCount()
	if err != nil {
		t.Errorf("unexpected error:%e", err)
	}

	if count, _ := res["count"].(float64); count != 100 {
		t.Errorf("expected the live count 100, got %+v", res)
	}
}

func TestBlockCountNoConsensus(t *testing.T) {
	// no seed nodes: the deviance check cannot run and the mirror is trusted as-is
	g := testGateway(t, &fakeMirror{ready: true, count: 999999})

	res, err := g.fbBlockCount()
	if err != nil {
		t.Errorf("unexpected error:%e", err)
	}

	if res["count"] != uint64(999999) {
		t.Errorf("expected the mirror count, got %+v", res)
	}
}

func TestBlockCountMirrorNotReady(t *testing.T) {
	m1, n1 := mockNode(t, 100)
	defer m1.Close()

	g := testGateway(t, &fakeMirror{ready: false, count: 100}, n1)

	res, err := g.fbBlockCount()
	if err != nil {
		t.Errorf("unexpected error:%e", err)
	}

	if count, _ := res["count"].(float64); count != 100 {
		t.Errorf("expected the live count, got %+v", res)
	}
}

func TestFallbackUnavailable(t *testing.T) {
	// no mirror and an unreachable default node
	g := testGateway(t, nil, config.Node{Host: "127.0.0.1", Port: 1})

	if _, err := g.fbBlockCount(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %e", err)
	}
}

func TestBlockByHashFallsThrough(t *testing.T) {
	m1, n1 := mockNode(t, 100)
	defer m1.Close()

	// mirror misses the hash, the live node serves it
	g := testGateway(t, &fakeMirror{ready: true, blocks: map[string]map[string]interface{}{}}, n1)

	res, err := g.fbBlock("feedface")
	if err != nil {
		t.Errorf("unexpected error:%e", err)
	}

	if res["status"] != statusOK {
		t.Errorf("expected a live block, got %+v", res)
	}
}

func TestBlockByHeightFromMirror(t *testing.T) {
	fm := &fakeMirror{
		ready:  true,
		blocks: map[string]map[string]interface{}{"aa": {"height": uint64(7), "hash": "aa"}},
	}

	g := testGateway(t, fm)

	res, err := g.fbBlock("7")
	if err != nil {
		t.Errorf("unexpected error:%e", err)
	}

	blk, _ := res["block"].(map[string]interface{})
	if blk == nil || blk["hash"] != "aa" {
		t.Errorf("expected the mirrored block, got %+v", res)
	}
}

func TestPaymentIDWithoutMirror(t *testing.T) {
	g := testGateway(t, nil)

	if _, err := g.fbPaymentID("00ff"); !errors.Is(err, ErrNoMirror) {
		t.Errorf("expected ErrNoMirror, got %e", err)
	}
}

func TestCurrencyIDFromMirror(t *testing.T) {
	g := testGateway(t, &fakeMirror{ready: true})

	res, err := g.fbCurrencyID()
	if err != nil {
		t.Errorf("unexpected error:%e", err)
	}

	if res["currency_id_blob"] != "deadbeef" {
		t.Errorf("expected the mirrored currency id, got %+v", res)
	}
}
