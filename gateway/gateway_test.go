package gateway

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/tarancss/capi/lib/cache"
	"github.com/tarancss/capi/lib/config"
	"github.com/tarancss/capi/lib/mirror"
)

var errProducer = errors.New("producer blew up")

// mockNode starts a mock daemon node replying the given height and returns it with its config.Node. The JSON-RPC
// endpoint serves getblockcount with the same height as count and on_getblockhash with a synthetic hash.
func mockNode(t *testing.T, height uint64) (*httptest.Server, config.Node) {
	t.Helper()

	mock := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/getinfo":
			_ = json.NewEncoder(rw).Encode(map[string]interface{}{"height": height, "difficulty": height * 10, "status": "OK"})
		case "/getheight":
			_ = json.NewEncoder(rw).Encode(map[string]interface{}{"height": height, "status": "OK"})
		case "/fee":
			_ = json.NewEncoder(rw).Encode(map[string]interface{}{"amount": 0, "status": "OK"})
		case "/json_rpc":
			var req struct {
				ID     interface{}     `json:"id"`
				Method string          `json:"method"`
				Params json.RawMessage `json:"params"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				rw.WriteHeader(http.StatusBadRequest)

				return
			}

			var result interface{}

			switch req.Method {
			case "getblockcount":
				result = map[string]interface{}{"count": height, "status": "OK"}
			case "on_getblockhash":
				var heights []uint64
				if err := json.Unmarshal(req.Params, &heights); err != nil || len(heights) != 1 {
					rw.WriteHeader(http.StatusBadRequest)

					return
				}
				result = "hash-at-" + strconv.FormatUint(heights[0], 10)
			case "f_block_json":
				result = map[string]interface{}{"block": map[string]interface{}{"height": height}, "status": "OK"}
			default:
				_ = json.NewEncoder(rw).Encode(map[string]interface{}{
					"jsonrpc": "2.0", "id": req.ID,
					"error": map[string]interface{}{"code": -32601, "message": "Method not found"},
				})

				return
			}

			_ = json.NewEncoder(rw).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": result})
		default:
			rw.WriteHeader(http.StatusNotFound)
		}
	}))

	u, err := url.Parse(mock.URL)
	if err != nil {
		t.Fatalf("Error parsing mock url:%e", err)
	}

	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("Error splitting mock host:%e", err)
	}

	port, _ := strconv.Atoi(portStr)

	return mock, config.Node{Host: host, Port: port}
}

// testGateway builds a gateway over the given nodes with no pools, broker nor mirror. The first node is the default.
func testGateway(t *testing.T, mir mirror.Store, nodes ...config.Node) *Gateway {
	t.Helper()

	conf := config.ServiceConfig{
		Nodes:       nodes,
		PoolList:    "http://127.0.0.1:1/pools.json",
		CacheTTL:    15,
		Timeout:     2,
		MaxDeviance: 5,
		PoolRefresh: 3600,
	}
	if len(nodes) > 0 {
		conf.DefaultNode = nodes[0]
	}

	return New(conf, mir, nil)
}

func TestCached(t *testing.T) {
	g := testGateway(t, nil)

	calls := 0
	produce := func() (interface{}, error) {
		calls++

		return "value", nil
	}

	v, hit, err := g.cached("k", produce)
	if err != nil || hit || v.(string) != "value" {
		t.Errorf("expected a fresh value, got %v hit:%v err:%e", v, hit, err)
	}

	v, hit, err = g.cached("k", produce)
	if err != nil || !hit || v.(string) != "value" {
		t.Errorf("expected a cache hit, got %v hit:%v err:%e", v, hit, err)
	}

	if calls != 1 {
		t.Errorf("expected the producer to run once, ran %d times", calls)
	}
}

func TestCachedErrorNotStored(t *testing.T) {
	g := testGateway(t, nil)

	calls := 0

	_, _, err := g.cached("k", func() (interface{}, error) {
		calls++

		return nil, errProducer
	})
	if !errors.Is(err, errProducer) {
		t.Errorf("expected the producer error back, got %e", err)
	}

	// the failure was not cached: the next request invokes the producer again
	v, hit, err := g.cached("k", func() (interface{}, error) {
		calls++

		return "recovered", nil
	})
	if err != nil || hit || v.(string) != "recovered" {
		t.Errorf("expected a fresh value after a failure, got %v hit:%v err:%e", v, hit, err)
	}

	if calls != 2 {
		t.Errorf("expected 2 producer runs, got %d", calls)
	}
}

func TestCachedExpiryReinvokesProducer(t *testing.T) {
	g := testGateway(t, nil)
	g.cache = cache.New(20*time.Millisecond, 0)

	calls := 0
	produce := func() (interface{}, error) {
		calls++

		return calls, nil
	}

	if _, hit, _ := g.cached("k", produce); hit {
		t.Errorf("expected a miss on the first read")
	}

	time.Sleep(40 * time.Millisecond)

	// the entry has expired: the producer runs again and the read is a miss, not a hit
	v, hit, err := g.cached("k", produce)
	if err != nil || hit {
		t.Errorf("expected a fresh read after expiry, got hit:%v err:%e", hit, err)
	}

	if v.(int) != 2 || calls != 2 {
		t.Errorf("expected the producer re-invoked after expiry, got %v after %d runs", v, calls)
	}
}

func TestNetworkHeightConsensus(t *testing.T) {
	m1, n1 := mockNode(t, 100)
	defer m1.Close()
	m2, n2 := mockNode(t, 100)
	defer m2.Close()
	m3, n3 := mockNode(t, 110)
	defer m3.Close()

	g := testGateway(t, nil, n1, n2, n3)

	r := g.NetworkHeight()
	if r.Win != 100 || r.Ans != 3 || r.Cnt != 3 {
		t.Errorf("expected winner 100 over 3 answers, got %+v", r)
	}
	if r.Con < 0.66 || r.Con > 0.67 {
		t.Errorf("expected confidence 2/3, got %v", r.Con)
	}
	if r.Cached {
		t.Errorf("expected a fresh first aggregation")
	}

	// second read comes from the cache
	if r = g.NetworkHeight(); !r.Cached || r.Win != 100 {
		t.Errorf("expected a cached aggregation, got %+v", r)
	}
}

func TestNetworkHeightNodeFailure(t *testing.T) {
	m1, n1 := mockNode(t, 200)
	defer m1.Close()

	g := testGateway(t, nil, n1, config.Node{Host: "127.0.0.1", Port: 1})

	r := g.NetworkHeight()
	if r.Cnt != 2 || r.Ans != 1 || r.Win != 200 || r.Con != 1 {
		t.Errorf("expected one usable answer of 2 attempts, got %+v", r)
	}
}

func TestNetworkDifficulty(t *testing.T) {
	m1, n1 := mockNode(t, 100)
	defer m1.Close()

	g := testGateway(t, nil, n1)

	if r := g.NetworkDifficulty(); r.Win != 1000 || r.Ans != 1 {
		t.Errorf("expected difficulty 1000, got %+v", r)
	}
}

func TestPoolAggregateEmptyDirectory(t *testing.T) {
	g := testGateway(t, nil)

	r := g.PoolHeight()
	if r.Ans != 0 || r.Cnt != 0 || r.Win != 0 || r.Con != 1 {
		t.Errorf("expected the empty vote over an empty directory, got %+v", r)
	}
}

func TestWithCached(t *testing.T) {
	orig := map[string]interface{}{"height": 100.0}

	if got := withCached(orig, false); got["cached"] != nil {
		t.Errorf("expected no annotation on a fresh document, got %+v", got)
	}

	got := withCached(orig, true)
	if got["cached"] != true || got["height"] != 100.0 {
		t.Errorf("expected an annotated copy, got %+v", got)
	}

	// the stored document stays clean
	if _, ok := orig["cached"]; ok {
		t.Errorf("expected the original document untouched, got %+v", orig)
	}
}

func TestIsHeight(t *testing.T) {
	cases := []struct {
		id     string
		height uint64
		ok     bool
	}{
		{"12345", 12345, true},
		{"0", 0, true},
		{"00012345", 0, false}, // leading zeroes read as a hash
		{"abcdef012345", 0, false},
		{"", 0, false},
		{"-5", 0, false},
	}

	for _, c := range cases {
		h, ok := isHeight(c.id)
		if ok != c.ok || h != c.height {
			t.Errorf("%q: expected (%d,%v), got (%d,%v)", c.id, c.height, c.ok, h, ok)
		}
	}
}
