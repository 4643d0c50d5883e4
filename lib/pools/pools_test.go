package pools

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRefreshAndSnapshot(t *testing.T) {
	var fail int32

	mock := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&fail) == 1 {
			rw.WriteHeader(http.StatusInternalServerError)

			return
		}

		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"pools":[
			{"name":"alpha","url":"http://alpha.example.org/stats"},
			{"name":"beta","url":"http://beta.example.org/stats"}
		]}`))
	}))
	defer mock.Close()

	d := New(mock.URL, 2*time.Second)

	if len(d.Snapshot()) != 0 {
		t.Errorf("expected an empty directory before the first refresh")
	}

	if err := d.Refresh(); err != nil {
		t.Errorf("unexpected refresh error:%e", err)
	}

	list := d.Snapshot()
	if len(list) != 2 || list[0].Name != "alpha" || list[1].URL != "http://beta.example.org/stats" {
		t.Errorf("unexpected pool list:%+v", list)
	}

	// a failing refresh keeps the previous snapshot
	atomic.StoreInt32(&fail, 1)

	if err := d.Refresh(); err == nil {
		t.Errorf("expected an error on a failing directory fetch")
	}

	if got := d.Snapshot(); len(got) != 2 {
		t.Errorf("expected the previous list to survive a failed refresh, got %+v", got)
	}
}

func TestStats(t *testing.T) {
	mock := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"network":{"height":12345,"difficulty":987654},"pool":{"hashrate":1000}}`))
	}))
	defer mock.Close()

	d := New("http://unused.example.org", 2*time.Second)

	m, err := d.Stats(Pool{Name: "alpha", URL: mock.URL})
	if err != nil {
		t.Errorf("unexpected stats error:%e", err)
	}

	net, ok := m["network"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected a network document, got %+v", m)
	}

	if net["height"].(float64) != 12345 {
		t.Errorf("expected height 12345, got %v", net["height"])
	}
}

func TestStatsUnreachable(t *testing.T) {
	d := New("http://unused.example.org", 100*time.Millisecond)

	if _, err := d.Stats(Pool{Name: "down", URL: "http://127.0.0.1:1/stats"}); err == nil {
		t.Errorf("expected an error against an unreachable pool")
	}
}
