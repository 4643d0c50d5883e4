package config

import (
	"os"
	"testing"
)

func TestDefaults(t *testing.T) {
	conf, err := ExtractConfiguration("")
	if err != nil {
		t.Errorf("Error extracting default configuration:%e", err)
	}

	if conf.Port != PortDefault {
		t.Errorf("expected default port %s, got %s", PortDefault, conf.Port)
	}
	if conf.CacheTTL != CacheTTLDefault || conf.Timeout != TimeoutDefault ||
		conf.MaxDeviance != MaxDevianceDefault || conf.PoolRefresh != PoolRefreshDefault {
		t.Errorf("unexpected default tunables:%+v", conf)
	}
	if len(conf.Nodes) != len(NodesDefault) {
		t.Errorf("expected %d default nodes, got %d", len(NodesDefault), len(conf.Nodes))
	}
	if conf.DefaultNode != DefaultNodeDefault {
		t.Errorf("expected default node %+v, got %+v", DefaultNodeDefault, conf.DefaultNode)
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := ExtractConfiguration("no_such_file.json"); err == nil {
		t.Errorf("expected an error for a missing config file")
	}
}

func TestConfigFile(t *testing.T) {
	file, err := os.CreateTemp("", "conf*.json")
	if err != nil {
		t.Fatalf("Error creating temp config:%e", err)
	}
	defer os.Remove(file.Name())

	_, _ = file.WriteString(`{
		"dbtype": "postgresql",
		"port": "8080",
		"nodes": [{"host":"seed.example.org","port":11898}],
		"defaultNode": {"host":"seed.example.org","port":11898},
		"cacheTTL": 30,
		"maxDeviance": 10
	}`)
	file.Close()

	conf, err := ExtractConfiguration(file.Name())
	if err != nil {
		t.Errorf("Error extracting configuration:%e", err)
	}

	if conf.DbType != "postgresql" || conf.Port != "8080" || conf.CacheTTL != 30 || conf.MaxDeviance != 10 {
		t.Errorf("unexpected configuration:%+v", conf)
	}
	if len(conf.Nodes) != 1 || conf.Nodes[0].Host != "seed.example.org" {
		t.Errorf("unexpected nodes:%+v", conf.Nodes)
	}
	// untouched fields keep their defaults
	if conf.Timeout != TimeoutDefault || conf.MbType != MbTypeDefault {
		t.Errorf("expected defaults for untouched fields:%+v", conf)
	}
}

func TestEnvOverride(t *testing.T) {
	os.Setenv("CAPI_PORT", "9999")
	os.Setenv("CAPI_CACHETTL", "60")
	os.Setenv("CAPI_DEFAULTNODE", `{"host":"env.example.org","port":12000}`)

	defer func() {
		os.Unsetenv("CAPI_PORT")
		os.Unsetenv("CAPI_CACHETTL")
		os.Unsetenv("CAPI_DEFAULTNODE")
	}()

	conf, err := ExtractConfiguration("")
	if err != nil {
		t.Errorf("Error extracting configuration:%e", err)
	}

	if conf.Port != "9999" || conf.CacheTTL != 60 {
		t.Errorf("expected env overrides, got port:%s cacheTTL:%d", conf.Port, conf.CacheTTL)
	}
	if conf.DefaultNode.Host != "env.example.org" || conf.DefaultNode.Port != 12000 {
		t.Errorf("expected env default node, got %+v", conf.DefaultNode)
	}
}

func TestNodeURI(t *testing.T) {
	n := Node{Host: "seed.example.org", Port: 11898}
	if n.URI() != "seed.example.org:11898" {
		t.Errorf("unexpected uri %s", n.URI())
	}
}
