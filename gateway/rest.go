package gateway

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const serverTimeout = 15

// Init sets up and starts the http/https server to service the gateway API. If sslPort, sslCert and sslKey are
// informed, it will start an https (TLS) server on the specified endpoint. Literal routes are registered before the
// node-scoped ones so "/pools" is never read as a node named "pools".
func (g *Gateway) Init(endpoint, port, sslPort, sslCert, sslKey string) string {
	var err, errTLS error

	// API definition
	r := mux.NewRouter()
	r.HandleFunc("/", g.homeHandler)

	// network-wide aggregates
	r.HandleFunc("/globalheight", g.networkHeightHandler).Methods("GET")
	r.HandleFunc("/globaldifficulty", g.networkDifficultyHandler).Methods("GET")
	r.HandleFunc("/globalpoolheight", g.poolHeightHandler).Methods("GET")
	r.HandleFunc("/globalpooldifficulty", g.poolDifficultyHandler).Methods("GET")
	r.HandleFunc("/pools", g.poolsHandler).Methods("GET")
	r.HandleFunc("/trustedNodes", g.trustedNodesHandler).Methods("GET")

	// explorer reads, mirror first with live fallback
	r.HandleFunc("/blocks/count", g.blockCountHandler).Methods("GET")
	r.HandleFunc("/getblockcount", g.blockCountHandler).Methods("GET")
	r.HandleFunc("/blocks/{height:[0-9]+}", g.blocksHandler).Methods("GET")
	r.HandleFunc("/block/header/top", g.topHeaderHandler).Methods("GET")
	r.HandleFunc("/block/header/{id}", g.headerHandler).Methods("GET")
	r.HandleFunc("/block/{id}", g.blockHandler).Methods("GET")
	r.HandleFunc("/transaction/pool", g.transactionPoolHandler).Methods("GET")
	r.HandleFunc("/transaction/{hash}", g.transactionHandler).Methods("GET")
	r.HandleFunc("/transactions/{id}", g.paymentIDHandler).Methods("GET")
	r.HandleFunc("/currency", g.currencyIDHandler).Methods("GET")

	// default node endpoints, with the daemons' own spellings as aliases
	r.HandleFunc("/info", g.infoHandler).Methods("GET")
	r.HandleFunc("/getinfo", g.infoHandler).Methods("GET")
	r.HandleFunc("/height", g.heightHandler).Methods("GET")
	r.HandleFunc("/getheight", g.heightHandler).Methods("GET")
	r.HandleFunc("/fee", g.feeHandler).Methods("GET")
	r.HandleFunc("/feeinfo", g.feeHandler).Methods("GET")
	r.HandleFunc("/peers", g.peersHandler).Methods("GET")
	r.HandleFunc("/getpeers", g.peersHandler).Methods("GET")
	r.HandleFunc("/transactions", g.transactionsHandler).Methods("POST")
	r.HandleFunc("/gettransactions", g.transactionsHandler).Methods("POST")
	r.HandleFunc("/json_rpc", g.jsonRPCHandler).Methods("POST")

	// node-scoped endpoints, explicit host with optional port
	for _, route := range []struct {
		path    string
		method  string
		handler http.HandlerFunc
	}{
		{"/info", "GET", g.infoHandler},
		{"/getinfo", "GET", g.infoHandler},
		{"/height", "GET", g.heightHandler},
		{"/getheight", "GET", g.heightHandler},
		{"/fee", "GET", g.feeHandler},
		{"/feeinfo", "GET", g.feeHandler},
		{"/peers", "GET", g.peersHandler},
		{"/getpeers", "GET", g.peersHandler},
		{"/transactions", "POST", g.transactionsHandler},
		{"/gettransactions", "POST", g.transactionsHandler},
		{"/json_rpc", "POST", g.jsonRPCHandler},
	} {
		r.HandleFunc("/{node}"+route.path, route.handler).Methods(route.method)
		r.HandleFunc("/{node}/{port:[0-9]+}"+route.path, route.handler).Methods(route.method)
	}

	http.Handle("/", r)

	// setup shutdown channel
	g.sc = make(chan struct{})

	// start http server
	if port != "" {
		g.s = &http.Server{
			Handler: r,
			Addr:    endpoint + ":" + port,
			// Good practice: enforce timeouts for servers you create!
			WriteTimeout: serverTimeout * time.Second,
			ReadTimeout:  serverTimeout * time.Second,
		}

		go func() {
			err = g.s.ListenAndServe()
		}()

		log.Printf("Listening to API http requests on %s:%s", endpoint, port)
	}
	// start https server
	if sslPort != "" && sslCert != "" && sslKey != "" {
		g.ss = &http.Server{
			Handler: r,
			Addr:    endpoint + ":" + sslPort,
			// Good practice: enforce timeouts for servers you create!
			WriteTimeout: serverTimeout * time.Second,
			ReadTimeout:  serverTimeout * time.Second,
		}

		go func() {
			errTLS = g.ss.ListenAndServeTLS(sslCert, sslKey)
		}()

		log.Printf("Listening to API https requests on %s:%s", endpoint, sslPort)
	}
	// wait for servers to be shutdown
	<-g.sc

	return fmt.Sprintf("shutdown http server:%e, https server:%e", err, errTLS)
}
