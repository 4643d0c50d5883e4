// Package main: gateway service.
package main

import (
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tarancss/capi/gateway"
	"github.com/tarancss/capi/lib/config"
	"github.com/tarancss/capi/lib/mirror"
	"github.com/tarancss/capi/lib/mirror/db"
	"github.com/tarancss/capi/lib/msg"
	"github.com/tarancss/capi/lib/msg/amqp"
)

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	monitor := flag.Bool("m", false, "flag to monitor the server with Prometheus at http://localhost:9090")
	flag.Parse()

	// extract configuration
	conf, err := config.ExtractConfiguration(*confPath)
	if err != nil {
		panic(err)
	}

	log.Printf("Configuration:%+v", conf)

	// connect to the mirror database
	var mir mirror.Store

	if conf.DbConn != "" {
		if mir, err = db.New(conf.DbType, conf.DbConn); errors.Is(err, db.ErrUnknownType) {
			log.Printf("Unknown mirror database type: %s, serving without mirror\n", conf.DbType)

			mir = nil
		} else if err != nil {
			panic(err)
		} else {
			log.Printf("Connecting to mirror database:%+v\n", conf.DbConn)
		}
	}

	// load Prometheus monitor
	if *monitor {
		go func() {
			log.Println("Serving metrics API")

			h := http.NewServeMux()

			h.Handle("/metrics", promhttp.Handler())
			http.ListenAndServe(":9100", h)
		}()
	}

	// load message broker
	var mb msg.Broker

	switch conf.MbType {
	case "amqp":
		if mb, err = amqp.New(conf.MbConn); err != nil {
			time.Sleep(10 * time.Second) // wait 10s for AMQP to be ready and try to reconnect

			if mb, err = amqp.New(conf.MbConn); err != nil {
				panic(err)
			}
		}

		if err = mb.Setup(nil); err != nil {
			panic(err)
		}
	default:
		log.Printf("Unknown message broker type: %s\n", conf.MbType)
	}

	// create gateway service
	g := gateway.New(conf, mir, mb)

	// capture CTRL+C or docker's SIGTERM for gracious exit
	finish := make(chan int)

	go func() {
		sigchan := make(chan os.Signal, 10)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan
		log.Println("Program killed !")
		// do last actions and wait for all write operations to end
		g.StopGateway()
		close(finish)
	}()

	// launch the pool directory and cache refreshers and the mirror watch
	g.Start()

	// init RESTful API, wait for its return and log response
	log.Printf("Gateway: %s\n", g.Init(conf.RestfulEndpoint, conf.Port, conf.SSLPort, conf.SSLCert, conf.SSLKey))

	<-finish
}
