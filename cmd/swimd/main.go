// Command swimd runs one cluster-membership node: it binds the UDP
// transport, bootstraps from static seeds or etcd, and exposes the
// membership view and metrics over HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"swim/internal/cluster"
	"swim/internal/config"
	"swim/internal/discovery"
	"swim/internal/logging"
	"swim/internal/telemetry"
	"swim/internal/transport"
)

func main() {
	var (
		bindAddr      = flag.String("bind", "0.0.0.0:7946", "UDP listen address (host:port)")
		advertiseAddr = flag.String("advertise", "", "address peers should reach us at (defaults to bind)")
		clusterName   = flag.String("cluster", "swim", "cluster key; nodes with a different key ignore each other")
		seedsStr      = flag.String("seeds", "", "comma-separated seed addresses (host1:port1,host2:port2)")
		etcdEndpoints = flag.String("etcd-endpoints", "", "comma-separated etcd endpoints for registration and seed discovery")
		metricsAddr   = flag.String("metrics-addr", ":9090", "HTTP listen address for /metrics and /members")
		logLevel      = flag.String("log-level", "info", "log level: debug, info, warn, error")
		logFile       = flag.String("log-file", "", "optional rotating log file path")

		probeInterval    = flag.Duration("probe-interval", time.Second, "interval between liveness probes")
		probeTimeout     = flag.Duration("probe-timeout", 500*time.Millisecond, "direct probe ack deadline")
		indirectTimeout  = flag.Duration("indirect-timeout", time.Second, "relayed probe ack deadline")
		suspicionTimeout = flag.Duration("suspicion-timeout", 5*time.Second, "time a Suspect member has to refute")
		antiEntropy      = flag.Duration("anti-entropy-interval", 10*time.Second, "interval between full-state sync rounds")
	)
	flag.Parse()

	logger, err := logging.New(logging.Options{Level: *logLevel, File: *logFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(runOptions{
		bindAddr:         *bindAddr,
		advertiseAddr:    *advertiseAddr,
		clusterName:      *clusterName,
		seedsStr:         *seedsStr,
		etcdEndpoints:    *etcdEndpoints,
		metricsAddr:      *metricsAddr,
		probeInterval:    *probeInterval,
		probeTimeout:     *probeTimeout,
		indirectTimeout:  *indirectTimeout,
		suspicionTimeout: *suspicionTimeout,
		antiEntropy:      *antiEntropy,
	}, logger); err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
}

type runOptions struct {
	bindAddr      string
	advertiseAddr string
	clusterName   string
	seedsStr      string
	etcdEndpoints string
	metricsAddr   string

	probeInterval    time.Duration
	probeTimeout     time.Duration
	indirectTimeout  time.Duration
	suspicionTimeout time.Duration
	antiEntropy      time.Duration
}

func run(opts runOptions, logger *zap.Logger) error {
	cfg := config.Default()
	cfg.ClusterName = opts.clusterName
	cfg.BindAddr = opts.bindAddr
	cfg.ProbeInterval = opts.probeInterval
	cfg.ProbeTimeout = opts.probeTimeout
	cfg.IndirectTimeout = opts.indirectTimeout
	cfg.SuspicionTimeout = opts.suspicionTimeout
	cfg.AntiEntropyInterval = opts.antiEntropy

	staticSeeds, err := config.ParseSeeds(opts.seedsStr)
	if err != nil {
		return err
	}

	udp, err := transport.ListenUDP(cfg.BindAddr, cfg.MaxDatagramSize, logger)
	if err != nil {
		return err
	}
	var tr transport.Transport = udp
	if opts.advertiseAddr != "" {
		tr = advertised{Transport: udp, addr: opts.advertiseAddr}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var disc discovery.Discovery = discovery.Static(staticSeeds)
	var etcd *discovery.Etcd
	if opts.etcdEndpoints != "" {
		endpoints, err := config.ParseSeeds(opts.etcdEndpoints)
		if err != nil {
			return fmt.Errorf("invalid etcd endpoints: %w", err)
		}
		etcd, err = discovery.NewEtcd(endpoints, cfg.ClusterName, logger)
		if err != nil {
			return err
		}
		defer etcd.Close()
		disc = etcd
	}

	discovered, err := disc.Seeds(ctx)
	if err != nil {
		return fmt.Errorf("resolving seeds: %w", err)
	}
	// With static discovery the discovered list already is the static
	// list; merging dedups instead of doubling every seed.
	cfg.Seeds = config.MergeSeeds(discovered, staticSeeds)

	node, err := cluster.New(cfg, tr, logger)
	if err != nil {
		return err
	}

	if etcd != nil {
		if err := etcd.Register(ctx, string(node.Self().ID), tr.LocalAddr()); err != nil {
			return err
		}
	}

	node.Start()
	go serveHTTP(opts.metricsAddr, node, logger)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("shutting down", zap.String("signal", s.String()))

	node.Leave()
	// Give the departure gossip a moment on the wire before the socket
	// goes away.
	time.Sleep(2 * cfg.ProbeInterval)
	node.Shutdown()
	return nil
}

func serveHTTP(addr string, node *cluster.Cluster, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler())
	mux.HandleFunc("/members", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(node.Members()); err != nil {
			logger.Warn("encoding members response", zap.Error(err))
		}
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	logger.Info("http listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("http server stopped", zap.Error(err))
	}
}

// advertised overrides the address peers see, for nodes bound to a
// wildcard or NATed address.
type advertised struct {
	transport.Transport
	addr string
}

func (a advertised) LocalAddr() string { return a.addr }
