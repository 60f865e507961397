// Command parliament runs a single Assembly to completion and prints
// the agreed decree (or decree vector, for Multi-Paxos). It is a demo
// entry point for the consensus engine, not the experiment driver
// described in spec.md §1 as out of scope.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/goshawkdb/parliament"
	"github.com/goshawkdb/parliament/assembly"
	"github.com/goshawkdb/parliament/paxos"
	"github.com/goshawkdb/parliament/transport"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	cfg, unreliable, failureRate, maxDelay, promPort, verbose, err := parseFlags()
	if parliament.CheckWarn(err, logger) {
		flag.Usage()
		os.Exit(1)
	}
	cfg.Logger = logger

	if verbose {
		parliament.DebugLog = parliament.DebugLogFunc(func(l log.Logger, kv ...interface{}) { l.Log(kv...) })
	}

	var t paxos.Transport
	if unreliable {
		ut, err := transport.NewUnreliable(failureRate, maxDelay, logger)
		if err != nil {
			logger.Log("msg", "fatal", "error", err)
			os.Exit(1)
		}
		t = ut
	} else {
		t = transport.NewReliable(logger)
	}

	asm := assembly.New(cfg, t)

	if promPort != 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(asm.Metrics().Gatherer(), promhttp.HandlerOpts{}))
		go func() {
			addr := fmt.Sprintf("localhost:%d", promPort)
			logger.Log("msg", "serving prometheus metrics", "addr", addr)
			_ = http.ListenAndServe(addr, mux)
		}()
	}

	start := time.Now()
	ledger, err := asm.Start(context.Background())
	if err != nil {
		logger.Log("msg", "assembly did not terminate", "error", err)
		os.Exit(1)
	}

	logger.Log("msg", "consensus reached", "elapsed", time.Since(start), "decrees", fmt.Sprint(ledger))
	for i, d := range ledger {
		fmt.Printf("instance %d: %s\n", i, d)
	}
}

func parseFlags() (cfg assembly.Config, unreliable bool, failureRate float64, maxDelay time.Duration, promPort int, verbose bool, err error) {
	flag.IntVar(&cfg.NProposers, "proposers", 1, "Number of proposer agents.")
	flag.IntVar(&cfg.NAcceptors, "acceptors", 3, "Number of acceptor agents.")
	flag.Float64Var(&cfg.ProposerFailRate, "proposerFailRate", 0, "Per-iteration crash probability for proposers.")
	flag.Float64Var(&cfg.AcceptorFailRate, "acceptorFailRate", 0, "Per-iteration crash probability for acceptors.")
	flag.DurationVar(&cfg.Period, "period", parliament.DefaultPeriod, "Proposer spontaneous-ballot period.")
	flag.DurationVar(&cfg.AvgFailureDuration, "avgFailureDuration", time.Second, "Mean crash-sleep duration.")
	flag.IntVar(&cfg.NbInstances, "instances", 1, "Multi-Paxos instance count (1 recovers basic Paxos).")
	flag.BoolVar(&unreliable, "unreliable", false, "Use the unreliable transport instead of the reliable one.")
	flag.Float64Var(&failureRate, "failureRate", 0, "Unreliable transport per-message loss probability.")
	flag.DurationVar(&maxDelay, "maxDelay", 0, "Unreliable transport maximum delivery delay.")
	flag.IntVar(&promPort, "prometheusPort", parliament.HttpMetricsPort, "Port to serve Prometheus /metrics on; 0 disables it.")
	flag.BoolVar(&verbose, "v", false, "Enable per-message debug logging.")
	flag.Parse()
	if cfg.NAcceptors < 1 {
		err = fmt.Errorf("-acceptors must be >= 1")
	} else if cfg.NProposers < 1 {
		err = fmt.Errorf("-proposers must be >= 1")
	}
	return
}
