// Command rtpsdiscoveryd runs one discovery participant: PDP, EDP
// matching, and WLP liveliness tracking, wired together by node.Node.
package main

import (
	"flag"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/go-rtps/discovery/config"
	"github.com/go-rtps/discovery/logging"
	"github.com/go-rtps/discovery/node"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logging.New(cfg.Participant.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logr.Sync()

	reg := prometheus.NewRegistry()

	n, err := node.New(cfg, logr, reg)
	if err != nil {
		logr.Fatal("failed to build discovery node", zap.Error(err))
	}

	if err := n.Start(); err != nil {
		logr.Fatal("node failed to start", zap.Error(err))
	}

	<-n.Context().Done()
}
