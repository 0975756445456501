package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"meshnode/internal/config"
	"meshnode/internal/dataType"
	"meshnode/internal/server"
	"meshnode/internal/summarize"
	"meshnode/internal/ui"
	"meshnode/internal/utils"
)

func main() {
	var basePath, peerList string
	var port int
	var headless bool
	flag.StringVar(&basePath, "prefix", "", "Config file base path")
	flag.IntVar(&port, "port", -1, "Port for this node to listen on (overrides config)")
	flag.StringVar(&peerList, "peers", "", "Comma-separated peers to connect to, host:port or bare port")
	flag.BoolVar(&headless, "headless", false, "Read messages from stdin and print the log to stdout")
	flag.Parse()

	// Load MainConfig
	cfg, err := config.LoadMainConfig(basePath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Fatalf("Load config failed: %v", err)
		}
		log.Printf("No config file found, using defaults")
	}

	if port >= 0 {
		cfg.Port = port
	}
	if peerList != "" {
		cfg.Peers, err = config.ParsePeers(peerList, cfg.BindHost)
		if err != nil {
			log.Fatalf("Parse peers failed: %v", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logs := utils.NewManager(cfg.LogPath, cfg.LogLevel)
	defer logs.Close()
	logger := logs.Logger(fmt.Sprintf("%s-%d", cfg.NodeName, cfg.Port))
	logger.Info("starting", zap.String("version", dataType.MeshNodeVersion), zap.String("addr", cfg.ListenAddr()))

	summarizer := summarize.NewOllamaClient(cfg.Summarizer.Endpoint, cfg.Summarizer.Model, cfg.Summarizer.Timeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if headless {
		console := ui.NewConsole(os.Stdin, os.Stdout)
		node := server.NewNode(cfg, console, summarizer, logger)
		if err := node.Start(ctx); err != nil {
			log.Fatalf("Failed to start node: %v", err)
		}
		runErr := console.Run(ctx, node)
		shutdown(node, logger, runErr)
		return
	}

	tui := ui.NewTUI(fmt.Sprintf("MeshMate Node %s (port %d)", dataType.MeshNodeVersion, cfg.Port))
	node := server.NewNode(cfg, tui, summarizer, logger)
	if err := node.Start(ctx); err != nil {
		log.Fatalf("Failed to start node: %v", err)
	}
	context.AfterFunc(ctx, tui.Shutdown)
	runErr := tui.Run(node)
	shutdown(node, logger, runErr)
}

func shutdown(node *server.Node, logger *zap.Logger, runErr error) {
	if runErr != nil {
		logger.Error("front end stopped", zap.Error(runErr))
		log.Printf("Front end stopped: %v", runErr)
	}
	if err := node.Close(); err != nil {
		logger.Error("close node", zap.Error(err))
	}
	log.Println("Node stopped")
}
