package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/abduss/tasktrack/internal/client"
	"github.com/abduss/tasktrack/internal/config"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadClient()

	serverURL := flag.String("server", cfg.BaseURL, "API base URL")
	sessionPath := flag.String("session", cfg.SessionPath, "Path to the local session file")
	verbose := flag.Bool("v", false, "Log API calls to stderr")
	flag.Usage = func() { printUsage(os.Stderr) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	log := zap.NewNop()
	if *verbose {
		if dev, err := zap.NewDevelopment(); err == nil {
			log = dev
		}
	}

	store, err := client.OpenBoltStore(*sessionPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	session := client.New(*serverURL, store,
		client.WithTimeout(cfg.Timeout),
		client.WithLogger(log),
		client.WithOnLogout(func() {
			fmt.Fprintln(os.Stderr, "Session ended, please log in again.")
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &app{
		session: session,
		out:     os.Stdout,
		in:      os.Stdin,
		retry:   client.RetryOptions{Base: cfg.RetryBase, MaxRetries: client.Retries(uint64(max(cfg.RetryAttempt, 0)))},
	}
	err = app.run(ctx, args)
	stop()
	if closeErr := store.Close(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "close session file: %v\n", closeErr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
