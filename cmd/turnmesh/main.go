// turnmesh is a line-oriented front end for the dispatch core. Each line
// read from stdin becomes one message in the --chat conversation; messages
// are debounced into batches, dispatched, and replies are printed to
// stdout. Logs go to stderr.
//
// Usage:
//
//	turnmesh [--config path] [--chat id] [--log-level level] [--window 2s]
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/hupe1980/turnmesh/config"
	"github.com/hupe1980/turnmesh/logging"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, in io.Reader, out io.Writer) error {
	var (
		configPath string
		chatID     string
		logLevel   string
		handle     string
	)
	flagSet := pflag.NewFlagSet("turnmesh", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a YAML or TOML config file (default: $TURNMESH_CONFIG)")
	flagSet.StringVar(&chatID, "chat", "local", "conversation id for messages read from stdin")
	flagSet.StringVar(&handle, "handle", "", "sender handle attached to each message")
	flagSet.StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	window := flagSet.Duration("window", 0, "override ingest.window")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if *window > 0 {
		cfg.Ingest.Window = *window
	}

	logger := logging.NewSlogLogger(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format, false).WithComponent("turnmesh")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(cfg, logger, out)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.mesh.StartDrainLoop(ctx, nil); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			logger.Error("Reading stdin failed", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down", "reason", ctx.Err())
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if msg, ok := app.newMessage(chatID, handle, line); ok {
				app.batcher.AddMessage(msg)
			}
		}
	}
}
