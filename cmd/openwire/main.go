// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/absmach/openwire/client"
	"github.com/absmach/openwire/config"
	"github.com/absmach/openwire/openwire"
	"github.com/absmach/openwire/otel"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	dest := flag.String("dest", "queue://test", "Destination, e.g. queue://orders or topic://prices")
	body := flag.String("body", "hello", "Text body to send")
	count := flag.Int("count", 1, "Messages to send or receive; 0 receives until interrupted")
	timeout := flag.Duration("timeout", 0, "Receive timeout per message; 0 waits forever")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] send|receive\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd != "send" && cmd != "receive" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	destination, err := openwire.ParseDestination(*dest)
	if err != nil {
		slog.Error("Invalid destination", "dest", *dest, "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hostname, _ := os.Hostname()
	tel, err := otel.Init(ctx, cfg.Telemetry, hostname)
	if err != nil {
		slog.Error("Failed to initialize OpenTelemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("OpenTelemetry shutdown failed", "error", err)
		}
	}()
	if cfg.Telemetry.MetricsEnabled || cfg.Telemetry.TracesEnabled {
		slog.Info("OpenTelemetry initialized", "endpoint", cfg.Telemetry.Endpoint)
	}

	opts := tel.Instrument(cfg.ClientOptions()).
		SetLogger(logger).
		SetOnException(func(err error) {
			slog.Error("Connection failure", "error", err)
			stop()
		})

	conn, err := client.Dial(ctx, opts)
	if err != nil {
		slog.Error("Failed to connect", "address", cfg.Broker.Address, "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	slog.Info("Connected", "address", cfg.Broker.Address, "connection_id", conn.ID().Value)

	session, err := conn.CreateSession(ctx, cfg.AckMode())
	if err != nil {
		slog.Error("Failed to create session", "error", err)
		os.Exit(1)
	}

	switch cmd {
	case "send":
		err = send(ctx, session, destination, *body, *count)
	case "receive":
		err = receive(ctx, session, destination, *count, *timeout)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Command failed", "command", cmd, "error", err)
		conn.Close()
		os.Exit(1)
	}
}

func send(ctx context.Context, s *client.Session, dest openwire.Destination, body string, count int) error {
	p, err := s.CreateProducer(ctx, dest)
	if err != nil {
		return err
	}
	defer p.Close()

	for i := range max(count, 1) {
		msg := &openwire.TextMessage{}
		if err := msg.SetText(body); err != nil {
			return err
		}
		if err := p.Send(ctx, msg); err != nil {
			return err
		}
		slog.Info("Sent", "dest", dest.String(), "seq", i+1, "message_id", msg.MessageID.String())
	}
	if s.Transacted() {
		return s.Commit(ctx)
	}
	return nil
}

func receive(ctx context.Context, s *client.Session, dest openwire.Destination, count int, timeout time.Duration) error {
	c, err := s.CreateConsumer(ctx, dest, "")
	if err != nil {
		return err
	}
	defer c.Close()

	for n := 0; count == 0 || n < count; n++ {
		rctx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			rctx, cancel = context.WithTimeout(ctx, timeout)
		}
		msg, err := c.Receive(rctx)
		cancel()
		if errors.Is(err, client.ErrNoMessage) && ctx.Err() == nil {
			slog.Info("No message before timeout", "timeout", timeout)
			return nil
		}
		if err != nil {
			return err
		}

		text, err := msg.Text()
		if err != nil {
			slog.Warn("Received non-text message", "type", msg.DataStructureType(), slog.Any("message_id", msg.Base().MessageID))
		} else {
			fmt.Println(text)
		}
		if err := msg.Acknowledge(); err != nil {
			return err
		}
		if s.Transacted() {
			if err := s.Commit(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}
