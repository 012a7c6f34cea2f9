package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/gossip-lsp/sightline"
	"github.com/gossip-lsp/sightline/middleware"
	"github.com/gossip-lsp/sightline/settings"
	"github.com/gossip-lsp/sightline/transport"
	"github.com/gossip-lsp/sightline/treesitter"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the language server",
		Long: `Run the language server. Editors usually pass one of the transport
flags; without one the server speaks over stdin and stdout.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	f := cmd.Flags()
	f.Bool("stdio", false, "communicate over stdin/stdout (default)")
	f.Bool("node-ipc", false, "communicate over the Node.js IPC channel")
	f.String("tcp", "", "listen on a TCP address for one client")
	f.String("socket", "", "listen on a Unix socket path for one client")
	f.String("ws", "", "listen on a WebSocket address for one client")
	f.String("listen", "", "transport spec, e.g. tcp:127.0.0.1:7777")
	f.Int("workers", runtime.GOMAXPROCS(0), "requests handled concurrently")
	f.Int("command-workers", runtime.GOMAXPROCS(0), "code-intelligence commands run concurrently")
	return cmd
}

// transportSpec picks the transport from the flags. At most one may be set.
func transportSpec(cmd *cobra.Command) (transport.Spec, error) {
	f := cmd.Flags()
	var specs []transport.Spec
	for _, b := range []struct {
		flag string
		kind transport.Kind
	}{
		{"stdio", transport.KindStdio},
		{"node-ipc", transport.KindNodeIPC},
	} {
		if on, _ := f.GetBool(b.flag); on {
			specs = append(specs, transport.Spec{Kind: b.kind})
		}
	}
	for _, s := range []struct {
		flag string
		kind transport.Kind
	}{
		{"tcp", transport.KindTCP},
		{"socket", transport.KindSocket},
		{"ws", transport.KindWebSocket},
	} {
		if addr, _ := f.GetString(s.flag); addr != "" {
			specs = append(specs, transport.Spec{Kind: s.kind, Addr: addr})
		}
	}
	if listen, _ := f.GetString("listen"); listen != "" {
		spec, err := transport.ParseSpec(listen)
		if err != nil {
			return transport.Spec{}, fmt.Errorf("--listen: %w", err)
		}
		specs = append(specs, spec)
	}

	switch len(specs) {
	case 0:
		return transport.Spec{Kind: transport.KindStdio}, nil
	case 1:
		return specs[0], nil
	}
	return transport.Spec{}, fmt.Errorf("conflicting transports %v and %v", specs[0], specs[1])
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	spec, err := transportSpec(cmd)
	if err != nil {
		return err
	}
	workers, err := cmd.Flags().GetInt("workers")
	if err != nil {
		return err
	}
	commandWorkers, err := cmd.Flags().GetInt("command-workers")
	if err != nil {
		return err
	}
	traceOn, err := cmd.Root().PersistentFlags().GetBool("trace")
	if err != nil {
		return err
	}

	tel, err := newTelemetry(traceOn, logger)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := middleware.Telemetry(tel.mp)
	if err != nil {
		return fmt.Errorf("request metrics: %w", err)
	}

	s := sightline.NewServer("sightline", version,
		sightline.WithLogger(logger),
		sightline.WithWorkers(workers),
		sightline.WithTreeSitter(treesitter.DefaultConfig()),
		sightline.WithConfig(settings.FileName, settings.Default()),
		sightline.WithMiddleware(
			middleware.Logging(logger),
			middleware.Tracing(tel.tp),
			metrics,
			middleware.Recovery(logger),
		),
	)
	if _, err := sightline.NewIntelligence(s,
		sightline.WithCommandWorkers(commandWorkers),
		sightline.WithTelemetry(tel.tp, tel.mp),
	); err != nil {
		return err
	}

	logger.Info("serving", "transport", spec.String())
	err = sightline.Serve(cmd.Context(), s, sightline.WithSpec(spec))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
