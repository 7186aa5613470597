// Command edgar is the EDGAR edge agent: it holds CARL's peer broker
// stream open, reconciles pushed configurations onto the host's network,
// containers and processes (L6/L7/L8), and exposes a minimal /health
// endpoint of its own. Entry point structure mirrors cmd/carl.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eclipse-opendut/opendut-sub001/internal/edge/agent"
	"github.com/eclipse-opendut/opendut-sub001/internal/edge/applier"
	"github.com/eclipse-opendut/opendut-sub001/internal/edge/network"
	"github.com/eclipse-opendut/opendut-sub001/internal/edge/process"
	"github.com/eclipse-opendut/opendut-sub001/internal/rpc"
	"github.com/eclipse-opendut/opendut-sub001/internal/setup"
	"github.com/eclipse-opendut/opendut-sub001/pkg/config"
	"github.com/eclipse-opendut/opendut-sub001/pkg/logging"
	"github.com/eclipse-opendut/opendut-sub001/pkg/monitoring"
	"github.com/eclipse-opendut/opendut-sub001/pkg/server"
	"github.com/eclipse-opendut/opendut-sub001/pkg/version"
)

const defaultSetupPath = "/etc/opendut-edgar/peer-setup.json"

func main() {
	root := &cobra.Command{
		Use:           "opendut-edgar",
		Short:         "EDGAR edge agent: realises CARL-assigned peer configurations on this host",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newSetupCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newSetupCmd consumes a PeerSetup bundle generated by CARL's
// generate_peer_setup (spec.md §6) and writes it to disk, ready for
// newRunCmd to pick up.
func newSetupCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "setup <encoded-peer-setup>",
		Short: "Decode a PeerSetup bundle and persist it for `edgar run`",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := setup.DecodePeerSetup(args[0])
			if err != nil {
				return fmt.Errorf("decode peer setup: %w", err)
			}
			if err := writePeerSetup(outPath, bundle); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "peer setup for %s written to %s\n", bundle.Id, outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", defaultSetupPath, "path to persist the decoded peer setup")
	return cmd
}

func newRunCmd() *cobra.Command {
	var setupPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to CARL and reconcile pushed configurations until stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(setupPath)
		},
	}
	cmd.Flags().StringVar(&setupPath, "setup", defaultSetupPath, "path to the peer setup bundle written by `edgar setup`")
	return cmd
}

func writePeerSetup(path string, bundle setup.PeerSetup) error {
	raw, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal peer setup: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create setup directory: %w", err)
	}
	return os.WriteFile(path, raw, 0o600)
}

func readPeerSetup(path string) (setup.PeerSetup, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return setup.PeerSetup{}, fmt.Errorf("read peer setup %s: %w", path, err)
	}
	var bundle setup.PeerSetup
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return setup.PeerSetup{}, fmt.Errorf("parse peer setup: %w", err)
	}
	return bundle, nil
}

func run(setupPath string) error {
	logger := logging.NewLoggerWithService("edgar")
	config.LoadEnv(logger)

	bundle, err := readPeerSetup(setupPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load peer setup")
	}

	netManager := network.NewLinux()
	procManager := process.New()

	dockerRuntime, err := applier.NewDockerRuntime()
	if err != nil {
		logger.WithError(err).Warn("docker runtime unavailable; container executors will fail to start")
	}

	resultsDir := config.GetEnv("edgar.results.dir", "/var/lib/opendut-edgar/results")
	a := applier.New(netManager, procManager, dockerRuntime, resultsDir, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer a.Shutdown(ctx)

	tlsCfg, err := tlsConfigFor(bundle)
	if err != nil {
		logger.WithError(err).Fatal("failed to build TLS configuration from peer setup")
	}

	conn, err := rpc.Dial(ctx, rpc.ClientConfig{Address: bundle.Carl, TLS: tlsCfg})
	if err != nil {
		logger.WithError(err).Fatal("failed to dial carl peer broker")
	}
	defer conn.Close()

	client, err := rpc.Connect(ctx, conn)
	if err != nil {
		logger.WithError(err).Fatal("failed to open peer broker stream")
	}

	ag := agent.New(client, a, logger)

	go pingLoop(ctx, ag, logger)

	healthChecker := monitoring.NewHealthChecker("edgar", version.Version)
	healthChecker.AddCheck("peer_stream", func() monitoring.CheckResult {
		if ag.Healthy() {
			return monitoring.CheckResult{Status: monitoring.StatusHealthy, Message: "peer stream open"}
		}
		return monitoring.CheckResult{Status: monitoring.StatusDegraded, Message: "peer stream not confirmed live"}
	})
	metricsCollector := monitoring.NewMetricsCollector("edgar", version.Version, version.GitCommit)
	router := server.SetupServiceRouter(logger, "edgar", healthChecker, metricsCollector)

	go func() {
		if err := server.Start(server.DefaultConfig("edgar", "8081"), router, logger); err != nil {
			logger.WithError(err).Error("edgar health server stopped with error")
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() { runErr <- ag.Run(ctx) }()

	select {
	case <-sigs:
		logger.Info("shutting down edgar")
		cancel()
		return nil
	case err := <-runErr:
		if err != nil {
			logger.WithError(err).Error("peer stream closed")
			return err
		}
		return nil
	}
}

func pingLoop(ctx context.Context, a *agent.Agent, logger logging.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Ping(); err != nil {
				logger.WithError(err).Warn("ping failed")
			}
		}
	}
}

func tlsConfigFor(bundle setup.PeerSetup) (*tls.Config, error) {
	if bundle.CA == "" {
		return &tls.Config{}, nil
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM([]byte(bundle.CA)) {
		return nil, fmt.Errorf("no certificates parsed from peer setup CA")
	}
	return &tls.Config{RootCAs: pool}, nil
}
