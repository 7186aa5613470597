// Command carl runs the coordinator process: the resource store, the
// action layer's HTTP façade, the peer broker (gRPC stream), and the
// cluster deployer. Entry point structure adapted from the teacher's
// per-service cmd/main.go wiring (config load, logger, router, graceful
// server start).
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"

	"github.com/eclipse-opendut/opendut-sub001/internal/actions"
	"github.com/eclipse-opendut/opendut-sub001/internal/admin"
	"github.com/eclipse-opendut/opendut-sub001/internal/broker"
	"github.com/eclipse-opendut/opendut-sub001/internal/deployer"
	"github.com/eclipse-opendut/opendut-sub001/internal/peerauth"
	"github.com/eclipse-opendut/opendut-sub001/internal/rpc"
	"github.com/eclipse-opendut/opendut-sub001/internal/setup"
	"github.com/eclipse-opendut/opendut-sub001/internal/store"
	"github.com/eclipse-opendut/opendut-sub001/internal/store/memory"
	"github.com/eclipse-opendut/opendut-sub001/internal/store/postgres"
	"github.com/eclipse-opendut/opendut-sub001/internal/vpn"
	"github.com/eclipse-opendut/opendut-sub001/pkg/config"
	"github.com/eclipse-opendut/opendut-sub001/pkg/logging"
	"github.com/eclipse-opendut/opendut-sub001/pkg/monitoring"
	"github.com/eclipse-opendut/opendut-sub001/pkg/server"
	"github.com/eclipse-opendut/opendut-sub001/pkg/version"
)

func main() {
	logger := logging.NewLoggerWithService("carl")
	config.LoadEnv(logger)

	s, closeStore := mustOpenStore(logger)
	defer closeStore()

	v := mustOpenVpn(logger)

	opts := actions.Options{
		Store:             s,
		Vpn:               v,
		Logger:            logger,
		DefaultBridgeName: config.GetEnv("network.bridge.name", ""),
	}

	validator := mustOpenValidator(logger)

	registry := broker.New(s, logger)
	disconnectTimeout := time.Duration(config.GetEnvInt("peer.disconnect.timeout.ms", 30_000)) * time.Millisecond
	brokerServer := broker.NewServer(registry, s, disconnectTimeout)
	publisher := broker.NewPublisher(registry, s, logger)

	dep := deployer.New(s, v, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go publisher.Run(ctx)
	go dep.Run(ctx)

	go mustServeBroker(logger, brokerServer, validator)

	healthChecker := monitoring.NewHealthChecker("carl", version.Version)
	healthChecker.AddCheck("vpn", monitoring.VpnHealthCheck(func(ctx context.Context) error {
		if !v.Enabled() {
			return nil
		}
		return nil
	}))
	metricsCollector := monitoring.NewMetricsCollector("carl", version.Version, version.GitCommit)

	router := server.SetupServiceRouter(logger, "carl", healthChecker, metricsCollector)
	admin.RegisterRoutes(router, adminDeps(opts), validator)

	if err := server.Start(server.DefaultConfig("carl", "8080"), router, logger); err != nil {
		logger.WithError(err).Fatal("carl server stopped with error")
	}
}

func mustOpenStore(logger logging.Logger) (store.Store, func()) {
	backend := config.GetEnv("persistence.backend", "memory")
	if backend == "memory" {
		logger.Info("using in-memory resource store")
		return memory.New(), func() {}
	}

	cfg := postgres.DefaultConfig()
	cfg.URL = config.GetEnv("persistence.postgres.url", cfg.URL)
	pg, err := postgres.Connect(context.Background(), cfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to postgres store")
	}
	return pg, func() { _ = pg.Close() }
}

func mustOpenVpn(logger logging.Logger) vpn.Vpn {
	if !config.GetEnvBool("network.vpn.enabled", false) {
		logger.Info("vpn backend disabled")
		return vpn.Disabled()
	}
	return vpn.NewNetbird(vpn.Config{
		ManagementURL: config.GetEnv("network.vpn.netbird.management.url", ""),
		SetupKey:      config.GetEnv("network.vpn.netbird.setup.key", ""),
		Logger:        logger,
	})
}

// adminDeps assembles the PeerSetup/CleoSetup bootstrap material handed
// out by generate_peer_setup/generate_cleo_setup from the same flat
// configuration keys spec.md §6 enumerates for the OIDC/VPN clients.
func adminDeps(opts actions.Options) admin.Deps {
	caPEM := ""
	if caFile := config.GetEnv("network.tls.ca", ""); caFile != "" {
		if raw, err := os.ReadFile(caFile); err == nil {
			caPEM = string(raw)
		} else if opts.Logger != nil {
			opts.Logger.WithError(err).Warn("failed to read network.tls.ca; PeerSetup/CleoSetup bundles will carry an empty CA")
		}
	}

	auth := setup.AuthConfig{Enabled: config.GetEnvBool("network.oidc.enabled", false)}
	if auth.Enabled {
		auth.IssuerURL = config.GetEnv("network.oidc.client.issuer.remote.url", config.GetEnv("network.oidc.client.issuer.url", ""))
		auth.ClientId = config.GetEnv("network.oidc.client.peer.id", "")
		auth.ClientSecret = config.GetEnv("network.oidc.client.peer.secret", "")
		if scopes := config.GetEnv("network.oidc.client.scopes", ""); scopes != "" {
			auth.Scopes = strings.Split(scopes, ",")
		}
	}

	vpnCfg := setup.VpnConfig{Enabled: config.GetEnvBool("network.vpn.enabled", false)}
	if vpnCfg.Enabled {
		vpnCfg.ManagementURL = config.GetEnv("network.vpn.netbird.management.url", "")
	}

	return admin.Deps{
		Options: opts,
		CarlURL: fmt.Sprintf("%s:%s", config.GetEnv("network.carl.host", "localhost"), config.GetEnv("network.carl.port", "1337")),
		CAPem:   caPEM,
		Auth:    auth,
		Vpn:     vpnCfg,
	}
}

func mustOpenValidator(logger logging.Logger) *peerauth.Validator {
	issuerRemote := config.GetEnv("network.oidc.client.issuer.remote.url", "")
	issuerLocal := config.GetEnv("network.oidc.client.issuer.url", "")
	if issuerRemote == "" {
		issuerRemote = issuerLocal
	}
	if issuerRemote == "" {
		logger.Warn("network.oidc.client.issuer.remote.url is unset; peer authentication will reject every stream")
	}
	return &peerauth.Validator{
		Keys:           peerauth.NewKeySource(issuerLocal, &http.Client{Timeout: 5 * time.Second}),
		Issuer:         issuerRemote,
		IssuerFallback: issuerLocal,
		Audience:       config.GetEnv("network.oidc.client.id", ""),
	}
}

func mustServeBroker(logger logging.Logger, brokerServer *broker.Server, validator *peerauth.Validator) {
	addr := fmt.Sprintf(":%s", config.GetEnv("network.carl.port", "1337"))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.WithError(err).Fatal("failed to bind peer broker listener")
	}

	grpcServer := grpc.NewServer(grpc.StreamInterceptor(validator.StreamServerInterceptor()))
	rpc.RegisterPeerBrokerServer(grpcServer, brokerServer)

	logger.WithField("address", addr).Info("peer broker listening")
	if err := grpcServer.Serve(lis); err != nil {
		logger.WithError(err).Fatal("peer broker stopped with error")
	}
	os.Exit(1)
}
