package vpn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
	"github.com/eclipse-opendut/opendut-sub001/pkg/logging"
)

// Config mirrors the teacher's {Addr, Timeout, Logger} gRPC-client
// constructor shape (pkg/clients/foghorn, pkg/clients/quartermaster),
// translated to a REST management API since NetBird exposes one.
type Config struct {
	ManagementURL string
	SetupKey      string
	Timeout       time.Duration
	Logger        logging.Logger
}

// netbird is an HTTP client against a NetBird-management-API-shaped base
// URL. Only the capability surface openDuT needs is implemented; the rest
// of NetBird's API is out of scope (spec.md §1).
type netbird struct {
	cfg    Config
	client *http.Client
}

func NewNetbird(cfg Config) Vpn {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &netbird{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (n *netbird) Enabled() bool { return true }

func (n *netbird) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("netbird: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, n.cfg.ManagementURL+path, reader)
	if err != nil {
		return fmt.Errorf("netbird: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+n.cfg.SetupKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("netbird: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("netbird: unexpected status %d for %s %s", resp.StatusCode, method, path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (n *netbird) CreatePeer(ctx context.Context, id model.PeerId) error {
	return n.do(ctx, http.MethodPost, "/api/peers", map[string]string{"peer_id": id.String()}, nil)
}

func (n *netbird) DeletePeer(ctx context.Context, id model.PeerId) error {
	return n.do(ctx, http.MethodDelete, "/api/peers/"+id.String(), nil, nil)
}

func (n *netbird) CreatePeerConfiguration(ctx context.Context, id model.PeerId) (PeerConfig, error) {
	var out struct {
		SetupKey string `json:"setup_key"`
	}
	if err := n.do(ctx, http.MethodPost, "/api/peers/"+id.String()+"/setup-key", nil, &out); err != nil {
		return PeerConfig{}, err
	}
	return PeerConfig{SetupKey: out.SetupKey}, nil
}

func (n *netbird) ClusterAddressOf(ctx context.Context, id model.PeerId) (net.IP, error) {
	var out struct {
		Address string `json:"address"`
	}
	if err := n.do(ctx, http.MethodGet, "/api/peers/"+id.String()+"/address", nil, &out); err != nil {
		return nil, err
	}
	ip := net.ParseIP(out.Address)
	if ip == nil {
		return nil, fmt.Errorf("netbird: invalid address %q for peer %s", out.Address, id)
	}
	return ip, nil
}
