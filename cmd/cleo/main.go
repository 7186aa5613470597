// Command cleo is the administrative command-line tool: it decodes
// CleoSetup bundles, stores a local config profile, and drives CARL's
// administrative RPC surface (spec.md §6) over HTTP. Command tree
// structure (root + subcommand constructors, local YAML config via viper)
// grounded on the teacher's cli/cmd/root.go.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eclipse-opendut/opendut-sub001/internal/admin"
	"github.com/eclipse-opendut/opendut-sub001/internal/cleoclient"
	"github.com/eclipse-opendut/opendut-sub001/internal/setup"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "opendut-cleo",
		Short:         "CLEO: administrative CLI for the openDuT control plane",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cobra.OnInitialize(initConfig)

	root.AddCommand(newSetupCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newPeerCmd())
	root.AddCommand(newDeviceCmd())
	root.AddCommand(newClusterCmd())
	return root
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".opendut-cleo"
	}
	return filepath.Join(home, ".opendut-cleo")
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir())
	viper.SetEnvPrefix("OPENDUT_CLEO")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

func saveConfig() error {
	if err := os.MkdirAll(configDir(), 0o700); err != nil {
		return err
	}
	return viper.WriteConfigAs(filepath.Join(configDir(), "config.yaml"))
}

func client() (*cleoclient.Client, error) {
	return cleoclient.NewClient(cleoclient.Config{
		BaseURL: viper.GetString("carl"),
		CAPem:   viper.GetString("ca"),
		Token:   viper.GetString("token"),
	})
}

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup <encoded-cleo-setup>",
		Short: "Decode a CleoSetup bundle and store carl/CA locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := setup.DecodeCleoSetup(args[0])
			if err != nil {
				return fmt.Errorf("decode cleo setup: %w", err)
			}
			viper.Set("carl", bundle.Carl)
			viper.Set("ca", bundle.CA)
			if err := saveConfig(); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleo configured against %s\n", bundle.Carl)
			return nil
		},
	}
}

// newTokenCmd stores a bearer token obtained out-of-band from the OIDC
// provider; per spec.md §1 non-goals, CLEO does not itself perform the
// OIDC client-credentials exchange, only carries the resulting token
// (see DESIGN.md).
func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <bearer-token>",
		Short: "Store a bearer token for subsequent administrative requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			viper.Set("token", args[0])
			if err := saveConfig(); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "token stored")
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	return nil
}

func newPeerCmd() *cobra.Command {
	peerCmd := &cobra.Command{Use: "peer", Short: "Manage peer descriptors"}

	peerCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every stored peer descriptor",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			var peers []admin.PeerDescriptorDTO
			if err := c.Get(context.Background(), "/api/v1/peers", &peers); err != nil {
				return err
			}
			return printJSON(cmd, peers)
		},
	})

	peerCmd.AddCommand(&cobra.Command{
		Use:   "get <peer-id>",
		Short: "Get one peer descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			var peer admin.PeerDescriptorDTO
			if err := c.Get(context.Background(), "/api/v1/peers/"+args[0], &peer); err != nil {
				return err
			}
			return printJSON(cmd, peer)
		},
	})

	peerCmd.AddCommand(&cobra.Command{
		Use:   "delete <peer-id>",
		Short: "Delete a peer descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			return c.Delete(context.Background(), "/api/v1/peers/"+args[0], nil)
		},
	})

	var fromFile string
	storeCmd := &cobra.Command{
		Use:   "store",
		Short: "Create or update a peer descriptor from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(fromFile)
			if err != nil {
				return fmt.Errorf("read %s: %w", fromFile, err)
			}
			var dto admin.PeerDescriptorDTO
			if err := json.Unmarshal(raw, &dto); err != nil {
				return fmt.Errorf("parse %s: %w", fromFile, err)
			}
			c, err := client()
			if err != nil {
				return err
			}
			var out map[string]string
			if err := c.Post(context.Background(), "/api/v1/peers", dto, &out); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	storeCmd.Flags().StringVar(&fromFile, "file", "", "path to a PeerDescriptor JSON document")
	_ = storeCmd.MarkFlagRequired("file")
	peerCmd.AddCommand(storeCmd)

	peerCmd.AddCommand(&cobra.Command{
		Use:   "state <peer-id>",
		Short: "Get a peer's live connectivity/membership state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			var state admin.PeerStateDTO
			if err := c.Get(context.Background(), "/api/v1/peers/"+args[0]+"/state", &state); err != nil {
				return err
			}
			return printJSON(cmd, state)
		},
	})

	peerCmd.AddCommand(&cobra.Command{
		Use:   "setup <peer-id>",
		Short: "Generate a PeerSetup bundle for a new EDGAR install",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			var out map[string]string
			if err := c.Post(context.Background(), "/api/v1/peers/"+args[0]+"/setup", nil, &out); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out["setup"])
			return nil
		},
	})

	return peerCmd
}

func newDeviceCmd() *cobra.Command {
	deviceCmd := &cobra.Command{Use: "device", Short: "Inspect device topology"}
	deviceCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every known device",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			var devices []admin.DeviceDTO
			if err := c.Get(context.Background(), "/api/v1/devices", &devices); err != nil {
				return err
			}
			return printJSON(cmd, devices)
		},
	})
	return deviceCmd
}

func newClusterCmd() *cobra.Command {
	clusterCmd := &cobra.Command{Use: "cluster", Short: "Manage cluster configurations and deployments"}

	clusterCmd.AddCommand(&cobra.Command{
		Use:  "list",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			var clusters []admin.ClusterConfigurationDTO
			if err := c.Get(context.Background(), "/api/v1/clusters", &clusters); err != nil {
				return err
			}
			return printJSON(cmd, clusters)
		},
	})

	clusterCmd.AddCommand(&cobra.Command{
		Use:  "get <cluster-id>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			var cfg admin.ClusterConfigurationDTO
			if err := c.Get(context.Background(), "/api/v1/clusters/"+args[0], &cfg); err != nil {
				return err
			}
			return printJSON(cmd, cfg)
		},
	})

	clusterCmd.AddCommand(&cobra.Command{
		Use:  "delete <cluster-id>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			return c.Delete(context.Background(), "/api/v1/clusters/"+args[0], nil)
		},
	})

	var fromFile string
	createCmd := &cobra.Command{
		Use: "create",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(fromFile)
			if err != nil {
				return fmt.Errorf("read %s: %w", fromFile, err)
			}
			var dto admin.ClusterConfigurationDTO
			if err := json.Unmarshal(raw, &dto); err != nil {
				return fmt.Errorf("parse %s: %w", fromFile, err)
			}
			c, err := client()
			if err != nil {
				return err
			}
			var out map[string]string
			if err := c.Post(context.Background(), "/api/v1/clusters", dto, &out); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	createCmd.Flags().StringVar(&fromFile, "file", "", "path to a ClusterConfiguration JSON document")
	_ = createCmd.MarkFlagRequired("file")
	clusterCmd.AddCommand(createCmd)

	clusterCmd.AddCommand(&cobra.Command{
		Use:  "deploy <cluster-id>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			return c.Post(context.Background(), "/api/v1/clusters/"+args[0]+"/deployment", nil, nil)
		},
	})

	clusterCmd.AddCommand(&cobra.Command{
		Use:  "undeploy <cluster-id>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			return c.Delete(context.Background(), "/api/v1/clusters/"+args[0]+"/deployment", nil)
		},
	})

	clusterCmd.AddCommand(&cobra.Command{
		Use:  "status <cluster-id>",
		Short: "Show the live peer states of a cluster's members",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			var states map[string]admin.PeerStateDTO
			if err := c.Get(context.Background(), "/api/v1/clusters/"+args[0]+"/peer-states", &states); err != nil {
				return err
			}
			return printJSON(cmd, states)
		},
	})

	return clusterCmd
}
