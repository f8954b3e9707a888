package cli

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/glowcloud/glow/internal/config"
)

var (
	cfgFile    string
	appVersion string

	// Remote client overrides, applied on top of the client config file.
	remoteURL string
	remoteKey string
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(commit, date)
	return rootCmd.Execute()
}

func newRootCmd(commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "glow",
		Version: versionString(),
		Short:   "Authenticated gateway for a custodial Lightning wallet",
		Long: `Glow puts a custodial Lightning wallet behind an HTTP API with scoped API keys.

Each key carries permissions (balance, receive, send, admin), an optional
per-payment maximum and an optional daily, weekly or monthly budget that is
reserved atomically before any payment leaves the wallet.

Server commands (serve, key, mcp) read glow.yaml and GLOW_* variables.
Client commands (balance, send, keys, ...) talk to a running gateway using
the URL and key saved with 'glow config set-url' and 'glow config set-key'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./glow.yaml)")
	cmd.PersistentFlags().StringVar(&remoteURL, "url", "", "gateway URL for client commands (overrides GLOW_URL)")
	cmd.PersistentFlags().StringVar(&remoteKey, "key", "", "API key for client commands (overrides GLOW_KEY)")

	cobra.OnInitialize(initConfig)

	// Server side
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newOpenAPICmd())

	// Client side
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newBalanceCmd())
	cmd.AddCommand(newPaymentsCmd())
	cmd.AddCommand(newReceiveCmd())
	cmd.AddCommand(newSendCmd())
	cmd.AddCommand(newBudgetCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newKeysCmd())

	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(commit, date))

	return cmd
}

func initConfig() {
	// A missing .env is the common case.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("glow")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.glow")
	}

	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix("GLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}
