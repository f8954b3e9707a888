package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/glowcloud/glow/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage Glow configuration",
		Long: `Initialize a default server configuration file, display the effective
configuration, or save the gateway URL and API key used by client commands.`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSetURLCmd())
	cmd.AddCommand(newConfigSetKeyCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var (
		force bool
		path  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default glow.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			fmt.Fprintln(cmd.OutOrStdout(), "Set database.dsn and wallet.url, then run 'glow key create admin --admin' and 'glow serve'.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")
	cmd.Flags().StringVarP(&path, "output", "o", "glow.yaml", "Path to write")

	return cmd
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}

	return cmd
}

func runConfigShow(w io.Writer) error {
	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		fmt.Fprintf(w, "Config file: %s\n", configFile)
	} else {
		fmt.Fprintln(w, "Config file: (none found, using defaults)")
	}
	fmt.Fprintln(w)

	keys := viper.AllKeys()
	sort.Strings(keys)
	for _, key := range keys {
		value := fmt.Sprint(viper.Get(key))
		if isSecretKey(key) && value != "" {
			value = config.MaskKey(value)
		}
		fmt.Fprintf(w, "  %s: %s\n", key, value)
	}

	path, err := config.ClientPath()
	if err != nil {
		return err
	}
	cc, err := config.LoadClient(path)
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Client config: %s\n", path)
	fmt.Fprintf(w, "  url: %s\n", cc.URL)
	if cc.Key != "" {
		fmt.Fprintf(w, "  key: %s\n", config.MaskKey(cc.Key))
	} else {
		fmt.Fprintln(w, "  key: (not set)")
	}
	return nil
}

// isSecretKey reports whether a settings key holds a credential.
func isSecretKey(key string) bool {
	for _, s := range []string{"dsn", "api_key", "secret", "password"} {
		if strings.HasSuffix(key, s) {
			return true
		}
	}
	return false
}

// ---------- config set-url / set-key ----------

func newConfigSetURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "set-url <url>",
		Short:   "Save the gateway URL for client commands",
		Example: "  glow config set-url https://glow.example.com",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateClientConfig(cmd.OutOrStdout(), func(cc *config.ClientConfig) {
				cc.URL = strings.TrimRight(args[0], "/")
			})
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key [key]",
		Short: "Save the API key for client commands",
		Long:  "Save the API key used by client commands. When no key is given it is read from the terminal without echo.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) == 1 {
				key = args[0]
			} else {
				var err error
				key, err = promptSecret(cmd.ErrOrStderr(), "API key: ")
				if err != nil {
					return err
				}
			}
			key = strings.TrimSpace(key)
			if key == "" {
				return fmt.Errorf("API key cannot be empty")
			}
			return updateClientConfig(cmd.OutOrStdout(), func(cc *config.ClientConfig) {
				cc.Key = key
			})
		},
	}
}

// updateClientConfig applies fn to the saved client config file. Values
// from GLOW_URL and GLOW_KEY are not persisted.
func updateClientConfig(w io.Writer, fn func(*config.ClientConfig)) error {
	path, err := config.ClientPath()
	if err != nil {
		return err
	}
	saved, err := config.ReadClient(path)
	if err != nil {
		return err
	}
	fn(saved)
	if err := config.SaveClient(path, saved); err != nil {
		return err
	}
	fmt.Fprintf(w, "Saved %s\n", path)
	return nil
}

// promptSecret reads a line without echo when stdin is a terminal.
func promptSecret(w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(w)
		if err != nil {
			return "", fmt.Errorf("read key: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read key: %w", err)
	}
	return line, nil
}
