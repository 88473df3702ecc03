// File: cmd/coinwatch/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/params"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smartdevs17/coinwatch-gateway/internal/config"
	"github.com/smartdevs17/coinwatch-gateway/internal/gateway"
	"github.com/smartdevs17/coinwatch-gateway/internal/models"
	"github.com/smartdevs17/coinwatch-gateway/internal/server"
	"github.com/smartdevs17/coinwatch-gateway/pkg/coinaddr"
	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// loadConfig loads and validates configuration, applying flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if level := viper.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if viper.GetBool("debug") {
		cfg.App.Debug = true
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newApplication builds the application for commands that need one
var newApplication = NewApplication

// withApp loads configuration, wires the application and runs fn with a
// context cancelled on SIGINT or SIGTERM
func withApp(fn func(ctx context.Context, app *Application) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := newApplication(cfg)
	if err != nil {
		return err
	}
	defer app.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, app)
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// CLI Commands

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "coinwatch",
	Short:         "CryptoCoinWatch contract gateway",
	Long:          `Reads the CryptoCoinWatch contract's statistics and watch list, converts addresses and submits watch requests.`,
	Version:       AppVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// serveCmd runs the HTTP server and, when enabled, the owner updater
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *Application) error {
			if err := app.StartServer(ctx); err != nil {
				return fmt.Errorf("failed to start application: %w", err)
			}

			<-ctx.Done()
			fmt.Fprintln(cmd.OutOrStdout(), "\nReceived shutdown signal, stopping application...")
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show contract statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *Application) error {
			stats, err := app.gateway.GetStatistics(ctx, app.gateway.Contract())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				return printJSON(out, stats)
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Contract:\t%s\n", stats.Contract.Hex())
			fmt.Fprintf(w, "Owner:\t%s\n", stats.Owner.Hex())
			fmt.Fprintf(w, "Source:\t%s\n", stats.Source)
			fmt.Fprintf(w, "Min confirmations:\t%d\n", stats.MinConfirmations)
			fmt.Fprintf(w, "Last updated:\t%s\n", gateway.EpochFromNow(stats.LastUpdated))
			fmt.Fprintf(w, "Watched addresses:\t%d\n", stats.WatchListLength)
			return w.Flush()
		})
	},
}

var watchListCmd = &cobra.Command{
	Use:   "watchlist",
	Short: "List watched addresses and their records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *Application) error {
			entries, err := app.gateway.GetWatchList(ctx, app.gateway.Contract())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				return printJSON(out, entries)
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ADDRESS\tRECEIVED\tUPDATED\tWATCHED\tLAST WATCHED")
			for _, entry := range entries {
				printEntry(w, entry)
			}
			return w.Flush()
		})
	},
}

func printEntry(w io.Writer, entry *models.WatchListEntry) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
		entry.Address,
		humanize.Comma(int64(entry.ReceivedByAddress)),
		gateway.EpochFromNow(entry.LastUpdated),
		entry.NrWatched,
		gateway.EpochFromNow(entry.LastWatched),
	)
}

var recordCmd = &cobra.Command{
	Use:   "record <address|0xkey>",
	Short: "Show the contract record of one address or raw address key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *Application) error {
			entry, err := lookupRecord(ctx, app.gateway, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				return printJSON(out, entry)
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ADDRESS\tRECEIVED\tUPDATED\tWATCHED\tLAST WATCHED")
			printEntry(w, entry)
			return w.Flush()
		})
	},
}

// lookupRecord reads the record of an encoded address, or of a raw numeric
// key when arg is 0x-prefixed hex
func lookupRecord(ctx context.Context, gw *gateway.Gateway, arg string) (*models.WatchListEntry, error) {
	if !utils.Has0xPrefix(arg) {
		return gw.LookupAddress(ctx, gw.Contract(), arg)
	}

	raw, err := hexutil.Decode(arg)
	if err != nil || len(raw) > len(gateway.Word{}) {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid address key", arg)
	}

	word := gateway.WordFromBytes(raw)
	record, err := gw.GetAddressRecord(ctx, gw.Contract(), word.Uint256())
	if err != nil {
		return nil, err
	}

	// keys that are not a version 0 hash have no address form
	address, _ := coinaddr.HexToAddress(word.AddressHex())
	return models.NewWatchListEntry(address, word.AddressHex(), record), nil
}

var watchCmd = &cobra.Command{
	Use:   "watch <address>",
	Short: "Ask the contract to watch an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *Application) error {
			submission, err := app.watch.Watch(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Submitted watch for %s in transaction %s\n", submission.Address, submission.TxHash)

			if err := app.watch.Wait(ctx); err != nil {
				return err
			}

			if wait, _ := cmd.Flags().GetBool("wait"); wait {
				block, err := app.node.WaitForNextBlock(ctx, 2*time.Second)
				if err != nil {
					return err
				}
				entry, err := app.gateway.LookupAddress(ctx, app.gateway.Contract(), submission.Address)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Block %d: %s watched %d times\n", block, entry.Address, entry.NrWatched)
			}
			return nil
		})
	},
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Refresh stale received amounts as the contract owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *Application) error {
			if loop, _ := cmd.Flags().GetBool("loop"); loop {
				if err := app.updater.Start(ctx); err != nil {
					return err
				}
				<-ctx.Done()
				return nil
			}

			result, err := app.updater.RunOnce(ctx)
			if err != nil {
				return err
			}
			if err := app.watch.Wait(ctx); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show node connectivity and sender balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *Application) error {
			stats := app.connection.Status(ctx)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Node:\t%s\n", stats.CurrentURL)
			fmt.Fprintf(w, "Healthy:\t%t\n", stats.IsHealthy)
			fmt.Fprintf(w, "Network ID:\t%d\n", stats.NetworkID)
			fmt.Fprintf(w, "Chain ID:\t%d\n", stats.ChainID)
			fmt.Fprintf(w, "Latest block:\t%d\n", stats.LatestBlock)
			fmt.Fprintf(w, "Peers:\t%d\n", stats.PeerCount)
			if stats.LastError != "" {
				fmt.Fprintf(w, "Last error:\t%s\n", stats.LastError)
			}

			if app.node.CanTransact() {
				fmt.Fprintf(w, "Sender:\t%s\n", app.node.From().Hex())
				balance, err := app.node.SenderBalance(ctx)
				if err != nil {
					fmt.Fprintf(w, "Balance:\tunavailable (%v)\n", err)
				} else {
					fmt.Fprintf(w, "Balance:\t%s wei\n", humanize.BigComma(balance))
				}
			} else {
				fmt.Fprintf(w, "Sender:\tnone (read-only)\n")
			}
			return w.Flush()
		})
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert between addresses and hex payloads",
}

var convertHexCmd = &cobra.Command{
	Use:   "hex <hex>",
	Short: "Encode a hex payload as an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, err := coinaddr.HexToAddress(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), address)
		return nil
	},
}

var convertAddressCmd = &cobra.Command{
	Use:   "address <address>",
	Short: "Decode an address to its hex payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hexStr, err := coinaddr.AddressToHex(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hexStr)
		return nil
	},
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "CoinWatch Gateway %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration is valid!\n")
		fmt.Fprintf(out, "Environment: %s\n", cfg.App.Environment)
		fmt.Fprintf(out, "Node: %s\n", cfg.Node.NodeURL)
		fmt.Fprintf(out, "Contract: %s\n", cfg.Contract.String())
		if cfg.Contract.BelowIntrinsicGas() {
			fmt.Fprintf(out, "Warning: gas_limit %d is below intrinsic gas %d\n", cfg.Contract.GasLimit, params.TxGas)
		}
		if cfg.Storage.Enabled {
			fmt.Fprintf(out, "Journal: %s\n", cfg.Storage.Type)
		} else {
			fmt.Fprintf(out, "Journal: disabled\n")
		}
		return nil
	},
}

// init initializes the CLI commands
func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug mode")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	for _, cmd := range []*cobra.Command{statsCmd, watchListCmd, recordCmd} {
		cmd.Flags().Bool("json", false, "print JSON")
	}
	watchCmd.Flags().Bool("wait", false, "wait for the next block and print the address record")
	pollCmd.Flags().Bool("loop", false, "keep polling on the configured interval")

	server.Version = AppVersion

	rootCmd.AddCommand(serveCmd, statsCmd, watchListCmd, recordCmd, watchCmd, pollCmd, statusCmd)
	rootCmd.AddCommand(convertCmd, versionCmd, configCmd)
	convertCmd.AddCommand(convertHexCmd, convertAddressCmd)
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
