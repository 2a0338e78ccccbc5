package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TEENet-io/splminter-go/cmd"
	"github.com/TEENet-io/splminter-go/logconfig"
)

const (
	ENV_CONFIG_FILE_PATH = "SPLMINTER_CONFIG"
)

var cmdMain = &cobra.Command{
	Use:   "splminter",
	Short: "Issue and mint SPL tokens",

	PersistentPreRunE: func(c *cobra.Command, _ []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		logconfig.ConfigLogger(viper.GetString("LOG_LEVEL"))
		return nil
	},
	SilenceUsage: true,
}

var flagMain struct {
	ConfigFile string
}

func init() {
	// Tool to read environment variables
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	viper.SetDefault("SOLANA_CLUSTER", "devnet")
	viper.SetDefault("COMMITMENT", "confirmed")
	viper.SetDefault("HTTP_IP", "127.0.0.1")
	viper.SetDefault("HTTP_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")

	flags := cmdMain.PersistentFlags()
	flags.StringVarP(&flagMain.ConfigFile, "config", "c", "", "Configuration file, overrides $"+ENV_CONFIG_FILE_PATH)
	flags.String("cluster", "", "Solana cluster: mainnet-beta, testnet, devnet, localnet")
	flags.String("rpc-url", "", "Solana JSON RPC url, defaults to the public endpoint of the cluster")
	flags.String("keypair", "", "Wallet keypair file (solana-keygen JSON)")
	flags.String("signer", "", "Remote wallet signer address, host:port")
	flags.String("db", "", "Issuance db file, empty keeps state in memory")
	flags.String("log-level", "", "debug, info, warn, error or json")

	bindFlag("SOLANA_CLUSTER", "cluster")
	bindFlag("SOLANA_RPC_URL", "rpc-url")
	bindFlag("WALLET_KEYPAIR_PATH", "keypair")
	bindFlag("WALLET_SIGNER_ADDR", "signer")
	bindFlag("DB_FILE_PATH", "db")
	bindFlag("LOG_LEVEL", "log-level")

	cmdMain.AddCommand(cmdServe, cmdIssue, cmdMint, cmdResume, cmdBalance, cmdSigner)
}

func bindFlag(key string, flag string) {
	if err := viper.BindPFlag(key, cmdMain.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func main() {
	if err := cmdMain.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file named by --config or $SPLMINTER_CONFIG,
// if any. Env vars still win over the file.
func loadConfig() error {
	configFile := flagMain.ConfigFile
	if configFile == "" {
		configFile = viper.GetString(ENV_CONFIG_FILE_PATH)
	}
	if configFile == "" {
		return nil
	}
	if !cmd.FileExists(configFile) {
		return fmt.Errorf("configuration file not found: %s", configFile)
	}
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading configuration file: %w", err)
	}
	return nil
}

// PrepareServerConfig reads configuration variables and returns a ServerConfig.
func PrepareServerConfig() *cmd.ServerConfig {
	return &cmd.ServerConfig{
		// solana side
		SolanaCluster:  viper.GetString("SOLANA_CLUSTER"),
		SolanaRpcUrl:   viper.GetString("SOLANA_RPC_URL"),
		Commitment:     viper.GetString("COMMITMENT"),
		ConfirmTimeout: viper.GetString("CONFIRM_TIMEOUT"),
		PollInterval:   viper.GetString("POLL_INTERVAL"),
		// wallet side
		WalletKeypairPath:  viper.GetString("WALLET_KEYPAIR_PATH"),
		WalletSignerAddr:   viper.GetString("WALLET_SIGNER_ADDR"),
		WalletSignerCert:   viper.GetString("WALLET_SIGNER_CERT"),
		WalletSignerKey:    viper.GetString("WALLET_SIGNER_KEY"),
		WalletSignerCACert: viper.GetString("WALLET_SIGNER_CA_CERT"),
		// state side
		DbFilePath: viper.GetString("DB_FILE_PATH"),
		// Http side
		HttpIp:   viper.GetString("HTTP_IP"),
		HttpPort: viper.GetString("HTTP_PORT"),
	}
}
