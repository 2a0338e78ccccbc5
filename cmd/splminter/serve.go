package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TEENet-io/splminter-go/cmd"
)

var cmdServe = &cobra.Command{
	Use:   "serve",
	Short: "Run the http service",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		sc := PrepareServerConfig()
		fmt.Printf("Starting splminter on %s:%s (%s)... press Ctrl+C to kill the server\n", sc.HttpIp, sc.HttpPort, sc.SolanaCluster)
		return cmd.StartServerAndWait(sc)
	},
}

func init() {
	cmdServe.Flags().String("ip", "", "Listen ip")
	cmdServe.Flags().String("port", "", "Listen port")
	_ = viper.BindPFlag("HTTP_IP", cmdServe.Flags().Lookup("ip"))
	_ = viper.BindPFlag("HTTP_PORT", cmdServe.Flags().Lookup("port"))
}
