package cmd

import (
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/titanic-survival/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the prediction form, JSON API, health check and metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc := cfg.Server
		if serveAddr != "" {
			sc.Addr = serveAddr
		}
		return server.New(sc).Run(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
