package main

import (
	"crypto/tls"
	"log/slog"
	"path/filepath"

	"github.com/Veraticus/claimflow/internal/api"
	"github.com/Veraticus/claimflow/internal/certs"
	"github.com/Veraticus/claimflow/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP console",
		Long: `Serve exposes the claim workflow over HTTP on a local address, so a browser
or script can drive the same steps as the CLI.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (default: serve.addr)")
	cmd.Flags().Bool("tls", false, "serve HTTPS with a self-signed localhost certificate")
	_ = viper.BindPFlag("serve.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	useTLS, _ := cmd.Flags().GetBool("tls")
	ctx := cmd.Context()

	s, cleanup, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if viper.GetString("logging.level") != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	var tlsConfig *tls.Config
	if useTLS {
		manager := certs.NewFileManager(filepath.Join(config.DefaultConfigDir(), "certs"))
		if tlsConfig, err = manager.TLSConfig(); err != nil {
			return err
		}
	}

	router := api.NewRouter(api.NewHandler(s.controller, slog.Default()))
	return api.Serve(ctx, s.cfg.Serve.Addr, router, tlsConfig)
}
