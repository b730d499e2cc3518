package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ppiankov/autoclaim/internal/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the claim upload page and decision API",
	Long: `Serve starts an HTTP server with:
- GET  /                   claim upload page
- POST /                   upload form (multipart field claim_file)
- POST /api/v1/decisions   JSON API (raw ClaimInfo body or multipart claim_file)
- GET  /healthz            liveness

Example:
  autoclaim serve
  autoclaim serve --addr :8080 --allow-all-origins`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default from config, :8501)")
	serveCmd.Flags().Bool("allow-all-origins", false, "allow all CORS origins")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.allow_all_origins", serveCmd.Flags().Lookup("allow-all-origins"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	logger := logrus.StandardLogger()
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.ConfigFrom(cfg.Server, cfg.Pipeline.Timeout), a.pipeline, logger)
	return srv.Start(ctx)
}
