package cli

import (
	"github.com/spf13/cobra"

	"github.com/wobblecap/wobblecap/internal/config"
	"github.com/wobblecap/wobblecap/internal/server"
	"github.com/wobblecap/wobblecap/pkg/buildinfo"
	"github.com/wobblecap/wobblecap/pkg/issuer"
)

// serveCommand creates the serve command, which runs the HTTP service until
// the process is interrupted.
func (c *CLI) serveCommand() *cobra.Command {
	var configPath, addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve captchas and verify answers over HTTP",
		Long: `Serve captchas and verify answers over HTTP.

Routes:
  GET  /healthz         build information
  GET  /captcha         PNG image, challenge id in the X-Captcha-Id header
  GET  /captcha.json    {"id", "image", "expires_at"}
  POST /captcha/verify  {"id", "answer"} -> {"success", "message"}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}

			engine, err := cfg.NewEngine(logger)
			if err != nil {
				return err
			}
			store, err := cfg.OpenStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			iss, err := issuer.New(engine, store, cfg.IssuerOptions(logger)...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printInfo(out, "Serving captchas on %s", StyleValue.Render(cfg.Server.Addr))
			printKeyValue(out, "version", buildinfo.Get().String())
			printKeyValue(out, "store", cfg.Store.Backend)
			printKeyValue(out, "ttl", cfg.Store.TTL.String())
			printDetail(out, "GET /captcha · GET /captcha.json · POST /captcha/verify")
			if cfg.Store.Secret == "" && cfg.Store.Backend != config.BackendMemory {
				printWarning(out, "store.secret is unset; challenges will not verify across restarts or instances")
			}

			srv := server.New(iss, store, logger)
			if err := srv.ListenAndServe(ctx, server.Options{
				Addr:            cfg.Server.Addr,
				ReadTimeout:     cfg.Server.ReadTimeout.Duration,
				WriteTimeout:    cfg.Server.WriteTimeout.Duration,
				ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration,
				CleanupInterval: cfg.Server.CleanupInterval.Duration,
			}); err != nil {
				return err
			}
			printSuccess(out, "Server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/wobblecap/config.toml)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}
