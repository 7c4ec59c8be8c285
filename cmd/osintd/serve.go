package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stake-plus/osintops/src/api/webserver"
	"github.com/stake-plus/osintops/src/discord"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(getLogger func() *zap.Logger) *cobra.Command {
	var noDiscord bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when a token is configured, the Discord bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := getLogger()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(ctx, logger, runtimeOptions{})
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				rt.close(shutdownCtx)
				logger.Info("shutdown complete")
			}()

			if n, err := rt.svc.Recover(ctx); err != nil {
				logger.Warn("recovering interrupted investigations failed", zap.Error(err))
			} else if n > 0 {
				logger.Info("recovered interrupted investigations", zap.Int("count", n))
			}

			if rt.cfg.Token != "" && !noDiscord {
				bot, err := discord.New(discord.Config{
					Token:          rt.cfg.Token,
					GuildID:        rt.cfg.GuildID,
					OperatorRoleID: rt.cfg.OperatorRoleID,
				}, rt.svc, logger)
				if err != nil {
					return err
				}
				rt.svc.OnReport(bot.Notify)
				if err := bot.Start(); err != nil {
					return err
				}
				defer func() {
					if err := bot.Stop(); err != nil {
						logger.Warn("discord close failed", zap.Error(err))
					}
				}()
			}

			server := webserver.New(webserver.Config{
				ListenAddr:         rt.cfg.API.ListenAddr,
				AllowedOrigins:     rt.cfg.API.AllowedOrigins,
				RateLimitPerMinute: rt.cfg.API.RateLimitPerMinute,
				TLSCertFile:        rt.cfg.API.TLSCertFile,
				TLSKeyFile:         rt.cfg.API.TLSKeyFile,
			}, rt.svc, logger)
			defer server.Close()

			return server.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&noDiscord, "no-discord", false, "do not start the Discord bot")
	return cmd
}
