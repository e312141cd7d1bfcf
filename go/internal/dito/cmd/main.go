package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/dito/go/internal/dito/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type flags struct {
	configPath string
	token      string
	chatHost   string
	chatPort   int
	taskID     int
}

func main() {
	cobra.CheckErr(newRootCmd().Execute())
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:          "dito",
		Short:        "Spot the difference bot for paired chat tasks",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&f.configPath, "config", getEnv("DITO_CONFIG", ""), "path to the YAML config file")
	cmd.Flags().StringVarP(&f.token, "token", "t", "", "bot access token")
	cmd.Flags().StringVarP(&f.chatHost, "chat_host", "c", "", "full URL (protocol, hostname) of the chat server")
	cmd.Flags().IntVarP(&f.chatPort, "chat_port", "p", 0, "port of the chat server")
	cmd.Flags().IntVar(&f.taskID, "task_id", 0, "task the bot serves")

	return cmd
}

func init() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	level, err := zerolog.ParseLevel(strings.ToLower(getEnv("DITO_LOG_LEVEL", "info")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// loadConfig reads the file and environment, then lets explicit flags win.
func loadConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("token") {
		cfg.Token = f.token
	}
	if cmd.Flags().Changed("chat_host") {
		cfg.ChatHost = f.chatHost
	}
	if cmd.Flags().Changed("chat_port") {
		cfg.ChatPort = f.chatPort
	}
	if cmd.Flags().Changed("task_id") {
		cfg.TaskID = f.taskID
	}
	return cfg, nil
}

func run(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer services.Close()

	go func() {
		if err := services.Stats.ListenAndServe(); err != nil {
			log.Error().Err(err).Msg("stats server failed")
		}
	}()

	if err := services.Orchestrator.Announce(ctx); err != nil {
		log.Error().Err(err).Msg("failed to announce bot")
	}

	err = services.Transport.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := services.Stats.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop stats server")
	}

	log.Info().Msg("bot stopped")
	return err
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
