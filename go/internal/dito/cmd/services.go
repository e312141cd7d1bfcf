package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/dito/go/clients/slurk"
	"github.com/mcdev12/dito/go/internal/dito/config"
	"github.com/mcdev12/dito/go/internal/dito/gateway"
	"github.com/mcdev12/dito/go/internal/dito/images"
	"github.com/mcdev12/dito/go/internal/dito/orchestrator"
	"github.com/rs/zerolog/log"
)

// Transport carries chat events both ways.
type Transport interface {
	orchestrator.Emitter
	Run(ctx context.Context) error
	Close() error
}

type Services struct {
	Orchestrator *orchestrator.Orchestrator
	Transport    Transport
	Stats        *gateway.StatsServer

	supply *images.Supply
	pool   *pgxpool.Pool
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	instr, err := config.LoadInstructions(cfg.Instructions)
	if err != nil {
		return nil, err
	}
	names, err := config.LoadNames(cfg.Names)
	if err != nil {
		return nil, err
	}

	s := &Services{}

	src, err := s.setupSource(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.supply = images.NewSupply(src, images.SupplyConfig{
		PerRoom: cfg.Images.N,
		Shuffle: cfg.Images.Shuffle,
		Seed:    cfg.Images.Seed,
	})
	if err := s.supply.Validate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("image source: %w", err)
	}

	var orch *orchestrator.Orchestrator
	handler := gateway.HandlerFunc(func(ctx context.Context, eventType string, payload []byte) error {
		return orch.HandleEvent(ctx, eventType, payload)
	})

	s.Transport, err = setupTransport(ctx, cfg, handler)
	if err != nil {
		s.Close()
		return nil, err
	}

	orch = orchestrator.NewOrchestrator(orchestrator.NewConfig(cfg, instr, names), orchestrator.Deps{
		Emitter: s.Transport,
		Admin:   slurk.NewClient(cfg.BaseURI(), cfg.Token),
		Supply:  s.supply,
	})
	s.Orchestrator = orch
	s.Stats = gateway.NewStatsServer(cfg.StatsAddr, orch)

	log.Info().
		Int("task_id", cfg.TaskID).
		Str("source", cfg.Images.Source).
		Str("transport", cfg.Transport).
		Int("pairs_per_room", s.supply.PerRoom()).
		Msg("services ready")

	return s, nil
}

func (s *Services) setupSource(ctx context.Context, cfg *config.Config) (images.Source, error) {
	switch cfg.Images.Source {
	case config.SourceMinio:
		return images.NewMinioSource(images.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			UseSSL:    cfg.Minio.UseSSL,
			Region:    cfg.Minio.Region,
			Bucket:    cfg.Minio.Bucket,
			Object:    cfg.Minio.Object,
		})

	case config.SourcePostgres:
		pool, err := setupDatabase(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		s.pool = pool
		return images.NewPostgresSource(pool, cfg.Images.Table), nil

	default:
		return images.NewCSVSource(cfg.Images.Path), nil
	}
}

func setupTransport(ctx context.Context, cfg *config.Config, handler gateway.Handler) (Transport, error) {
	if cfg.Transport == config.TransportNATS {
		return gateway.NewNATSBridge(gateway.DefaultNATSConfig(cfg.NATSURL), handler)
	}

	wsURL, err := websocketURL(cfg.ChatURL())
	if err != nil {
		return nil, err
	}
	return gateway.DialChat(ctx, gateway.DefaultChatConfig(wsURL, cfg.Token), handler)
}

// websocketURL maps the chat server address onto its websocket endpoint.
func websocketURL(chatURL string) (string, error) {
	u, err := url.Parse(chatURL)
	if err != nil {
		return "", fmt.Errorf("parse chat url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func (s *Services) Close() {
	if s.Orchestrator != nil {
		s.Orchestrator.Stop()
	}
	if s.Transport != nil {
		if err := s.Transport.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close transport")
		}
	}
	if s.supply != nil {
		if err := s.supply.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close image source")
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
