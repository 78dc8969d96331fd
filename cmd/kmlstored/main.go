package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"

	"kmlstore/pkg/config"
	"kmlstore/pkg/log"
	"kmlstore/pkg/metadata"
	"kmlstore/pkg/objstore"
	"kmlstore/pkg/origin"
	"kmlstore/pkg/server"
)

//go:embed VERSION
var Version string

func main() {
	envFile := flag.String("env", "", "Optional .env file to load before reading the environment")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		log.SetDebugMode()
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	authorizer, err := origin.New(cfg.Server.AllowedDomains)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to compile allowed domains")
	}

	ctx := context.Background()

	objects, err := objstore.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("bucket", cfg.Storage.Bucket).Msg("Failed to connect to object storage")
	}

	metadataStore, err := newMetadataStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Metadata.Backend).Msg("Failed to open metadata store")
	}
	defer func() {
		if err := metadataStore.Close(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to close metadata store")
		}
	}()

	srv := server.NewServer(cfg, Version, authorizer, objects, metadataStore)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	if err := srv.Start(addr); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func newMetadataStore(ctx context.Context, cfg *config.Config) (metadata.Store, error) {
	switch cfg.Metadata.Backend {
	case "sqlite":
		return metadata.NewSQLiteStore(cfg.Metadata.SQLitePath)
	case "mongo":
		return metadata.NewMongoStore(ctx, cfg.Metadata)
	default:
		return nil, fmt.Errorf("unknown metadata backend %q", cfg.Metadata.Backend)
	}
}
