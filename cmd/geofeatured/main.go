// Command geofeatured is the process entrypoint: parse flags, open the
// connection pools, wire the core components, and serve HTTP. Structured
// the way connectctl/main.go parses docopt flags into a versioned CLI tool,
// generalized into a long-running server instead of a one-shot command.
package main

import (
	_ "embed"
	"log"
	"os"

	"github.com/GrainArc/geofeatured/internal/authshim"
	"github.com/GrainArc/geofeatured/internal/config"
	"github.com/GrainArc/geofeatured/internal/feature"
	"github.com/GrainArc/geofeatured/internal/httpapi"
	"github.com/GrainArc/geofeatured/internal/mutate"
	"github.com/GrainArc/geofeatured/internal/osmshim"
	"github.com/GrainArc/geofeatured/internal/pool"
	"github.com/GrainArc/geofeatured/internal/tile"
	"github.com/GrainArc/geofeatured/internal/webhook"
)

const version = "geofeatured 0.1.0"

//go:embed schema.sql
var schemaSQL string

func main() {
	cfg, err := config.Parse(os.Args[1:], version)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	p, err := pool.Open(cfg, schemaSQL)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer p.Close()

	var validator feature.SchemaValidator
	if cfg.SchemaPath != "" {
		sv, err := feature.LoadSchema(cfg.SchemaPath)
		if err != nil {
			log.Fatalf("schema: %v", err)
		}
		validator = sv
	}

	var authPolicy *authshim.Policy
	if cfg.AuthPath != "" {
		authPolicy, err = authshim.Load(cfg.AuthPath)
		if err != nil {
			log.Fatalf("auth: %v", err)
		}
	}

	tileCache := tile.NewCache()
	tileEngine := &tile.Engine{DB: p.Replica(), Cache: tileCache}

	engine := &mutate.Engine{
		DB:        p.Write,
		Validator: validator,
		OnCommit:  tileCache.InvalidateBounds,
	}

	changesets := osmshim.NewTable()
	if snapshotPath := os.Getenv("GEOFEATURED_CHANGESET_SNAPSHOT"); snapshotPath != "" {
		store, err := osmshim.OpenSnapshotStore(snapshotPath)
		if err != nil {
			log.Fatalf("changeset snapshot: %v", err)
		}
		changesets.Snapshot = store
	}

	srv := &httpapi.Server{
		Pool:       p,
		Engine:     engine,
		Tiles:      tileEngine,
		Changesets: changesets,
		Auth:       authPolicy,
		Hooks:      webhook.New(os.Getenv("GEOFEATURED_WEBHOOK_URL")),
	}

	log.Printf("geofeatured listening on %s", cfg.ListenAddr)
	if err := srv.Router().Run(cfg.ListenAddr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
