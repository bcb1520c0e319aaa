// pglinkcli is a small demo CLI exercising the pglink client directly
// against a running Postgres server: connect, run one query, print rows.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/dbbouncer/pglink"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("PGLINK_DSN"), "postgres connection URI")
	configPath := flag.String("config", "", "optional YAML defaults file")
	query := flag.String("query", "SELECT 1", "query text to run")
	timeout := flag.Duration("timeout", 10*time.Second, "overall timeout")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var cfg pglink.Config
	var err error
	if *configPath != "" {
		cfg, err = pglink.LoadDefaults(*configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
	} else {
		cfg = pglink.DefaultConfig()
	}
	pglink.ApplyEnv(&cfg)

	if *dsn != "" {
		urlCfg, err := pglink.ParseURL(*dsn)
		if err != nil {
			log.Fatalf("parsing dsn: %v", err)
		}
		cfg = urlCfg
	}

	metrics := pglink.NewCollector()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := pglink.Connect(ctx, cfg, metrics)
	if err != nil {
		log.Fatalf("connecting: %v", err)
	}
	defer client.End()

	res, err := client.QueryObject(ctx, pglink.NewQuery(*query), pglink.ObjectOptions{CamelCase: true})
	if err != nil {
		log.Fatalf("query failed: %v", err)
	}

	log.Printf("%s: %d row(s)", res.CommandTag.Command, len(res.Rows))
	for i, row := range res.Rows {
		log.Printf("row %d: %+v", i, row)
	}
}
