package main

import (
	"context"
	"flag"
	"log"

	"github.com/uptrace/bun/migrate"

	"github.com/chainsafe/htlc-resolver/pkg/config"
	"github.com/chainsafe/htlc-resolver/pkg/migrations/relayerdb"
	"github.com/chainsafe/htlc-resolver/pkg/pgutil"
	mghelper "github.com/chainsafe/htlc-resolver/pkg/pgutil/migrations"
)

func main() {
	cfgPath := flag.String("config", "config.example.yaml", "Path to configuration file")
	service := flag.String("service", "relayer", "Service whose database to migrate (relayer or watcher)")
	flag.Usage = mghelper.Usage
	flag.Parse()

	var dbCfg *config.DatabaseConfig
	switch *service {
	case "relayer":
		cfg, err := config.LoadRelayer(*cfgPath)
		if err != nil {
			log.Fatalf("error reading configuration file: %s", err.Error())
		}
		dbCfg = &cfg.Database
	case "watcher":
		cfg, err := config.LoadWatcher(*cfgPath)
		if err != nil {
			log.Fatalf("error reading configuration file: %s", err.Error())
		}
		dbCfg = &cfg.Database
	default:
		mghelper.Exitf("unknown service %q", *service)
	}

	ctx := context.Background()
	db, err := pgutil.ConnectDB(ctx, dbCfg)
	if err != nil {
		log.Fatalf("error connecting to database: %s", err.Error())
	}
	defer db.Close()

	log.Printf("Running migrations for %s database (%s)...\n", *service, dbCfg.Database)

	migrator := migrate.NewMigrator(db, relayerdb.Migrations)
	if err := mghelper.RunMigrations(ctx, migrator, flag.Args()...); err != nil {
		mghelper.Exitf("%s", err)
	}
}
