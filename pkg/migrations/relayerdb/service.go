// Package relayerdb holds the migrations for the order registry database.
package relayerdb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the ordered set of registry schema migrations.
var Migrations = migrate.NewMigrations()
