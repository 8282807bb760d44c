package dbstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/pressly/goose/v3"

	"github.com/bpkg-toolchain/bpkg/internal/diag"
)

//go:embed migrate/sql/*.sql
var migrationFS embed.FS

// schemaBase/schemaCurrent bound the window of goose versions this build
// of bpkg accepts, per spec.md §4.1's "refusing too-old or too-new
// databases" rule.
const (
	schemaBase    = 1
	schemaCurrent = 3
)

func migrateSchema(db *sql.DB, dbPath string) error {
	sqlFS, err := fs.Sub(migrationFS, "migrate/sql")
	if err != nil {
		return diag.Wrap(diag.KindLogic, err, "dbstore: locate embedded migrations")
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sqlFS,
		goose.WithGoMigrations(),
	)
	if err != nil {
		return diag.Wrap(diag.KindState, err, "dbstore: initialize schema migrator")
	}

	ctx := context.Background()
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return diag.Wrap(diag.KindState, err, "dbstore: read schema version")
	}
	if current != 0 && (current < schemaBase || current > schemaCurrent) {
		return diag.New(diag.KindState,
			"dbstore: schema version %d is outside the supported window [%d, %d]", current, schemaBase, schemaCurrent)
	}

	if current != 0 && current < schemaCurrent {
		if err := backupBeforeMigrate(dbPath, current); err != nil {
			return err
		}
	}

	if _, err := provider.Up(ctx); err != nil {
		return diag.Wrap(diag.KindState, err, "dbstore: run schema migrations")
	}
	return nil
}

// backupBeforeMigrate copies the configuration database aside before a
// schema upgrade touches it, named after the version it is upgrading
// from so multiple upgrades over a database's life don't clobber one
// another's backups.
func backupBeforeMigrate(dbPath string, fromVersion int64) error {
	src, err := os.Open(dbPath)
	if err != nil {
		return diag.Wrap(diag.KindIO, err, "dbstore: open %s for pre-migration backup", dbPath)
	}
	defer src.Close()

	backupPath := fmt.Sprintf("%s.bak-%d", dbPath, fromVersion)
	dst, err := os.OpenFile(backupPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return diag.Wrap(diag.KindIO, err, "dbstore: create pre-migration backup %s", backupPath)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return diag.Wrap(diag.KindIO, err, "dbstore: write pre-migration backup %s", backupPath)
	}
	return nil
}
