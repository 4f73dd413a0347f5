/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package main provides the CLI commands for managing database migrations.
This includes commands for applying and rolling back migrations.
*/

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/blnkfinance/recon"
	"github.com/blnkfinance/recon/database"
	pgconn "github.com/blnkfinance/recon/internal/pg-conn"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"
)

func migrationSource() migrate.EmbedFileSystemMigrationSource {
	return migrate.EmbedFileSystemMigrationSource{
		FileSystem: recon.SQLFiles,
		Root:       "sql",
	}
}

// migrateCommands creates the root command for migration-related operations.
func migrateCommands(r *reconInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "run recon migrations",
	}

	cmd.AddCommand(migrateUpCommands(r))
	cmd.AddCommand(migrateDownCommands(r))

	return cmd
}

func openMigrationDB(r *reconInstance) (*sql.DB, error) {
	db, err := pgconn.ConnectDB(r.cnf.DataSource)
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	migrate.SetSchema(database.Schema)
	return db, nil
}

func migrateUpCommands(r *reconInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use: "up",
		Run: func(cmd *cobra.Command, args []string) {
			db, err := openMigrationDB(r)
			if err != nil {
				log.Printf("Error connecting to database: %v", err)
				return
			}
			defer db.Close()

			n, err := migrate.Exec(db, "postgres", migrationSource(), migrate.Up)
			if err != nil {
				log.Printf("Error migrating up: %v", err)
			} else {
				fmt.Printf("Applied %d migrations!\n", n)
			}
		},
	}

	return cmd
}

func migrateDownCommands(r *reconInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use: "down",
		Run: func(cmd *cobra.Command, args []string) {
			db, err := openMigrationDB(r)
			if err != nil {
				log.Printf("Error connecting to database: %v", err)
				return
			}
			defer db.Close()

			n, err := migrate.Exec(db, "postgres", migrationSource(), migrate.Down)
			if err != nil {
				log.Printf("Error migrating down: %v", err)
			} else {
				fmt.Printf("Rolled back %d migrations!\n", n)
			}
		},
	}

	return cmd
}
