package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/lumenmail/campaignd/internal/pkg/logger"
)

// Applies every .sql file in the migrations directory in name order, one
// transaction per file. Files are idempotent (IF NOT EXISTS throughout),
// so rerunning after adding a migration is the normal workflow.
func main() {
	dir := flag.String("dir", "migrations", "directory of .sql migration files")
	list := flag.Bool("list", false, "list public tables instead of migrating")
	flag.Parse()

	log := logger.Component("migrate")

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Error("open database failed", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Error("database unreachable", "error", err.Error())
		os.Exit(1)
	}

	if *list {
		if err := listTables(db); err != nil {
			log.Error("list tables failed", "error", err.Error())
			os.Exit(1)
		}
		return
	}

	files, err := migrationFiles(*dir)
	if err != nil {
		log.Error("read migrations dir failed", "dir", *dir, "error", err.Error())
		os.Exit(1)
	}

	for _, f := range files {
		path := filepath.Join(*dir, f)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Error("read migration failed", "file", path, "error", err.Error())
			os.Exit(1)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}

		if err := applyMigration(db, string(data)); err != nil {
			log.Error("migration failed", "file", f, "error", err.Error())
			os.Exit(1)
		}
		log.Info("migration applied", "file", f)
	}
	log.Info("migrations complete", "count", len(files))
}

func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func applyMigration(db *sql.DB, content string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(content); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func listTables(db *sql.DB) error {
	rows, err := db.Query(`
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public' ORDER BY tablename`)
	if err != nil {
		return err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return err
		}
		fmt.Println(" ", t)
		n++
	}
	fmt.Printf("Total: %d tables\n", n)
	return rows.Err()
}
