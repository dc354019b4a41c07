package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"starrail_calendar/internal/storage"
	"starrail_calendar/migrations"
)

func main() {
	_ = godotenv.Load()

	dbPath := flag.String("db", envOrDefault("DATA_PATH", "./data/bot.db"), "path to sqlite database")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: migrate [-db path] <command>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  up               Migrate to the latest version")
		fmt.Fprintln(os.Stderr, "  up-one           Migrate one version up")
		fmt.Fprintln(os.Stderr, "  down             Roll back one version")
		fmt.Fprintln(os.Stderr, "  status           Show migration status")
		fmt.Fprintln(os.Stderr, "  version          Show current version")
		fmt.Fprintln(os.Stderr, "  reset            Roll back all migrations")
		fmt.Fprintln(os.Stderr, "  import <file>    Copy subscriptions from a JSON data file")
		os.Exit(1)
	}

	cmd := args[0]
	if cmd == "import" {
		if len(args) < 2 {
			log.Fatal("import: JSON data file is required")
		}
		n, err := importJSON(args[1], *dbPath)
		if err != nil {
			log.Fatalf("import: %v", err)
		}
		log.Printf("imported %d subscriptions into %s", n, *dbPath)
		return
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		log.Fatalf("set dialect: %v", err)
	}

	switch cmd {
	case "up":
		err = goose.Up(db, ".")
	case "up-one":
		err = goose.UpByOne(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "status":
		err = goose.Status(db, ".")
	case "version":
		err = goose.Version(db, ".")
	case "reset":
		err = goose.Reset(db, ".")
	default:
		log.Fatalf("unknown command: %s", cmd)
	}

	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func importJSON(jsonPath, dbPath string) (int, error) {
	ctx := context.Background()
	subs, err := storage.NewJSONFile(jsonPath).Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", jsonPath, err)
	}
	db, err := storage.NewSQLite(dbPath)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }()
	if err := db.Save(ctx, subs); err != nil {
		return 0, fmt.Errorf("save: %w", err)
	}
	return len(subs), nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
