package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	migrate "github.com/rubenv/sql-migrate"

	"finnbourse.org/internal/config"
	orderpg "finnbourse.org/internal/order/pg"
)

func main() {
	log.SetFlags(0)
	dsn := flag.String("dsn", os.Getenv(config.EnvPostgresDSN), "PostgreSQL DSN")
	flag.Parse()

	if *dsn == "" {
		log.Fatalf("missing DSN: provide via -dsn or %s", config.EnvPostgresDSN)
	}
	cmdName := "up"
	if flag.NArg() > 0 {
		cmdName = flag.Arg(0)
	}

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	switch cmdName {
	case "up":
		if err := orderpg.Migrate(db); err != nil {
			log.Fatalf("migrate up: %v", err)
		}
		log.Println("migrations applied")
	case "status":
		records, err := migrate.GetMigrationRecords(db, "postgres")
		if err != nil {
			log.Fatalf("migrate status: %v", err)
		}
		for _, rec := range records {
			fmt.Printf("%s\t%s\n", rec.Id, rec.AppliedAt.Format("2006-01-02 15:04:05"))
		}
	default:
		log.Fatalf("unknown command %q (expected up or status)", cmdName)
	}
}
