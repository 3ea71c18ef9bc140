package main

import (
	"fmt"
	"os"
	"strconv"

	"ms-auction/internal/config"
	"ms-auction/internal/database/migrations"
	"ms-auction/internal/logger"

	"github.com/joho/godotenv"
)

const usage = "usage: migrate up | down | to <version> | version"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.NewLogger("migrate", "")
	defer log.Close()

	if len(os.Args) < 2 {
		log.Fatal("MIGRATE", usage)
	}

	runner := migrations.NewRunner(cfg.Database.DSN, migrations.Options{MigrationsDir: cfg.Database.MigrationsDir}, log)
	defer runner.Close()

	var err error
	switch os.Args[1] {
	case "up":
		err = runner.Up()
	case "down":
		err = runner.Down()
	case "to":
		if len(os.Args) < 3 {
			log.Fatal("MIGRATE", usage)
		}
		v, perr := strconv.ParseUint(os.Args[2], 10, 32)
		if perr != nil {
			log.Fatal("MIGRATE", fmt.Sprintf("invalid version %q", os.Args[2]))
		}
		err = runner.To(uint(v))
	case "version":
		v, dirty, verr := runner.Version()
		if verr == nil {
			log.Info("MIGRATE", fmt.Sprintf("version %d dirty=%t", v, dirty))
		}
		err = verr
	default:
		log.Fatal("MIGRATE", usage)
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
}
