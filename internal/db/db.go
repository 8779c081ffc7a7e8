package db

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

var DB *sql.DB

func Init(log *zap.SugaredLogger) {
	user := os.Getenv("DB_USER")
	pass := os.Getenv("DB_PASSWORD")
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	name := os.Getenv("DB_NAME")

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		user, pass, host, port, name,
	)

	var err error
	DB, err = sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalw("failed to connect to DB", "error", err)
	}

	if err = DB.Ping(); err != nil {
		log.Fatalw("failed to ping DB", "error", err)
	}

	log.Infow("connected to database", "host", host, "name", name)
}
