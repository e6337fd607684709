package main

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/twinsuns/draftroom/internal/dbconfig"
)

func setupDatabase() (*sql.DB, error) {
	db, err := sql.Open("postgres", dbconfig.URL())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
