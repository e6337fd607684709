// Package dbconfig resolves the Postgres connection URL shared by the
// draft store and the card seed tool.
package dbconfig

import (
	"net/url"
	"os"
)

// URL returns the Postgres connection string. DATABASE_URL wins when set;
// otherwise the URL is assembled from the discrete DB_* variables with
// local-development defaults. Credentials are URL-escaped, so passwords
// with reserved characters survive the round trip.
func URL() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(envOr("DB_USER", "postgres"), envOr("DB_PASSWORD", "postgres")),
		Host:   envOr("DB_HOST", "localhost") + ":" + envOr("DB_PORT", "5432"),
		Path:   envOr("DB_NAME", "draftroom"),
	}
	q := url.Values{}
	q.Set("sslmode", envOr("DB_SSLMODE", "disable"))
	u.RawQuery = q.Encode()
	return u.String()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
