package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/twinsuns/draftroom/internal/dbconfig"
	"github.com/twinsuns/draftroom/internal/draft/packs"
)

// Loads every set catalog from a directory into the card_sets/cards
// tables. Usage: seed_cards [sets-dir] (defaults to "sets").
func main() {
	dir := "sets"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	catalogs, err := packs.LoadCatalogDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load catalogs: %v\n", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(context.Background(), dbconfig.URL())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	var (
		inserted int
		skipped  int
		errs     int
	)

	for code, cat := range catalogs {
		if _, err := pool.Exec(context.Background(), `
            INSERT INTO card_sets (code, name) VALUES ($1, $2)
            ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
        `, code, cat.Name); err != nil {
			fmt.Fprintf(os.Stderr, "error upserting set %s: %v\n", code, err)
			errs++
			continue
		}

		seed := func(cards []packs.CatalogCard, leader bool) {
			for _, c := range cards {
				aspects, err := json.Marshal(c.Aspects)
				if err != nil {
					errs++
					continue
				}
				cmdTag, err := pool.Exec(context.Background(), `
                    INSERT INTO cards (id, set_code, name, aspects, rarity, cost, is_leader)
                    VALUES ($1,$2,$3,$4,$5,$6,$7)
                    ON CONFLICT (id) DO NOTHING
                `, c.ID, code, c.Name, aspects, c.Rarity, c.Cost, leader)
				if err != nil {
					fmt.Fprintf(os.Stderr, "error inserting card %s: %v\n", c.ID, err)
					errs++
					continue
				}
				if cmdTag.RowsAffected() == 1 {
					inserted++
				} else {
					skipped++
				}
			}
		}
		seed(cat.Leaders, true)
		seed(cat.Cards, false)
	}

	fmt.Printf("Card seed complete: %d sets, %d inserted, %d skipped, %d errors\n",
		len(catalogs), inserted, skipped, errs)
}
