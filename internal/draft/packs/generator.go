// Package packs produces the sealed product a draft consumes: per-seat
// leader offerings for each leader round and boosters for each pack round.
package packs

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/twinsuns/draftroom/internal/models"
)

// LeadersPerOffering is how many leaders each seat is offered per round.
const LeadersPerOffering = 3

// Generator is the pack generation contract the draft core consumes.
// Output is reproducible for a given seed; the core stores the seed it
// chose so a draft can be audited after the fact.
type Generator interface {
	Generate(ctx context.Context, setCode string, seatCount, packSize int, seed int64) ([]models.SeatPool, error)
}

// SeededGenerator draws offerings and boosters from loaded set catalogs
// with a seeded rng. Rarity slotting is simple: one rare-or-better, three
// uncommons, commons for the rest, degrading gracefully for thin catalogs.
type SeededGenerator struct {
	catalogs map[string]*Catalog
}

// NewSeededGenerator builds a generator over the given catalogs.
func NewSeededGenerator(catalogs map[string]*Catalog) *SeededGenerator {
	return &SeededGenerator{catalogs: catalogs}
}

func (g *SeededGenerator) Generate(_ context.Context, setCode string, seatCount, packSize int, seed int64) ([]models.SeatPool, error) {
	cat, ok := g.catalogs[strings.ToUpper(setCode)]
	if !ok {
		return nil, fmt.Errorf("unknown set code %q", setCode)
	}
	if len(cat.Leaders) == 0 || len(cat.Cards) == 0 {
		return nil, fmt.Errorf("set %s has no draftable content", cat.Code)
	}

	rng := rand.New(rand.NewSource(seed))
	pools := make([]models.SeatPool, seatCount)

	leaders := g.dealLeaders(rng, cat, seatCount)
	for seat := 0; seat < seatCount; seat++ {
		pools[seat].LeaderOfferings = leaders[seat]
		for p := 0; p < models.PackRounds; p++ {
			pools[seat].Packs = append(pools[seat].Packs, g.rollPack(rng, cat, packSize))
		}
	}
	return pools, nil
}

// dealLeaders deals leader offerings without repeats for as long as the
// catalog allows, reshuffling the pool when it runs dry.
func (g *SeededGenerator) dealLeaders(rng *rand.Rand, cat *Catalog, seatCount int) [][][]models.Card {
	pool := make([]CatalogCard, len(cat.Leaders))
	copy(pool, cat.Leaders)
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	next := 0
	draw := func() models.Card {
		if next >= len(pool) {
			rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
			next = 0
		}
		c := pool[next]
		next++
		return c.toModel(true)
	}

	out := make([][][]models.Card, seatCount)
	for seat := 0; seat < seatCount; seat++ {
		out[seat] = make([][]models.Card, models.LeaderRounds)
		for round := 0; round < models.LeaderRounds; round++ {
			offering := make([]models.Card, 0, LeadersPerOffering)
			for i := 0; i < LeadersPerOffering; i++ {
				offering = append(offering, draw())
			}
			out[seat][round] = offering
		}
	}
	return out
}

// rollPack fills one booster: a rare-or-better slot, three uncommon slots,
// commons for the remainder. Cards never repeat within a single pack.
func (g *SeededGenerator) rollPack(rng *rand.Rand, cat *Catalog, packSize int) []models.Card {
	byRarity := map[string][]CatalogCard{}
	for _, c := range cat.Cards {
		byRarity[strings.ToLower(c.Rarity)] = append(byRarity[strings.ToLower(c.Rarity)], c)
	}

	var slots []string
	slots = append(slots, "rare")
	for i := 0; i < 3 && len(slots) < packSize; i++ {
		slots = append(slots, "uncommon")
	}
	for len(slots) < packSize {
		slots = append(slots, "common")
	}

	used := make(map[string]bool, packSize)
	pack := make([]models.Card, 0, packSize)
	for _, rarity := range slots {
		c, ok := drawUnused(rng, pickPool(byRarity, rarity, cat.Cards), used)
		if !ok {
			// Catalog thinner than the pack; fall back to anything unused.
			c, ok = drawUnused(rng, cat.Cards, used)
			if !ok {
				break
			}
		}
		used[c.ID] = true
		pack = append(pack, c.toModel(false))
	}
	return pack
}

// pickPool returns the requested rarity pool, falling back through the
// rarity ladder and finally to the whole set.
func pickPool(byRarity map[string][]CatalogCard, rarity string, all []CatalogCard) []CatalogCard {
	order := map[string][]string{
		"rare":     {"rare", "legendary", "uncommon", "common"},
		"uncommon": {"uncommon", "common"},
		"common":   {"common", "uncommon"},
	}
	for _, r := range order[rarity] {
		if pool := byRarity[r]; len(pool) > 0 {
			return pool
		}
	}
	return all
}

func drawUnused(rng *rand.Rand, pool []CatalogCard, used map[string]bool) (CatalogCard, bool) {
	if len(pool) == 0 {
		return CatalogCard{}, false
	}
	// Bounded retries keep the draw cheap; the fallback scan is exact.
	for attempt := 0; attempt < 4*len(pool); attempt++ {
		c := pool[rng.Intn(len(pool))]
		if !used[c.ID] {
			return c, true
		}
	}
	for _, c := range pool {
		if !used[c.ID] {
			return c, true
		}
	}
	return CatalogCard{}, false
}
