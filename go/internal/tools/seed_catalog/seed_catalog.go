package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/mcdev12/circuitcast/go/internal/catalog"
	"github.com/mcdev12/circuitcast/go/internal/dbconfig"
)

func main() {
	seedPath := flag.String("seed", "", "seed YAML (default: built-in stock catalog)")
	migrations := flag.String("migrations", "go/internal/catalog/migrations", "migrations directory")
	flag.Parse()

	_ = godotenv.Load()
	ctx := context.Background()

	// 1) Load the seed document
	seed, err := catalog.LoadSeed(*seedPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load seed: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig and bring the schema up to date
	cfg := dbconfig.NewConfigFromEnv()
	if err := catalog.RunMigrations(cfg.DSN(), *migrations); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	pool, err := catalog.Connect(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()
	repo := catalog.NewPostgresRepository(pool)

	// 3) Upsert and count
	var inserted, updated, errs int
	for _, e := range seed.Exercises {
		created, err := repo.UpsertExercise(ctx, e)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error upserting exercise %s: %v\n", e.ID, err)
			errs++
			continue
		}
		if created {
			inserted++
		} else {
			updated++
		}
	}

	var workouts int
	for _, w := range seed.Workouts {
		if err := repo.SaveWorkout(ctx, w); err != nil {
			fmt.Fprintf(os.Stderr, "error saving workout %s: %v\n", w.ID, err)
			errs++
			continue
		}
		workouts++
	}
	for _, d := range seed.Displays {
		if err := repo.SaveDisplay(ctx, d); err != nil {
			fmt.Fprintf(os.Stderr, "error saving display %s: %v\n", d.ID, err)
			errs++
		}
	}
	var folders int
	for _, f := range seed.Folders {
		if err := repo.SaveFolder(ctx, f); err != nil {
			fmt.Fprintf(os.Stderr, "error saving folder %s: %v\n", f.ID, err)
			errs++
			continue
		}
		folders++
	}

	// 4) Print summary
	fmt.Printf(
		"Catalog seed complete: %d exercises (%d inserted, %d updated), %d workouts, %d folders, %d errors\n",
		len(seed.Exercises), inserted, updated, workouts, folders, errs,
	)
	if errs > 0 {
		os.Exit(1)
	}
}
