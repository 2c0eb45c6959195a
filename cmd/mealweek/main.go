package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"mealweek/internal/app"
	"mealweek/internal/config"
	"mealweek/internal/metrics"
	"mealweek/internal/schedule"
	"mealweek/internal/shared"
)

func main() {
	ctx := context.Background()

	// A missing .env file is fine; the environment still applies.
	_ = godotenv.Load()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	application, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer application.Close()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				log.Printf("Metrics listener failed: %v", err)
			}
		}()
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "week":
		weekCmd := flag.NewFlagSet("week", flag.ExitOnError)
		userID := weekCmd.Int64("user", 0, "User id")
		week := weekCmd.String("week", "", "Any date within the week (YYYY-MM-DD, default: today)")
		weekCmd.Parse(os.Args[2:])

		if err := application.ShowWeek(ctx, *userID, parseWeek(*week)); err != nil {
			log.Fatalf("Failed to show week: %v", err)
		}
	case "patch":
		patchCmd := flag.NewFlagSet("patch", flag.ExitOnError)
		userID := patchCmd.Int64("user", 0, "User id")
		payload := patchCmd.String("json", "", "Patch payload as JSON")
		patchCmd.Parse(os.Args[2:])

		var patch schedule.Patch
		if err := json.Unmarshal([]byte(*payload), &patch); err != nil {
			log.Fatalf("Failed to parse patch: %v", err)
		}
		if err := application.ApplyPatch(ctx, *userID, patch); err != nil {
			log.Fatalf("Patch rejected (%s): %v", shared.Kind(err), err)
		}
	case "shopping-list":
		listCmd := flag.NewFlagSet("shopping-list", flag.ExitOnError)
		userID := listCmd.Int64("user", 0, "User id")
		week := listCmd.String("week", "", "Any date within the week (YYYY-MM-DD, default: today)")
		listCmd.Parse(os.Args[2:])

		if err := application.BuildShoppingList(ctx, *userID, parseWeek(*week)); err != nil {
			log.Fatalf("Failed to build shopping list: %v", err)
		}
	case "add-item":
		addCmd := flag.NewFlagSet("add-item", flag.ExitOnError)
		userID := addCmd.Int64("user", 0, "User id")
		week := addCmd.String("week", "", "Any date within the week (YYYY-MM-DD, default: today)")
		name := addCmd.String("name", "", "Item name")
		amount := addCmd.Float64("amount", 1, "Amount")
		measureID := addCmd.Int64("measure", 0, "Measure type id (0 for none)")
		addCmd.Parse(os.Args[2:])

		if err := application.AddManualItem(ctx, *userID, parseWeek(*week), *name, *amount, *measureID); err != nil {
			log.Fatalf("Failed to add item: %v", err)
		}
	case "batch":
		batchCmd := flag.NewFlagSet("batch", flag.ExitOnError)
		week := batchCmd.String("week", "", "Any date within the week (YYYY-MM-DD, default: today)")
		batchCmd.Parse(os.Args[2:])

		if err := application.RunBatch(ctx, parseWeek(*week)); err != nil {
			log.Fatalf("Batch failed: %v", err)
		}
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func parseWeek(value string) time.Time {
	if value == "" {
		return time.Now()
	}
	date, err := shared.ParseDate(value)
	if err != nil {
		log.Fatalf("Invalid week date %q: %v", value, err)
	}
	return date
}

func printUsage() {
	fmt.Println("Usage: mealweek <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  week             Show a user's 7-day schedule")
	fmt.Println("  patch            Apply a mutation to a user's schedule")
	fmt.Println("  shopping-list    Rebuild and print a user's weekly shopping list")
	fmt.Println("  add-item         Add a manual shopping list item")
	fmt.Println("  batch            Rebuild lists for all active users")
}
