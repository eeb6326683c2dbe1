package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/triage-ai/backend/internal/models"
	"github.com/triage-ai/backend/internal/storage"
)

// Prints assignment, priority and category counts for the latest saved
// batch. Exit codes: 0 all assigned, 1 unassigned tickets present, 2 no
// batches, 3 read failure.
func main() {
	os.Exit(run())
}

func run() int {
	dataDir := flag.String("data", "data", "directory holding ticket batches")
	logDir := flag.String("logs", "logs", "directory holding action logs")
	format := flag.String("format", "parquet", "batch format: parquet or csv")
	flag.Parse()

	store, err := storage.NewLocal(*dataDir, *logDir, *format)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open storage:", err)
		return 3
	}
	defer store.Close()

	tickets, err := store.LoadLatest(context.Background())
	if err != nil {
		if errors.Is(err, storage.ErrNoBatches) {
			fmt.Printf("no ticket batches found under %s\n", *dataDir)
			return 2
		}
		fmt.Fprintln(os.Stderr, "load latest batch:", err)
		return 3
	}

	byEngineer := map[string]int{}
	byPriority := map[string]int{}
	byCategory := map[string]int{}
	unassigned := 0
	for _, t := range tickets {
		name := t.AssignedEngineer
		if name == "" {
			name = models.Unassigned
		}
		if name == models.Unassigned {
			unassigned++
		}
		byEngineer[name]++
		byPriority[t.AIPriority]++
		byCategory[t.AICategory]++
	}

	fmt.Printf("tickets: %d\n\n", len(tickets))
	printCounts("assigned engineer", byEngineer)
	printCounts("priority", byPriority)
	printCounts("category", byCategory)

	if unassigned > 0 {
		fmt.Printf("%d tickets unassigned\n", unassigned)
		return 1
	}
	fmt.Println("all tickets assigned")
	return 0
}

func printCounts(label string, counts map[string]int) {
	fmt.Printf("%s:\n", label)
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		fmt.Printf("  %-24s %d\n", k, counts[k])
	}
	fmt.Println()
}
