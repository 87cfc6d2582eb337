// Command seedauthors registers tracked accounts in the author allow list.
// The pipeline only ingests posts whose author exists in this table, so new
// accounts must be seeded here before they show up in the feed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/daslan/birdwatch/internal/domain"
	"github.com/daslan/birdwatch/internal/sqlite"
	"github.com/daslan/birdwatch/internal/twitter"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dbPath    string
		baseURL   string
		token     string
		listID    string
		usernames string
	)

	flag.StringVar(&dbPath, "db", envOrDefault("BIRDWATCH_DATABASE_PATH", "birdwatch.db"), "SQLite database path")
	flag.StringVar(&baseURL, "base-url", envOrDefault("BIRDWATCH_TWITTER__BASE_URL", ""), "API base URL override")
	flag.StringVar(&token, "token", envOrDefault("BIRDWATCH_TWITTER__BEARER_TOKEN", ""), "API bearer token")
	flag.StringVar(&listID, "list", "", "Seed every member of this list")
	flag.StringVar(&usernames, "usernames", "", "Comma-separated usernames to seed")
	flag.Parse()

	if token == "" {
		return fmt.Errorf("--token is required (or set BIRDWATCH_TWITTER__BEARER_TOKEN)")
	}
	if listID == "" && usernames == "" {
		return fmt.Errorf("one of --list or --usernames is required")
	}

	repo, err := sqlite.NewRepository(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	ctx := context.Background()
	client := twitter.NewClient(baseURL, token)

	var users []twitter.User
	if listID != "" {
		fmt.Printf("Fetching members of list %s...\n", listID)
		users, err = client.ListMembers(ctx, listID)
	} else {
		names := strings.Split(usernames, ",")
		for i := range names {
			names[i] = strings.TrimSpace(names[i])
		}
		fmt.Printf("Looking up %d usernames...\n", len(names))
		users, err = client.UsersByUsernames(ctx, names)
	}
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("No accounts found upstream, nothing to do")
		return nil
	}

	authors := make([]domain.Author, 0, len(users))
	for _, u := range users {
		existing, err := repo.FindByUsername(ctx, u.Username)
		if err != nil && !errors.Is(err, domain.ErrAuthorNotFound) {
			return fmt.Errorf("check existing author %s: %w", u.Username, err)
		}
		if existing != nil {
			fmt.Printf("Skipping @%s (already registered)\n", u.Username)
			continue
		}
		authors = append(authors, domain.Author{
			AuthorID:        u.ID,
			Username:        u.Username,
			ProfileImageURL: u.ProfileImageURL,
		})
	}

	if len(authors) == 0 {
		fmt.Println("All accounts already registered")
		return nil
	}

	if err := repo.CreateAuthors(ctx, authors); err != nil {
		return fmt.Errorf("save authors: %w", err)
	}

	fmt.Printf("Registered %d new authors\n", len(authors))
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
