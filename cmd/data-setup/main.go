// Command data-setup creates the schema and loads a seed file into PostgreSQL.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"library-backend/internal/config"
	"library-backend/internal/repository"
	"library-backend/internal/repository/postgres"
	"library-backend/internal/security"

	_ "github.com/lib/pq"
)

func main() {
	configPath := flag.String("config", "config/config.test.yaml", "Path to configuration file")
	seedPath := flag.String("seed", "config/seed.dev.yaml", "Path to seed file")
	schemaPath := flag.String("schema", "db/schema.sql", "Schema to apply first; empty skips it")
	printTokens := flag.Bool("tokens", false, "Print a bearer token for every seeded user")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	seed, err := repository.ReadSeed(*seedPath)
	if err != nil {
		log.Fatalf("Failed to read seed: %v", err)
	}

	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Printf("Connected to database: %s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)

	ctx := context.Background()
	if *schemaPath != "" {
		ddl, err := os.ReadFile(*schemaPath)
		if err != nil {
			log.Fatalf("Failed to read schema: %v", err)
		}
		if _, err := db.ExecContext(ctx, string(ddl)); err != nil {
			log.Fatalf("Failed to apply schema: %v", err)
		}
		log.Printf("Schema applied from %s", *schemaPath)
	}

	if err := populateData(ctx, db, seed); err != nil {
		log.Fatalf("Failed to populate data: %v", err)
	}
	log.Println("Seed data successfully populated")

	if *printTokens {
		if err := issueTokens(cfg, seed); err != nil {
			log.Fatalf("Failed to issue tokens: %v", err)
		}
	}
}

// issueTokens prints a development access token per seeded user, signed with the
// configured JWT secret.
func issueTokens(cfg *config.Config, seed *repository.Seed) error {
	tokens := security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL())
	for _, u := range seed.Users {
		token, err := tokens.GenerateAccessToken(u.ID, u.Email, []string{u.Role})
		if err != nil {
			return fmt.Errorf("user %d: %w", u.ID, err)
		}
		fmt.Printf("%d\t%s\t%s\n", u.ID, u.Role, token)
	}
	return nil
}

// populateData inserts the seed rows in one transaction. Rows whose ID already exists
// are left as they are.
func populateData(ctx context.Context, db *sql.DB, seed *repository.Seed) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, u := range seed.Users {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, email, first_name, last_name, role)
			VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), $5)
			ON CONFLICT (id) DO NOTHING`,
			u.ID, u.Email, u.FirstName, u.LastName, u.Role)
		if err != nil {
			return fmt.Errorf("failed to create user %d: %w", u.ID, err)
		}
	}
	for _, a := range seed.Authors {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO authors (id, pen_name, email) VALUES ($1, $2, NULLIF($3, ''))
			ON CONFLICT (id) DO NOTHING`,
			a.ID, a.PenName, a.Email)
		if err != nil {
			return fmt.Errorf("failed to create author %d: %w", a.ID, err)
		}
	}
	for _, b := range seed.Books {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO books (id, title, genre, total_copies, copies_available, copies_on_rent)
			VALUES ($1, $2, NULLIF($3, ''), $4, $4, 0)
			ON CONFLICT (id) DO NOTHING`,
			b.ID, b.Title, b.Genre, b.Copies)
		if err != nil {
			return fmt.Errorf("failed to create book %d: %w", b.ID, err)
		}
	}

	links, err := repository.ResolveAuthors(ctx, postgres.NewBookRepository(tx), seed)
	if err != nil {
		return err
	}
	for bookID, authorIDs := range links {
		for _, authorID := range authorIDs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO books_authors (book_id, author_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`,
				bookID, authorID)
			if err != nil {
				return fmt.Errorf("failed to link book %d to author %d: %w", bookID, authorID, err)
			}
		}
	}

	// Explicit IDs do not advance the SERIAL sequences.
	for _, table := range []string{"users", "authors", "books"} {
		q := fmt.Sprintf(`SELECT setval(pg_get_serial_sequence('%s', 'id'), GREATEST((SELECT MAX(id) FROM %s), 1))`, table, table)
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to reset %s sequence: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	log.Printf("Created %d users, %d authors, %d books", len(seed.Users), len(seed.Authors), len(seed.Books))
	return nil
}
