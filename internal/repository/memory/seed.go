package memory

import (
	"context"
	"fmt"

	"library-backend/internal/domain"
	"library-backend/internal/logger"
	"library-backend/internal/repository"
)

// LoadSeed reads users, books and authors from a YAML file into s. Every book starts
// with all of its copies available.
func LoadSeed(ctx context.Context, s *Store, path string) error {
	seed, err := repository.ReadSeed(path)
	if err != nil {
		return err
	}

	for _, u := range seed.Users {
		user := domain.User{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName, Role: domain.UserRole(u.Role)}
		if err := s.AddUser(ctx, user); err != nil {
			return err
		}
	}
	for _, b := range seed.Books {
		book := domain.Book{ID: b.ID, Title: b.Title, Genre: b.Genre, TotalCopies: b.Copies, CopiesAvailable: b.Copies}
		if err := s.AddBook(ctx, book); err != nil {
			return fmt.Errorf("book %d: %w", b.ID, err)
		}
	}
	for _, a := range seed.Authors {
		if err := s.AddAuthor(ctx, domain.Author{ID: a.ID, PenName: a.PenName, Email: a.Email}); err != nil {
			return err
		}
	}

	links, err := repository.ResolveAuthors(ctx, s.Repos().Books, seed)
	if err != nil {
		return err
	}
	for bookID, authorIDs := range links {
		if err := s.LinkAuthors(ctx, bookID, authorIDs); err != nil {
			return err
		}
	}

	logger.Info("Memory store seeded", "users", len(seed.Users), "books", len(seed.Books), "authors", len(seed.Authors))
	return nil
}
