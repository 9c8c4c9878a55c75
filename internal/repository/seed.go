package repository

import (
	"context"
	"fmt"
	"os"

	"library-backend/internal/domain"

	"gopkg.in/yaml.v3"
)

// Seed is the YAML layout of a catalogue and user fixture file.
type Seed struct {
	Users []struct {
		ID        int32  `yaml:"id"`
		Email     string `yaml:"email"`
		FirstName string `yaml:"first_name"`
		LastName  string `yaml:"last_name"`
		Role      string `yaml:"role"`
	} `yaml:"users"`
	Books []struct {
		ID     int32  `yaml:"id"`
		Title  string `yaml:"title"`
		Genre  string `yaml:"genre"`
		Copies int32  `yaml:"copies"`
		// Authors lists pen names from the authors section.
		Authors []string `yaml:"authors"`
	} `yaml:"books"`
	Authors []struct {
		ID      int32  `yaml:"id"`
		PenName string `yaml:"pen_name"`
		Email   string `yaml:"email"`
	} `yaml:"authors"`
}

// ReadSeed parses a seed file and rejects unknown user roles and negative copy counts.
func ReadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	for _, u := range seed.Users {
		if !domain.UserRole(u.Role).Valid() {
			return nil, fmt.Errorf("user %d: unknown role %q", u.ID, u.Role)
		}
	}
	for _, b := range seed.Books {
		if b.Copies < 0 {
			return nil, fmt.Errorf("book %d: copies must not be negative", b.ID)
		}
	}
	return &seed, nil
}

// ResolveAuthors maps each seeded book ID to the IDs of its authors, looked up by pen name
// in the catalogue. An unknown pen name fails the whole seed.
func ResolveAuthors(ctx context.Context, books BookRepository, seed *Seed) (map[int32][]int32, error) {
	var names []string
	for _, b := range seed.Books {
		names = append(names, b.Authors...)
	}
	found, err := books.FindAuthorsByPenName(ctx, names)
	if err != nil {
		return nil, err
	}

	links := make(map[int32][]int32)
	for _, b := range seed.Books {
		for _, name := range b.Authors {
			a, ok := found[name]
			if !ok {
				return nil, fmt.Errorf("book %d: unknown author %q", b.ID, name)
			}
			links[b.ID] = append(links[b.ID], a.ID)
		}
	}
	return links, nil
}
