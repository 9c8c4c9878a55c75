package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"library-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestReadSeed(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		seed, err := ReadSeed(writeSeed(t, `
users:
  - {id: 1, first_name: Mia, role: Member}
books:
  - {id: 7, title: Emma, copies: 2}
authors:
  - {id: 3, pen_name: Jane Austen}
`))
		require.NoError(t, err)
		require.Len(t, seed.Books, 1)
		assert.Equal(t, "Emma", seed.Books[0].Title)
		assert.Equal(t, int32(2), seed.Books[0].Copies)
		assert.Equal(t, "Jane Austen", seed.Authors[0].PenName)
	})

	t.Run("Unknown role", func(t *testing.T) {
		_, err := ReadSeed(writeSeed(t, "users:\n  - {id: 1, first_name: Mia, role: Admin}\n"))
		assert.ErrorContains(t, err, "unknown role")
	})

	t.Run("Negative copies", func(t *testing.T) {
		_, err := ReadSeed(writeSeed(t, "books:\n  - {id: 1, title: Emma, copies: -1}\n"))
		assert.ErrorContains(t, err, "must not be negative")
	})

	t.Run("Malformed YAML", func(t *testing.T) {
		_, err := ReadSeed(writeSeed(t, "users: [\n"))
		assert.ErrorContains(t, err, "failed to parse")
	})
}

// penNameCatalog answers author lookups from a fixed list.
type penNameCatalog struct {
	BookRepository
	authors []domain.Author
	asked   []string
}

func (c *penNameCatalog) FindAuthorsByPenName(ctx context.Context, penNames []string) (map[string]domain.Author, error) {
	c.asked = penNames
	found := make(map[string]domain.Author)
	for _, a := range c.authors {
		for _, n := range penNames {
			if a.PenName == n {
				found[n] = a
			}
		}
	}
	return found, nil
}

func TestResolveAuthors(t *testing.T) {
	ctx := context.Background()
	catalog := &penNameCatalog{authors: []domain.Author{{ID: 1, PenName: "Frank Herbert"}, {ID: 2, PenName: "Brian Herbert"}}}

	t.Run("Success", func(t *testing.T) {
		seed, err := ReadSeed(writeSeed(t, `
books:
  - {id: 7, title: Dune, copies: 1, authors: [Frank Herbert]}
  - {id: 8, title: Dune Prelude, copies: 1, authors: [Brian Herbert, Frank Herbert]}
  - {id: 9, title: Anonymous, copies: 1}
`))
		require.NoError(t, err)

		links, err := ResolveAuthors(ctx, catalog, seed)
		require.NoError(t, err)
		assert.Equal(t, map[int32][]int32{7: {1}, 8: {2, 1}}, links)
		assert.ElementsMatch(t, []string{"Frank Herbert", "Brian Herbert", "Frank Herbert"}, catalog.asked)
	})

	t.Run("Unknown author", func(t *testing.T) {
		seed, err := ReadSeed(writeSeed(t, "books:\n  - {id: 7, title: Emma, copies: 1, authors: [Jane Austen]}\n"))
		require.NoError(t, err)

		_, err = ResolveAuthors(ctx, catalog, seed)
		assert.ErrorContains(t, err, `unknown author "Jane Austen"`)
	})
}
