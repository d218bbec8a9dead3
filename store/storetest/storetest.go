// Package storetest runs the same CRUD checks against every store backend.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/google/go-cmp/cmp"

	"collabwiki/store"
)

// Run exercises s. The store must start empty.
func Run(t *testing.T, s store.Store) {
	ctx := context.Background()

	t.Run("RoundTrip", func(t *testing.T) {
		markup := "# Example page\n\nSome text_here_.\n"
		id, err := s.Create(ctx, "Example", markup)
		assert.Equal(t, nil, err)
		assert.NotEqual(t, "", id)

		d, err := s.Get(ctx, id)
		assert.Equal(t, nil, err)
		assert.Equal(t, id, d.ID)
		assert.Equal(t, "Example", d.Name)
		assert.Equal(t, markup, d.Markup)

		assert.Equal(t, nil, s.Delete(ctx, id))
	})

	t.Run("Crud", func(t *testing.T) {
		a, err := s.Create(ctx, "B page", "abc")
		assert.Equal(t, nil, err)
		b, err := s.Create(ctx, "A page", "123")
		assert.Equal(t, nil, err)

		list, err := s.List(ctx)
		assert.Equal(t, nil, err)
		want := []store.Summary{{ID: b, Name: "A page"}, {ID: a, Name: "B page"}}
		if diff := cmp.Diff(want, list); diff != "" {
			t.Errorf("list mismatch (-want +got):\n%s", diff)
		}

		assert.Equal(t, nil, s.Update(ctx, a, "Yo!"))
		d, err := s.Get(ctx, a)
		assert.Equal(t, nil, err)
		assert.Equal(t, "Yo!", d.Markup)
		assert.Equal(t, "B page", d.Name)

		assert.Equal(t, nil, s.Delete(ctx, a))
		assert.Equal(t, nil, s.Delete(ctx, b))
		list, err = s.List(ctx)
		assert.Equal(t, nil, err)
		assert.Equal(t, 0, len(list))
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := s.Get(ctx, "00000000-0000-0000-0000-000000000000")
		assert.Equal(t, true, errors.Is(err, store.ErrNotFound))
		err = s.Update(ctx, "00000000-0000-0000-0000-000000000000", "x")
		assert.Equal(t, true, errors.Is(err, store.ErrNotFound))
		err = s.Delete(ctx, "00000000-0000-0000-0000-000000000000")
		assert.Equal(t, true, errors.Is(err, store.ErrNotFound))
	})

	t.Run("DuplicateName", func(t *testing.T) {
		id, err := s.Create(ctx, "Twice", "1")
		assert.Equal(t, nil, err)
		_, err = s.Create(ctx, "Twice", "2")
		assert.Equal(t, true, errors.Is(err, store.ErrNameTaken))
		assert.Equal(t, nil, s.Delete(ctx, id))
	})
}
