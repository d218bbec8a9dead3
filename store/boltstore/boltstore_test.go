package boltstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-playground/assert/v2"

	"collabwiki/store/storetest"
)

func TestStore(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "wiki.bolt"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	storetest.Run(t, s)
}

func TestReopenKeepsDocuments(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wiki.bolt")

	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.Create(ctx, "Kept", "# kept")
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, s.Close())

	s, err = New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	d, err := s.Get(ctx, id)
	assert.Equal(t, nil, err)
	assert.Equal(t, "# kept", d.Markup)
}
