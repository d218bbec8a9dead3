package store_test

import (
	"testing"

	"collabwiki/store"
	"collabwiki/store/storetest"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, store.NewMemory())
}
