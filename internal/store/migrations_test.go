package store

import (
	"testing"
	"testing/fstest"
)

func TestUpMigrations_SortedAndFiltered(t *testing.T) {
	fsys := fstest.MapFS{
		"002_more.up.sql":   {Data: []byte("SELECT 2")},
		"001_init.up.sql":   {Data: []byte("SELECT 1")},
		"001_init.down.sql": {Data: []byte("SELECT 0")},
		"README.md":         {Data: []byte("notes")},
		"nested/003.up.sql": {Data: []byte("SELECT 3")},
	}

	files, err := upMigrations(fsys)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"001_init.up.sql", "002_more.up.sql", "nested/003.up.sql"}
	if len(files) != len(want) {
		t.Fatalf("expected %d files, got %v", len(want), files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, files[i], want[i])
		}
	}
}

func TestMigrations_EmbedsCatalogSchema(t *testing.T) {
	files, err := upMigrations(Migrations())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) == 0 || files[0] != "001_catalog.up.sql" {
		t.Fatalf("expected embedded catalog migration, got %v", files)
	}
}
