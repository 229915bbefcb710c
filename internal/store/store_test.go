package store

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("reading embedded migrations dir: %v", err)
	}

	if len(entries) == 0 {
		t.Fatal("no migration files embedded")
	}

	var hasUp, hasDown bool
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".up.sql") {
			hasUp = true
		}
		if strings.HasSuffix(name, ".down.sql") {
			hasDown = true
		}
	}

	if !hasUp {
		t.Error("no .up.sql migration files found")
	}
	if !hasDown {
		t.Error("no .down.sql migration files found")
	}
}

func TestMigration0001_Content(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/0001_init.up.sql")
	if err != nil {
		t.Fatalf("reading 0001_init.up.sql: %v", err)
	}

	content := string(data)
	expectedTables := []string{
		"CREATE TABLE email_notifications",
		"CREATE TABLE in_app_notifications",
		"CREATE TABLE push_notifications",
		"CREATE TABLE fcm_tokens",
		"CREATE TABLE signups",
		"CREATE TABLE logins",
		"CREATE TABLE purchases",
		"CREATE TABLE friend_requests",
		"CREATE TABLE reset_passwords",
	}

	for _, table := range expectedTables {
		if !strings.Contains(content, table) {
			t.Errorf("migration missing expected SQL: %s", table)
		}
	}
}

func TestMigration0001_Down(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/0001_init.down.sql")
	if err != nil {
		t.Fatalf("reading 0001_init.down.sql: %v", err)
	}

	content := string(data)
	if !strings.Contains(content, "DROP TABLE") {
		t.Error("down migration should contain DROP TABLE statements")
	}
}
