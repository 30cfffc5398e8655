package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CreateUser inserts a user and returns its ID.
func CreateUser(t *testing.T, db bun.IDB, email string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.NewRaw("INSERT INTO tb.users (id, email) VALUES (?, ?)", id, email).
		Exec(context.Background())
	if err != nil {
		t.Fatalf("insert user %s: %v", email, err)
	}
	return id
}

// CreateThing inserts a thing owned by ownerID and returns its ID.
func CreateThing(t *testing.T, db bun.IDB, ownerID, name string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.NewRaw("INSERT INTO tb.things (id, name, owner_id) VALUES (?, ?, ?)", id, name, ownerID).
		Exec(context.Background())
	if err != nil {
		t.Fatalf("insert thing %s: %v", name, err)
	}
	return id
}

// CreateGroup inserts a group owned by ownerID and returns its ID.
func CreateGroup(t *testing.T, db bun.IDB, ownerID, name string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.NewRaw("INSERT INTO tb.groups (id, name, owner_id) VALUES (?, ?, ?)", id, name, ownerID).
		Exec(context.Background())
	if err != nil {
		t.Fatalf("insert group %s: %v", name, err)
	}
	return id
}
