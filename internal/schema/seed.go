package schema

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// SeedRoles are the built-in lookup roles inserted at provisioning. Resets
// with seed preservation keep exactly these rows in the roles table.
var SeedRoles = []string{"admin", "editor", "viewer"}

// newUUID generates a UUID v7 string.
func newUUID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Seed inserts the built-in roles. Idempotent: roles already present are
// left untouched.
func Seed(db *sql.DB) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, name := range SeedRoles {
		_, err := db.Exec(
			`INSERT INTO roles (role_id, name, seeded, created_at) VALUES (?, ?, 1, ?)
			 ON CONFLICT(name) DO NOTHING`,
			newUUID(), name, now)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReseedTx restores the built-in roles inside an existing reset
// transaction, after a delete pass that did not preserve them.
func ReseedTx(tx *sql.Tx) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, name := range SeedRoles {
		_, err := tx.Exec(
			`INSERT INTO roles (role_id, name, seeded, created_at) VALUES (?, ?, 1, ?)
			 ON CONFLICT(name) DO NOTHING`,
			newUUID(), name, now)
		if err != nil {
			return err
		}
	}
	return nil
}
