package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id                         INTEGER PRIMARY KEY,
    email                      TEXT NOT NULL,
    name                       TEXT NOT NULL DEFAULT '',
    password_hash              TEXT NOT NULL,
    role                       TEXT NOT NULL DEFAULT 'borrower' CHECK (role IN ('admin', 'steward', 'borrower')),
    late_return_count          INTEGER NOT NULL DEFAULT 0,
    borrowing_restricted_until TEXT,
    created_at                 DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at                 DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_active
    ON users(email) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS hubs (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    address    TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

CREATE TABLE IF NOT EXISTS hub_stewards (
    hub_id  INTEGER NOT NULL REFERENCES hubs(id),
    user_id INTEGER NOT NULL REFERENCES users(id),
    PRIMARY KEY (hub_id, user_id)
);

CREATE TABLE IF NOT EXISTS items (
    id                    INTEGER PRIMARY KEY,
    hub_id                INTEGER NOT NULL REFERENCES hubs(id),
    name                  TEXT NOT NULL,
    description           TEXT NOT NULL DEFAULT '',
    category              TEXT NOT NULL DEFAULT '',
    condition             TEXT NOT NULL DEFAULT 'good',
    image                 BLOB,
    image_mime            TEXT,
    status                TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive', 'damaged', 'reserved')),
    quantity_total        INTEGER NOT NULL DEFAULT 0 CHECK (quantity_total >= 0),
    quantity_available    INTEGER NOT NULL DEFAULT 0 CHECK (quantity_available >= 0 AND quantity_available <= quantity_total),
    incident_report_count INTEGER NOT NULL DEFAULT 0,
    is_flagged            INTEGER NOT NULL DEFAULT 0,
    flagged_at            TEXT,
    created_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at            DATETIME
);

CREATE INDEX IF NOT EXISTS idx_items_hub_status ON items(hub_id, status);

CREATE TABLE IF NOT EXISTS reservations (
    id                   INTEGER PRIMARY KEY,
    user_id              INTEGER NOT NULL REFERENCES users(id),
    item_id              INTEGER NOT NULL REFERENCES items(id),
    hub_id               INTEGER NOT NULL REFERENCES hubs(id),
    quantity             INTEGER NOT NULL CHECK (quantity > 0),
    status               TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'confirmed', 'picked_up', 'returned', 'cancelled', 'overdue')),
    pickup_date          TEXT NOT NULL,
    expected_return_date TEXT NOT NULL,
    actual_return_date   TEXT,
    extension_requested  INTEGER NOT NULL DEFAULT 0,
    extension_approved   INTEGER NOT NULL DEFAULT 0,
    created_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status);
CREATE INDEX IF NOT EXISTS idx_reservations_user_status ON reservations(user_id, status);
CREATE INDEX IF NOT EXISTS idx_reservations_hub_status ON reservations(hub_id, status);

CREATE TABLE IF NOT EXISTS transfers (
    id           INTEGER PRIMARY KEY,
    item_id      INTEGER NOT NULL REFERENCES items(id),
    from_hub_id  INTEGER NOT NULL REFERENCES hubs(id),
    to_hub_id    INTEGER NOT NULL REFERENCES hubs(id),
    quantity     INTEGER NOT NULL CHECK (quantity > 0),
    status       TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'in_transit', 'completed', 'cancelled')),
    initiated_by INTEGER NOT NULL REFERENCES users(id),
    approved_by  INTEGER REFERENCES users(id),
    completed_by INTEGER REFERENCES users(id),
    reason       TEXT NOT NULL DEFAULT '',
    notes        TEXT NOT NULL DEFAULT '',
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    approved_at  TEXT,
    completed_at TEXT,
    updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK (from_hub_id <> to_hub_id)
);

CREATE INDEX IF NOT EXISTS idx_transfers_from_status ON transfers(from_hub_id, status);
CREATE INDEX IF NOT EXISTS idx_transfers_to_status ON transfers(to_hub_id, status);
`

// EnsureSchema creates all tables and indexes if they do not exist.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
