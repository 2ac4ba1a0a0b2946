package database

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// Migrations contains all database migrations
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "profiles",
		Up: `
			CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

			CREATE TABLE IF NOT EXISTS profiles (
				id UUID PRIMARY KEY,
				email VARCHAR(255) UNIQUE NOT NULL,
				full_name VARCHAR(100) NOT NULL,
				role VARCHAR(20) NOT NULL DEFAULT 'tenant' CHECK (role IN ('tenant', 'agent', 'admin')),
				phone VARCHAR(32),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_profiles_email ON profiles(email);
		`,
		Down: `
			DROP TABLE IF EXISTS profiles;
		`,
	},
	{
		Version: 2,
		Name:    "properties_rooms_beds",
		Up: `
			CREATE TABLE IF NOT EXISTS properties (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				agent_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
				title VARCHAR(255) NOT NULL,
				location TEXT NOT NULL DEFAULT '',
				amenities JSONB,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS rooms (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				property_id UUID NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
				name VARCHAR(100) NOT NULL,
				type VARCHAR(10) NOT NULL CHECK (type IN ('single', 'double', 'triple', 'quad')),
				price_per_bed NUMERIC(10, 2) NOT NULL DEFAULT 0 CHECK (price_per_bed >= 0),
				capacity INT NOT NULL CHECK (capacity BETWEEN 1 AND 10),
				bathrooms INT NOT NULL DEFAULT 0 CHECK (bathrooms >= 0),
				is_available BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS beds (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				room_id UUID NOT NULL REFERENCES rooms(id),
				bed_number INT NOT NULL CHECK (bed_number >= 1),
				is_occupied BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE(room_id, bed_number)
			);

			CREATE INDEX IF NOT EXISTS idx_properties_agent ON properties(agent_id);
			CREATE INDEX IF NOT EXISTS idx_rooms_property ON rooms(property_id);
			CREATE INDEX IF NOT EXISTS idx_beds_room ON beds(room_id);
		`,
		Down: `
			DROP TABLE IF EXISTS beds;
			DROP TABLE IF EXISTS rooms;
			DROP TABLE IF EXISTS properties;
		`,
	},
	{
		Version: 3,
		Name:    "chats_messages",
		Up: `
			CREATE TABLE IF NOT EXISTS chats (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				property_id UUID NOT NULL REFERENCES properties(id),
				tenant_id UUID NOT NULL REFERENCES profiles(id),
				agent_id UUID NOT NULL REFERENCES profiles(id),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE(property_id, tenant_id)
			);

			CREATE TABLE IF NOT EXISTS messages (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				chat_id UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
				sender_id UUID NOT NULL REFERENCES profiles(id),
				content TEXT NOT NULL CHECK (char_length(content) BETWEEN 1 AND 1000),
				message_type VARCHAR(20) NOT NULL DEFAULT 'text',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_chats_tenant ON chats(tenant_id, updated_at DESC);
			CREATE INDEX IF NOT EXISTS idx_chats_agent ON chats(agent_id, updated_at DESC);
			CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at, id);
		`,
		Down: `
			DROP TABLE IF EXISTS messages;
			DROP TABLE IF EXISTS chats;
		`,
	},
	{
		Version: 4,
		Name:    "message_reads",
		Up: `
			CREATE TABLE IF NOT EXISTS message_reads (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				message_id UUID NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
				user_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
				read_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE(message_id, user_id)
			);

			CREATE INDEX IF NOT EXISTS idx_message_reads_user ON message_reads(user_id);
		`,
		Down: `
			DROP TABLE IF EXISTS message_reads;
		`,
	},
}

// MigrationStatus is one row of the status report.
type MigrationStatus struct {
	Version   int
	Name      string
	AppliedAt *time.Time
}

func sortedMigrations() []Migration {
	sorted := make([]Migration, len(Migrations))
	copy(sorted, Migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return sorted
}

// RunMigrations runs all pending migrations
func RunMigrations(db *sql.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Ensure migrations table exists
	if err := ensureMigrationsTable(db); err != nil {
		return err
	}

	// Get current version
	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return err
	}

	for _, migration := range sortedMigrations() {
		if migration.Version <= currentVersion {
			continue
		}

		logger.Info("running migration", zap.Int("version", migration.Version), zap.String("name", migration.Name))

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.Exec(migration.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// Status reports every known migration and when it was applied, if ever.
func Status(db *sql.DB) ([]MigrationStatus, error) {
	if err := ensureMigrationsTable(db); err != nil {
		return nil, err
	}

	rows, err := db.Query("SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []MigrationStatus
	for _, m := range sortedMigrations() {
		st := MigrationStatus{Version: m.Version, Name: m.Name}
		if at, ok := applied[m.Version]; ok {
			at := at
			st.AppliedAt = &at
		}
		out = append(out, st)
	}
	return out, nil
}

func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// Rollback reverts the most recently applied migration and returns its
// version, or 0 when nothing is applied.
func Rollback(db *sql.DB, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := ensureMigrationsTable(db); err != nil {
		return 0, err
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil || currentVersion == 0 {
		return 0, err
	}

	var migration *Migration
	for i := range Migrations {
		if Migrations[i].Version == currentVersion {
			migration = &Migrations[i]
			break
		}
	}
	if migration == nil {
		return 0, fmt.Errorf("migration %d is applied but unknown to this build", currentVersion)
	}

	logger.Info("reverting migration", zap.Int("version", migration.Version), zap.String("name", migration.Name))

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.Exec(migration.Down); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to revert migration %d: %w", migration.Version, err)
	}
	if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = $1", migration.Version); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to unrecord migration %d: %w", migration.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit rollback of %d: %w", migration.Version, err)
	}
	return migration.Version, nil
}
