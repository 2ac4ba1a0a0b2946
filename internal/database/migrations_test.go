package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrations_UniqueAscendingVersions(t *testing.T) {
	seen := make(map[int]bool)
	for _, m := range Migrations {
		assert.False(t, seen[m.Version], "duplicate migration version %d", m.Version)
		seen[m.Version] = true
		assert.NotEmpty(t, m.Name)
		assert.NotEmpty(t, strings.TrimSpace(m.Up))
		assert.NotEmpty(t, strings.TrimSpace(m.Down), "migration %d cannot be reverted", m.Version)
	}

	sorted := sortedMigrations()
	for i := 1; i < len(sorted); i++ {
		assert.Less(t, sorted[i-1].Version, sorted[i].Version)
	}
}

func TestMigrations_StorageLevelConstraints(t *testing.T) {
	var all strings.Builder
	for _, m := range Migrations {
		all.WriteString(m.Up)
	}
	schema := all.String()

	for _, want := range []string{
		"UNIQUE(room_id, bed_number)",
		"UNIQUE(property_id, tenant_id)",
		"UNIQUE(message_id, user_id)",
		"capacity BETWEEN 1 AND 10",
		"char_length(content) BETWEEN 1 AND 1000",
	} {
		assert.Contains(t, schema, want)
	}
}
