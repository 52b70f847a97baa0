package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrationNamesUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, m := range migrations {
		assert.False(t, seen[m.Name], "duplicate migration %s", m.Name)
		seen[m.Name] = true
		assert.NotEmpty(t, m.Commands, m.Name)
	}
}

func TestPending(t *testing.T) {
	all := []Migration{{Name: "01"}, {Name: "02"}, {Name: "03"}}

	got := pending(all, map[string]struct{}{"01": {}, "03": {}})
	assert.Equal(t, []Migration{{Name: "02"}}, got)

	assert.Len(t, pending(all, map[string]struct{}{}), 3)
	assert.Empty(t, pending(all, map[string]struct{}{"01": {}, "02": {}, "03": {}}))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}

func TestRetry(t *testing.T) {
	calls := 0
	err := retry(3, 0, func() error {
		calls++
		if calls < 2 {
			return assert.AnError
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = retry(3, 0, func() error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 3, calls)
}
