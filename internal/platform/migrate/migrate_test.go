package migrate

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)
	defer src.Close()

	version, err := src.First()
	require.NoError(t, err)
	for {
		up, _, err := src.ReadUp(version)
		require.NoError(t, err, "version %d up", version)
		body, err := io.ReadAll(up)
		require.NoError(t, err)
		up.Close()
		require.NotEmpty(t, strings.TrimSpace(string(body)))

		down, _, err := src.ReadDown(version)
		require.NoError(t, err, "version %d down", version)
		down.Close()

		next, err := src.Next(version)
		if err != nil {
			break
		}
		version = next
	}
}

func TestSchemaKeepsSequenceUniqueIndex(t *testing.T) {
	data, err := embedded.ReadFile("sql/000001_ledger.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(data), "uq_journal_entries_sequence")
}
