package sql

import (
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	db := initDB(t)

	t.Run("Initialize database extensions", func(t *testing.T) {
		err := Init(db.Instance)
		assert.NoError(t, err)

		// Verify pg_trgm extension is created
		var exists bool
		err = db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'pg_trgm');").Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "pg_trgm extension should be created")

		// Verify pgvector extension is created
		err = db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector');").Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "pgvector extension should be created")
	})

	t.Run("Initialize database extensions is idempotent", func(t *testing.T) {
		// Running Init multiple times should not error
		err := Init(db.Instance)
		assert.NoError(t, err)

		err = Init(db.Instance)
		assert.NoError(t, err)
	})
}

func TestLoadJobsSql(t *testing.T) {
	db := initDB(t)
	defer db.Instance.Close()

	err := Init(db.Instance)
	require.NoError(t, err)

	t.Run("Load jobs SQL functions", func(t *testing.T) {
		err := LoadJobsSql(db.Instance, false)
		assert.NoError(t, err)

		for _, funcName := range JobsFunctions {
			var exists bool
			err = db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);", funcName).Scan(&exists)
			require.NoError(t, err)
			assert.True(t, exists, "Function %s should exist", funcName)
		}
	})

	t.Run("Load jobs SQL is idempotent without force", func(t *testing.T) {
		err := LoadJobsSql(db.Instance, false)
		assert.NoError(t, err)
	})

	t.Run("Load jobs SQL with force reloads", func(t *testing.T) {
		err := LoadJobsSql(db.Instance, true)
		assert.NoError(t, err)

		for _, funcName := range JobsFunctions {
			var exists bool
			err = db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);", funcName).Scan(&exists)
			require.NoError(t, err)
			assert.True(t, exists, "Function %s should exist after force reload", funcName)
		}
	})
}

func TestLoadAllSql(t *testing.T) {
	db := initDB(t)
	defer db.Instance.Close()

	err := Init(db.Instance)
	require.NoError(t, err)

	t.Run("Load all SQL functions", func(t *testing.T) {
		err := LoadAllSql(db.Instance, true)
		assert.NoError(t, err)

		allFunctions := [][]string{
			JobsFunctions,
			ArticlesFunctions,
			HechosFunctions,
			EntidadesFunctions,
			RelationsFunctions,
			ContradiccionesFunctions,
		}
		for _, functions := range allFunctions {
			for _, funcName := range functions {
				var exists bool
				err = db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);", funcName).Scan(&exists)
				require.NoError(t, err)
				assert.True(t, exists, "Function %s should exist", funcName)
			}
		}
	})
}
