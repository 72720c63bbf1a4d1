package migration

import (
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.down.sql")
	require.NoError(t, err)

	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

func TestApplyOnSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migration_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Apply(conn))
	require.NoError(t, Apply(conn))

	assert.True(t, conn.Migrator().HasTable("products"))
	assert.True(t, conn.Migrator().HasIndex("products", "ix_products_created_at"))
}

func TestApplyAfterRestartOnSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "productdesk.db")

	for run := 0; run < 3; run++ {
		conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
		require.NoError(t, err)
		require.NoError(t, Apply(conn), "run %d", run)

		cols, err := conn.Migrator().ColumnTypes("products")
		require.NoError(t, err)
		assert.Len(t, cols, 7)

		sqlDB, err := conn.DB()
		require.NoError(t, err)
		require.NoError(t, sqlDB.Close())
	}
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	assert.Error(t, RunMigrations(nil))
	assert.Error(t, Apply(nil))
}
