package repositories

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/config"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/database"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/models"
)

// setupMySQL は TEST_DB_HOST が設定されている場合のみテスト用DBに接続します。
func setupMySQL(t *testing.T) *sql.DB {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set; skipping MySQL integration test")
	}
	port := os.Getenv("TEST_DB_PORT")
	if port == "" {
		port = "3306"
	}
	db, err := database.InitDB(config.DatabaseConfig{
		Host:     host,
		Port:     port,
		User:     os.Getenv("TEST_DB_USER"),
		Password: os.Getenv("TEST_DB_PASSWORD"),
		Name:     os.Getenv("TEST_DB_NAME"),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.Truncate(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMySQLRepos_TaskLifecycle(t *testing.T) {
	db := setupMySQL(t)
	ctx := context.Background()
	users := NewMySQLUserRepo(db)
	tasks := NewMySQLTaskRepo(db)

	hash, err := HashPassword("password123")
	require.NoError(t, err)
	u, err := users.Create(ctx, &models.User{Username: "mysqluser", Email: "mysql@example.com", PasswordHash: hash})
	require.NoError(t, err)

	_, err = users.Create(ctx, &models.User{Username: "other", Email: "mysql@example.com", PasswordHash: hash})
	assert.ErrorIs(t, err, models.ErrDuplicateEmail)

	created, err := tasks.Create(ctx, newTask(u.ID, "from mysql"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	done := true
	updated, err := tasks.Update(ctx, created.ID, models.TaskPatch{Completed: &done, Description: models.Some("d")})
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	require.NotNil(t, updated.Description)

	list, err := tasks.FindByUserID(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, tasks.Delete(ctx, created.ID))
	assert.ErrorIs(t, tasks.Delete(ctx, created.ID), models.ErrTaskNotFound)
}
