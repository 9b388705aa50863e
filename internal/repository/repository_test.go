package repository_test

import (
	"testing"

	"github.com/SergeiKhy/link-registry/internal/config"
	"github.com/SergeiKhy/link-registry/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDSN_EscapesCredentials(t *testing.T) {
	cfg := config.DBConfig{
		Host:     "db.internal",
		Port:     "5433",
		User:     "app user",
		Password: "p@ss:w/rd?#",
		Name:     "registry",
	}

	dsn := repository.PostgresDSN(cfg)
	assert.Contains(t, dsn, "@db.internal:5433/registry?sslmode=disable")

	poolConfig, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", poolConfig.ConnConfig.Host)
	assert.EqualValues(t, 5433, poolConfig.ConnConfig.Port)
	assert.Equal(t, "app user", poolConfig.ConnConfig.User)
	assert.Equal(t, "p@ss:w/rd?#", poolConfig.ConnConfig.Password)
	assert.Equal(t, "registry", poolConfig.ConnConfig.Database)
}
