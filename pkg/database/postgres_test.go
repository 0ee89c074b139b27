package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/assignx-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "assignx", Password: "pw", Name: "assignx", SSLMode: "disable"})

	assert.Equal(t, "host=db port=5432 user=assignx password=pw dbname=assignx sslmode=disable application_name=assignx-api connect_timeout=5", dsn)
}
