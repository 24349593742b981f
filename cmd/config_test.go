package main

import (
	"testing"

	"github.com/Netflix/go-env"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	req := require.New(t)
	var config Config

	err := env.Unmarshal(env.EnvSet{}, &config)

	req.NoError(err)
	req.NoError(config.Validate())
	req.Equal(3001, config.Port)
	req.Equal(driverBadger, config.StoreDriver)
	req.Equal([]string{"*"}, config.Origins())
	req.Empty(config.BlugeFilepath)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{StoreDriver: driverBadger, BadgerFilepath: "/tmp/relay", NumberOfWorkers: 1, BufferSize: 1}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"Badger", func(*Config) {}, true},
		{"Badger without path", func(c *Config) { c.BadgerFilepath = "" }, false},
		{"Postgres without url", func(c *Config) { c.StoreDriver = driverPostgres }, false},
		{"Sqlite with url", func(c *Config) { c.StoreDriver = driverSQLite; c.DatabaseURL = "relay.db" }, true},
		{"Unknown driver", func(c *Config) { c.StoreDriver = "mongo" }, false},
		{"No workers", func(c *Config) { c.NumberOfWorkers = 0 }, false},
		{"Debug port on sql", func(c *Config) {
			c.StoreDriver = driverSQLite
			c.DatabaseURL = "relay.db"
			c.DebugPort = 6060
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			err := config.Validate()
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
		})
	}
}
