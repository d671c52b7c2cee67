package config

import (
	"fmt"
	"path/filepath"
)

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type StoreConfig interface {
	GetUserStore() string
	GetDataFolder() string
	GetSQLitePath() string
	GetDatabaseURL() string
	GetFlowStore() string
	GetRedisURL() string
}

type Store struct {
	UserStore   string `env:"STORE" envDefault:"memory"`
	DataFolder  string `env:"FOLDER" envDefault:"./data"`
	DatabaseURL string `env:"DATABASE_URL"`
	FlowStore   string `env:"FLOW_STORE" envDefault:"memory"`
	RedisURL    string `env:"REDIS_URL"`
}

var _ StoreConfig = Store{}

func (s Store) GetUserStore() string {
	return s.UserStore
}

func (s Store) GetDataFolder() string {
	return s.DataFolder
}

func (s Store) GetSQLitePath() string {
	return filepath.Join(s.DataFolder, "lipoic.db")
}

func (s Store) GetDatabaseURL() string {
	return s.DatabaseURL
}

func (s Store) GetFlowStore() string {
	return s.FlowStore
}

func (s Store) GetRedisURL() string {
	return s.RedisURL
}

func (s Store) validate() error {
	switch s.UserStore {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if s.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORE=%s", StorePostgres)
		}
	default:
		return fmt.Errorf("unknown STORE %q", s.UserStore)
	}
	switch s.FlowStore {
	case StoreMemory:
	case StoreRedis:
		if s.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for FLOW_STORE=%s", StoreRedis)
		}
	default:
		return fmt.Errorf("unknown FLOW_STORE %q", s.FlowStore)
	}
	return nil
}
