package db

import "github.com/smallbiznis/productdesk/internal/config"

type Config struct {
	Type        string
	Host        string
	Port        string
	Name        string
	User        string
	Password    string
	SSLMode     string
	MaxIdleConn int
	MaxOpenConn int
}

func ConfigFrom(cfg config.Config) Config {
	return Config{
		Type:        cfg.DBType,
		Host:        cfg.DBHost,
		Port:        cfg.DBPort,
		Name:        cfg.DBName,
		User:        cfg.DBUser,
		Password:    cfg.DBPassword,
		SSLMode:     cfg.DBSSLMode,
		MaxIdleConn: cfg.DBMaxIdleConn,
		MaxOpenConn: cfg.DBMaxOpenConn,
	}
}
