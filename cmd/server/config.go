package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// envConfig carries deployment settings and secrets that do not belong on
// the command line.
type envConfig struct {
	DeployEnv       string `env:"DEPLOY_ENV"`
	EnableAdminHTTP *bool  `env:"GP_ENABLE_ADMIN_HTTP"`
	EnablePprofHTTP bool   `env:"GP_ENABLE_PPROF_HTTP"`
	AllowRemoteHost bool   `env:"GP_ALLOW_REMOTE_HOST"`

	IndexBackend string `env:"GP_INDEX_BACKEND" envDefault:"sqlite"`

	KafkaBrokers []string `env:"GP_KAFKA_BROKERS" envSeparator:","`

	Mirror mirrorEnv `envPrefix:"GP_S3_"`
}

type mirrorEnv struct {
	Enabled         bool   `env:"MIRROR"`
	Endpoint        string `env:"ENDPOINT"`
	Bucket          string `env:"BUCKET"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	Prefix          string `env:"PREFIX"`
	Workers         int    `env:"UPLOAD_WORKERS" envDefault:"2"`
}

func parseEnv() (envConfig, error) {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// adminEnabled defaults to on outside staging and production.
func (c envConfig) adminEnabled() bool {
	if c.EnableAdminHTTP != nil {
		return *c.EnableAdminHTTP
	}
	switch c.DeployEnv {
	case "staging", "production":
		return false
	default:
		return true
	}
}
