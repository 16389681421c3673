package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Env holds IMAP settings that may come from the environment instead of flags.
type Env struct {
	IMAPHost string `env:"IMAP_HOST"`
	IMAPUser string `env:"IMAP_USER"`
	IMAPPass string `env:"IMAP_PASS"`
}

// LoadEnv loads path as a dotenv file when it exists, without overriding
// variables already set, and parses Env from the environment.
func LoadEnv(path string) (Env, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Env{}, fmt.Errorf("load env file %s: %w", path, err)
		}
	}

	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse environment: %w", err)
	}
	return e, nil
}
