// Package config loads the process configuration from the environment.
//
// Values come from real environment variables first; a .env file in the
// working directory, when present, fills in anything not already set.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is everything the server and the CLI need to start.
type Config struct {
	Port          int    `env:"PORT" envDefault:"8080"`
	DBPath        string `env:"DB_PATH" envDefault:"data/minelux.db"`
	JWTSecret     string `env:"JWT_SECRET"`
	SecureCookies bool   `env:"SECURE_COOKIES" envDefault:"false"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	GitHub GitHub `envPrefix:"GITHUB_"`

	RemoteTimeout time.Duration `env:"REMOTE_TIMEOUT" envDefault:"10s"`
	// UsersRemote and ModsRemote choose, per document, whether the remote
	// repository is tried first. Users stay local unless told otherwise.
	UsersRemote bool `env:"USERS_REMOTE" envDefault:"false"`
	ModsRemote  bool `env:"MODS_REMOTE" envDefault:"true"`

	// Namespace prefixes the local storage keys: <namespace>_users and
	// <namespace>_mods.
	Namespace string `env:"STORAGE_NAMESPACE" envDefault:"minelux"`

	AdminUsername string `env:"ADMIN_USERNAME" envDefault:"Minelux"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	// Generated is set when Load had to invent a secret; the caller logs it.
	Generated []string
}

// GitHub locates the repository that holds the two documents.
type GitHub struct {
	Token     string `env:"TOKEN"`
	Owner     string `env:"OWNER" envDefault:"minelux"`
	Repo      string `env:"REPO" envDefault:"Minelux"`
	Branch    string `env:"BRANCH" envDefault:"main"`
	UsersPath string `env:"USERS_PATH" envDefault:"users.json"`
	ModsPath  string `env:"MODS_PATH" envDefault:"mods.json"`
	APIURL    string `env:"API_URL" envDefault:"https://api.github.com"`
	RawURL    string `env:"RAW_URL" envDefault:"https://raw.githubusercontent.com"`
}

// UsersKey and ModsKey are the local storage keys of the two documents.
func (c Config) UsersKey() string { return c.Namespace + "_users" }
func (c Config) ModsKey() string  { return c.Namespace + "_mods" }

// Load reads dotenvPath (if it exists) and then the environment.
//
// A missing JWT_SECRET or ADMIN_PASSWORD is replaced with a random value
// and named in Generated. Sessions then do not survive a restart, and the
// admin password is only known from the startup log.
func Load(dotenvPath string) (Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: loading %s: %w", dotenvPath, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = randomSecret()
		cfg.Generated = append(cfg.Generated, "JWT_SECRET")
	}
	if cfg.AdminPassword == "" {
		cfg.AdminPassword = randomSecret()[:16]
		cfg.Generated = append(cfg.Generated, "ADMIN_PASSWORD")
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// maxAdminPasswordBytes is bcrypt's input limit.
const maxAdminPasswordBytes = 72

func (c Config) validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	case c.AdminUsername == "":
		return errors.New("config: ADMIN_USERNAME must not be empty")
	case c.Namespace == "":
		return errors.New("config: STORAGE_NAMESPACE must not be empty")
	case c.RemoteTimeout <= 0:
		return errors.New("config: REMOTE_TIMEOUT must be positive")
	case len(c.AdminPassword) > maxAdminPasswordBytes:
		// bcrypt reads no further, and the admin could never log in.
		return fmt.Errorf("config: ADMIN_PASSWORD must be %d bytes or fewer", maxAdminPasswordBytes)
	}
	return nil
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("config: crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}
