package config

import (
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vote-ledger/blockchain"
	"vote-ledger/storage"
)

type Config struct {
	StorageDir      string
	StoreBackend    string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	Difficulty      int
	Port            int
	WSPort          int
	Candidates      []string
	MaxChoiceLength int
	VerifyOnLoad    blockchain.VerifyPolicy
	KeyFile         string
	PublicDir       string
	RequestTimeout  time.Duration
}

// Load parses args (without the program name) into a Config. PORT and the
// DATABASE_* variables provide defaults that flags override.
func Load(args []string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}

	config := &Config{}
	fs := flag.NewFlagSet("vote-ledger", flag.ContinueOnError)

	defaultPort := 3000
	if p := getenv("PORT"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", p, err)
		}
		defaultPort = n
	}
	defaultBackend := storage.BackendJSON
	if getenv("DATABASE_URL") != "" {
		defaultBackend = storage.BackendMongo
	}

	fs.StringVar(&config.StorageDir, "storage", "data", "Directory for ledger storage")
	fs.StringVar(&config.StoreBackend, "store", defaultBackend, "Persistence backend (json or mongo)")
	fs.StringVar(&config.MongoURI, "mongo-uri", getenv("DATABASE_URL"), "MongoDB connection string")
	fs.StringVar(&config.MongoDatabase, "mongo-db", envOr(getenv, "DATABASE_NAME", "voting"), "MongoDB database")
	fs.StringVar(&config.MongoCollection, "mongo-collection", envOr(getenv, "DATABASE_COLLECTION", "ledger"), "MongoDB collection")
	fs.IntVar(&config.Difficulty, "difficulty", 2, fmt.Sprintf("Mining difficulty (0-%d)", blockchain.MaxDifficulty))
	fs.IntVar(&config.Port, "port", defaultPort, "HTTP server port")
	fs.IntVar(&config.WSPort, "ws-port", 0, "Websocket block feed port (0 disables)")
	fs.IntVar(&config.MaxChoiceLength, "max-choice", blockchain.DefaultMaxChoiceLength, "Maximum choice length in bytes")
	fs.StringVar(&config.KeyFile, "key", "", "Receipt signing key file (default <storage>/node_key.json)")
	fs.StringVar(&config.PublicDir, "public", "", "Directory of static files to serve")
	fs.DurationVar(&config.RequestTimeout, "timeout", 30*time.Second, "Per-request timeout")

	var candidates, verify string
	fs.StringVar(&candidates, "candidates", "", "Comma separated candidate list (empty accepts any choice)")
	fs.StringVar(&verify, "verify", string(blockchain.VerifyWarn), "Chain verification on load (off, warn or strict)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	policy, err := blockchain.ParseVerifyPolicy(verify)
	if err != nil {
		return nil, err
	}
	config.VerifyOnLoad = policy
	config.Candidates = splitList(candidates)

	if config.KeyFile == "" && config.StorageDir != "" {
		config.KeyFile = filepath.Join(config.StorageDir, "node_key.json")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects out-of-range values
func (c *Config) Validate() error {
	if err := blockchain.ValidateDifficulty(c.Difficulty); err != nil {
		return err
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.WSPort < 0 || c.WSPort > 65535 {
		return fmt.Errorf("ws-port must be between 0 and 65535, got %d", c.WSPort)
	}
	if c.WSPort != 0 && c.WSPort == c.Port {
		return errors.New("ws-port must differ from port")
	}
	if c.MaxChoiceLength < 1 {
		return fmt.Errorf("max-choice must be positive, got %d", c.MaxChoiceLength)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.RequestTimeout)
	}

	switch c.StoreBackend {
	case storage.BackendJSON:
		if c.StorageDir == "" {
			return errors.New("storage directory is required for the json backend")
		}
	case storage.BackendMongo:
		if c.MongoURI == "" {
			return errors.New("mongo-uri (or DATABASE_URL) is required for the mongo backend")
		}
	default:
		return fmt.Errorf("%w: %q", storage.ErrUnknownBackend, c.StoreBackend)
	}
	return nil
}

func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Backend:         c.StoreBackend,
		Dir:             c.StorageDir,
		MongoURI:        c.MongoURI,
		MongoDatabase:   c.MongoDatabase,
		MongoCollection: c.MongoCollection,
	}
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
