// Package config loads recall.toml, searching the working directory and
// its ancestors before falling back to the OS config directory. A
// missing file is a supported configuration: every field has a default
// applied in Go.
package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full set of recall.toml options.
type Config struct {
	StorePath     string  `toml:"store_path"`
	ChunkTokens   int     `toml:"chunk_tokens"`
	OverlapTokens int     `toml:"overlap_tokens"`
	Embedding     string  `toml:"embedding"`
	EmbeddingDim  int     `toml:"embedding_dim"`
	BM25Weight    float64 `toml:"bm25_weight"`
	VectorWeight  float64 `toml:"vector_weight"`
	MaxLimit      int     `toml:"max_limit"`
	AnnBits       int     `toml:"ann_bits"`
	AnnSeed       uint64  `toml:"ann_seed"`
	MinCandidates int     `toml:"min_candidates"`
	BusyTimeoutMs int     `toml:"busy_timeout_ms"`
}

// Default returns the built-in configuration used when no recall.toml is
// found, or to fill any field a partial file leaves unset.
func Default() Config {
	return Config{
		StorePath:     "recall.db",
		ChunkTokens:   256,
		OverlapTokens: 32,
		Embedding:     "hash",
		EmbeddingDim:  256,
		BM25Weight:    0.5,
		VectorWeight:  0.5,
		MaxLimit:      1000,
		AnnBits:       16,
		AnnSeed:       42,
		MinCandidates: 50,
		BusyTimeoutMs: 5000,
	}
}

// Ctx pairs a loaded Config with the directory it was found in (or the
// starting directory, if none was found), so relative paths like
// StorePath resolve the same way regardless of the caller's cwd.
type Ctx struct {
	Root   string
	Config Config
}

const fileName = "recall.toml"

// LoadFromCwd is Load starting from the process's current directory.
func LoadFromCwd() (Ctx, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Ctx{}, err
	}
	return Load(cwd)
}

// Load walks upward from start looking for recall.toml, falling back to
// the OS config directory, and finally to defaults with no config file
// found at all.
func Load(start string) (Ctx, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		abs = start
	}

	for cur := abs; ; {
		candidate := filepath.Join(cur, fileName)
		if _, err := os.Stat(candidate); err == nil {
			cfg, err := readFile(candidate)
			if err != nil {
				return Ctx{}, err
			}
			return Ctx{Root: cur, Config: cfg}, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}

	if dir, err := os.UserConfigDir(); err == nil {
		candidate := filepath.Join(dir, "recall", fileName)
		if _, err := os.Stat(candidate); err == nil {
			cfg, err := readFile(candidate)
			if err != nil {
				return Ctx{}, err
			}
			return Ctx{Root: filepath.Dir(candidate), Config: cfg}, nil
		}
	}

	return Ctx{Root: abs, Config: Default()}, nil
}

func readFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.OverlapTokens >= cfg.ChunkTokens {
		cfg.OverlapTokens = 0
	}
	return cfg, nil
}

// Write serializes cfg as TOML to path, creating parent directories as
// needed.
func Write(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// StorePath resolves c.Config.StorePath relative to c.Root, unless it is
// already absolute.
func (c Ctx) StorePath() string {
	if filepath.IsAbs(c.Config.StorePath) {
		return c.Config.StorePath
	}
	return filepath.Join(c.Root, c.Config.StorePath)
}
