package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type StoreOptions struct {
	Path string `toml:"path"`
}

type EditorOptions struct {
	MaxRecords int `toml:"max-records"`
	UndoBudget int `toml:"undo-budget"`
	PadBlock   int `toml:"pad-block"`
}

type AlignOptions struct {
	SmallThreshold int     `toml:"small-threshold"`
	MaxDPCells     int     `toml:"max-dp-cells"`
	MinIdentity    float64 `toml:"min-identity"`
	Kmer           int     `toml:"kmer"`
	MaxSeedMatch   int     `toml:"max-seed-match"`
	BandMin        int     `toml:"band-min"`
	Match          int     `toml:"match"`
	Mismatch       int     `toml:"mismatch"`
	GapOpen        int     `toml:"gap-open"`
	GapExtend      int     `toml:"gap-extend"`
}

type JoinOptions struct {
	Margin float64 `toml:"margin"`
}

type LogOptions struct {
	Debug bool `toml:"debug"`
}

type MetricsOptions struct {
	File string `toml:"file"`
}

type Config struct {
	Store   StoreOptions   `toml:"store"`
	Editor  EditorOptions  `toml:"editor"`
	Align   AlignOptions   `toml:"align"`
	Join    JoinOptions    `toml:"join"`
	Log     LogOptions     `toml:"log"`
	Metrics MetricsOptions `toml:"metrics"`
}

func Default() Config {
	return Config{
		Store: StoreOptions{
			Path: "gap.db",
		},
		Editor: EditorOptions{
			MaxRecords: 100000,
			UndoBudget: 64 << 20,
			PadBlock:   100,
		},
		Align: AlignOptions{
			SmallThreshold: 1000,
			MaxDPCells:     20_000_000,
			MinIdentity:    0.80,
			Kmer:           8,
			MaxSeedMatch:   20,
			BandMin:        10,
			Match:          1,
			Mismatch:       -1,
			GapOpen:        -4,
			GapExtend:      -1,
		},
		Join: JoinOptions{
			Margin: 0.30,
		},
	}
}

func Load() (Config, error) {
	cfg := Default()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	var userCfg Config
	if _, err := toml.Decode(string(data), &userCfg); err != nil {
		return cfg, err
	}
	merge(&cfg, userCfg)
	return cfg, nil
}

func merge(cfg *Config, user Config) {
	if user.Store.Path != "" {
		cfg.Store.Path = user.Store.Path
	}
	if user.Editor.MaxRecords > 0 {
		cfg.Editor.MaxRecords = user.Editor.MaxRecords
	}
	if user.Editor.UndoBudget > 0 {
		cfg.Editor.UndoBudget = user.Editor.UndoBudget
	}
	if user.Editor.PadBlock > 0 {
		cfg.Editor.PadBlock = user.Editor.PadBlock
	}
	if user.Align.SmallThreshold > 0 {
		cfg.Align.SmallThreshold = user.Align.SmallThreshold
	}
	if user.Align.MaxDPCells > 0 {
		cfg.Align.MaxDPCells = user.Align.MaxDPCells
	}
	if user.Align.MinIdentity > 0 {
		cfg.Align.MinIdentity = user.Align.MinIdentity
	}
	if user.Align.Kmer > 0 {
		cfg.Align.Kmer = user.Align.Kmer
	}
	if user.Align.MaxSeedMatch > 0 {
		cfg.Align.MaxSeedMatch = user.Align.MaxSeedMatch
	}
	if user.Align.BandMin > 0 {
		cfg.Align.BandMin = user.Align.BandMin
	}
	if user.Align.Match != 0 {
		cfg.Align.Match = user.Align.Match
	}
	if user.Align.Mismatch != 0 {
		cfg.Align.Mismatch = user.Align.Mismatch
	}
	if user.Align.GapOpen != 0 {
		cfg.Align.GapOpen = user.Align.GapOpen
	}
	if user.Align.GapExtend != 0 {
		cfg.Align.GapExtend = user.Align.GapExtend
	}
	if user.Join.Margin > 0 {
		cfg.Join.Margin = user.Join.Margin
	}
	if user.Log.Debug {
		cfg.Log.Debug = true
	}
	if user.Metrics.File != "" {
		cfg.Metrics.File = user.Metrics.File
	}
}

func ConfigDir() (string, error) {
	if v := os.Getenv("GAPEDIT_CONFIG_HOME"); v != "" {
		return filepath.Join(v), nil
	}
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "gapedit"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "gapedit"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}
