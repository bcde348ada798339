package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/zdypro888/plist"
)

// config is the effective ply configuration: defaults, then the TOML file,
// then command line flags.
type config struct {
	Format   string
	Indent   string
	Compact  bool
	UIDDicts bool
	Gzip     bool
	Verbose  bool
	Decode   plist.DecodeOptions
}

type fileConfig struct {
	Format       string `toml:"format"`
	Indent       string `toml:"indent"`
	Compact      bool   `toml:"compact"`
	UIDDicts     bool   `toml:"uid_dicts"`
	Gzip         bool   `toml:"gzip"`
	Verbose      bool   `toml:"verbose"`
	MaxNodes     int    `toml:"max_nodes"`
	MaxInputSize int64  `toml:"max_input_size"`
}

var outputFormats = []string{"xml", "binary", "yaml", "json", "pretty"}

func defaultConfig() config {
	return config{
		Format: "xml",
		Indent: plist.DefaultXMLOptions.Indent,
		Decode: plist.DecodeOptions{
			MaxNodes:     plist.DefaultMaxNodes,
			MaxInputSize: plist.DefaultMaxInputSize,
		},
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config{}, fmt.Errorf("load ply config: %w", err)
	}

	if meta.IsDefined("format") {
		format, err := normalizeFormat(raw.Format)
		if err != nil {
			return config{}, err
		}
		cfg.Format = format
	}

	if meta.IsDefined("indent") {
		cfg.Indent = raw.Indent
	}

	if meta.IsDefined("compact") {
		cfg.Compact = raw.Compact
	}

	if meta.IsDefined("uid_dicts") {
		cfg.UIDDicts = raw.UIDDicts
	}

	if meta.IsDefined("gzip") {
		cfg.Gzip = raw.Gzip
	}

	if meta.IsDefined("verbose") {
		cfg.Verbose = raw.Verbose
	}

	if meta.IsDefined("max_nodes") {
		if raw.MaxNodes <= 0 {
			return config{}, fmt.Errorf("max_nodes must be positive, got %d", raw.MaxNodes)
		}
		cfg.Decode.MaxNodes = raw.MaxNodes
	}

	if meta.IsDefined("max_input_size") {
		if raw.MaxInputSize <= 0 {
			return config{}, fmt.Errorf("max_input_size must be positive, got %d", raw.MaxInputSize)
		}
		cfg.Decode.MaxInputSize = raw.MaxInputSize
	}

	return cfg, nil
}

func normalizeFormat(s string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, f := range outputFormats {
		if v == f {
			return v, nil
		}
	}
	if format, ok := plist.ParseFormat(v); ok {
		if format == plist.BinaryFormat {
			return "binary", nil
		}
		return "xml", nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}
