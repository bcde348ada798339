package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/klauspost/compress/gzip"
	"github.com/zdypro888/plist"
	"go.uber.org/zap"
)

type options struct {
	Convert string `short:"c" long:"convert" description:"output format (xml, binary, yaml, json, pretty)"`
	Output  string `short:"o" long:"out" description:"output file, - for stdout"`
	Indent  string `short:"i" long:"indent" description:"XML indentation string"`
	Compact bool   `long:"compact" description:"write single-letter XML element names"`
	UIDs    bool   `long:"uid-dicts" description:"write UIDs as CF$UID dictionaries in XML"`
	Gzip    bool   `long:"gzip" description:"gzip the output"`
	Config  string `long:"config" description:"TOML configuration file"`
	Verbose bool   `short:"v" long:"verbose" description:"log debug output"`
}

var extensions = map[string]string{
	"xml":    ".plist",
	"binary": ".bplist",
	"yaml":   ".yaml",
	"json":   ".json",
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "[OPTIONS] FILE..."
	files, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}
	if len(files) == 0 {
		parser.WriteHelp(os.Stderr)
		os.Exit(2)
	}

	cfg, err := resolveConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ply: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ply: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	plist.SetLogger(log)

	if err := run(cfg, files, opts.Output, os.Stdin, os.Stdout, log); err != nil {
		log.Error("conversion failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "ply: %v\n", err)
		os.Exit(1)
	}
}

// resolveConfig layers the flags over the configuration file.
func resolveConfig(opts options) (config, error) {
	cfg := defaultConfig()
	if opts.Config != "" {
		loaded, err := loadConfig(opts.Config)
		if err != nil {
			return config{}, err
		}
		cfg = loaded
	}
	if opts.Convert != "" {
		format, err := normalizeFormat(opts.Convert)
		if err != nil {
			return config{}, err
		}
		cfg.Format = format
	}
	if opts.Indent != "" {
		cfg.Indent = opts.Indent
	}
	cfg.Compact = cfg.Compact || opts.Compact
	cfg.UIDDicts = cfg.UIDDicts || opts.UIDs
	cfg.Gzip = cfg.Gzip || opts.Gzip
	cfg.Verbose = cfg.Verbose || opts.Verbose
	return cfg, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Encoding = "console"
	return zcfg.Build()
}

func run(cfg config, files []string, output string, stdin io.Reader, stdout io.Writer, log *zap.Logger) error {
	if output != "" && output != "-" && len(files) > 1 {
		return fmt.Errorf("-o names one file but %d inputs were given", len(files))
	}
	for _, name := range files {
		data, err := readInput(name, stdin, cfg.Decode.MaxInputSize)
		if err != nil {
			return err
		}
		out, err := convert(cfg, data)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		dest := output
		if dest == "" {
			dest = outputPath(cfg, name)
		}
		if dest == name {
			return fmt.Errorf("%s: refusing to overwrite the input", name)
		}
		if dest == "-" {
			if _, err := stdout.Write(out); err != nil {
				return err
			}
			continue
		}
		if err := os.WriteFile(dest, out, 0o644); err != nil {
			return err
		}
		log.Info("converted", zap.String("input", name), zap.String("output", dest), zap.String("format", cfg.Format))
	}
	return nil
}

func readInput(name string, stdin io.Reader, limit int64) ([]byte, error) {
	if name == "-" {
		data, err := io.ReadAll(io.LimitReader(stdin, limit+1))
		if err != nil {
			return nil, err
		}
		if int64(len(data)) > limit {
			return nil, fmt.Errorf("stdin larger than %d bytes", limit)
		}
		return data, nil
	}
	info, err := os.Stat(name)
	if err != nil {
		return nil, err
	}
	if info.Size() > limit {
		return nil, fmt.Errorf("%s: larger than %d bytes", name, limit)
	}
	return os.ReadFile(name)
}

// outputPath places the converted file next to its input. Pretty output and
// stdin input always go to stdout.
func outputPath(cfg config, input string) string {
	ext, ok := extensions[cfg.Format]
	if !ok || input == "-" {
		return "-"
	}
	base := strings.TrimSuffix(input, ".gz")
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if cfg.Gzip {
		ext += ".gz"
	}
	return base + ext
}

func convert(cfg config, data []byte) ([]byte, error) {
	dec := plist.NewDecoder(bytes.NewReader(data))
	dec.SetOptions(cfg.Decode)
	v, err := dec.DecodeValue()
	if err != nil {
		return nil, err
	}

	var out []byte
	switch cfg.Format {
	case "xml", "binary":
		format := plist.XMLFormat
		if cfg.Format == "binary" {
			format = plist.BinaryFormat
		}
		buf := &bytes.Buffer{}
		enc := plist.NewEncoderForFormat(buf, format)
		enc.Indent(cfg.Indent)
		enc.CompactTags(cfg.Compact)
		enc.UIDDictionaries(cfg.UIDDicts)
		if err := enc.EncodeValue(v); err != nil {
			return nil, err
		}
		out = buf.Bytes()
	case "yaml":
		out, err = plist.ToYAML(v)
	case "json":
		out, err = plist.ToJSON(v)
	case "pretty":
		out = []byte(plist.Describe(v))
	default:
		return nil, fmt.Errorf("unknown output format %q", cfg.Format)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Gzip {
		return gzipBytes(out)
	}
	return out, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := gzip.NewWriter(buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
