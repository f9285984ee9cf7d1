package flexbuf

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/rawbytedev/flexbuf/pkg/flexbuffers"
)

// Options configures a Codec.
type Options struct {
	// ShareStrings writes repeated strings once. Keys are always shared.
	ShareStrings bool
	// MaxDepth bounds container nesting on both encode and decode. Zero
	// means flexbuffers.DefaultMaxDepth.
	MaxDepth int
	// MaxNodes caps the values visited while decoding. Zero derives the
	// cap from the buffer length.
	MaxNodes int
	// Validate walks the whole buffer before decoding it.
	Validate bool
	// Logger receives debug events for rejected input. The zero value
	// discards everything.
	Logger zerolog.Logger
}

func DefaultOptions() Options {
	return Options{
		ShareStrings: true,
		MaxDepth:     flexbuffers.DefaultMaxDepth,
		Validate:     true,
		Logger:       zerolog.Nop(),
	}
}

func (o Options) limits() flexbuffers.Limits {
	depth := o.MaxDepth
	if depth <= 0 {
		depth = flexbuffers.DefaultMaxDepth
	}
	return flexbuffers.Limits{MaxDepth: depth, MaxNodes: o.MaxNodes}
}

func (o Options) builderOptions() flexbuffers.BuilderOptions {
	bo := flexbuffers.DefaultBuilderOptions()
	bo.ShareStrings = o.ShareStrings
	return bo
}

type fileOptions struct {
	ShareStrings bool   `toml:"share_strings"`
	MaxDepth     int    `toml:"max_depth"`
	MaxNodes     int    `toml:"max_nodes"`
	Validate     bool   `toml:"validate"`
	LogLevel     string `toml:"log_level"`
}

// LoadOptions reads a TOML file on top of DefaultOptions. Keys left out of
// the file keep their defaults. A log_level key turns on logging to stderr.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()

	var raw fileOptions
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Options{}, fmt.Errorf("load flexbuf options: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Options{}, fmt.Errorf("load flexbuf options: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("share_strings") {
		opts.ShareStrings = raw.ShareStrings
	}
	if meta.IsDefined("max_depth") {
		if raw.MaxDepth < 0 {
			return Options{}, fmt.Errorf("load flexbuf options: negative max_depth %d", raw.MaxDepth)
		}
		opts.MaxDepth = raw.MaxDepth
	}
	if meta.IsDefined("max_nodes") {
		if raw.MaxNodes < 0 {
			return Options{}, fmt.Errorf("load flexbuf options: negative max_nodes %d", raw.MaxNodes)
		}
		opts.MaxNodes = raw.MaxNodes
	}
	if meta.IsDefined("validate") {
		opts.Validate = raw.Validate
	}
	if meta.IsDefined("log_level") {
		lvl, err := zerolog.ParseLevel(strings.TrimSpace(raw.LogLevel))
		if err != nil {
			return Options{}, fmt.Errorf("parse log_level: %w", err)
		}
		opts.Logger = zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Str("component", "flexbuf").Logger()
	}
	return opts, nil
}
