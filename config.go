package memkit

import (
	"bytes"
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/QuangTung97/memkit/allocator"
)

// Kind names an allocator strategy.
type Kind string

const (
	// KindSystem is the Go heap, allocator.SystemAllocator.
	KindSystem Kind = "system"
	// KindPage maps pages from the operating system, allocator.PageAllocator.
	KindPage Kind = "page"
	// KindBuddy ...
	KindBuddy Kind = "buddy"
	// KindArena ...
	KindArena Kind = "arena"
	// KindPool ...
	KindPool Kind = "pool"
)

// ErrInvalidConfig is wrapped by every error Validate returns.
var ErrInvalidConfig = errors.New("memkit: invalid config")

// Config describes a hierarchy of allocators, leaves first. Every layer
// but the first borrows its region from a parent layer.
type Config struct {
	Layers []LayerConfig `yaml:"layers"`
}

// LayerConfig is one allocator of the hierarchy.
type LayerConfig struct {
	Name string `yaml:"name"`
	Kind Kind   `yaml:"kind"`
	// Parent is the layer the region is borrowed from, the previous one
	// when empty.
	Parent string `yaml:"parent"`

	// Size of the borrowed region, for buddy and arena layers.
	Size datasize.ByteSize `yaml:"size"`
	// MinChunkSize of a buddy layer.
	MinChunkSize datasize.ByteSize `yaml:"min_chunk_size"`
	// BlockSize and Blocks of a pool layer.
	BlockSize datasize.ByteSize `yaml:"block_size"`
	Blocks    int               `yaml:"blocks"`

	// Alignment overrides the default alignment of the layer's kind.
	Alignment int `yaml:"alignment"`

	// Track wraps the layer in a tracking.Tracker.
	Track bool `yaml:"track"`
	// Locked serializes calls to the layer with allocator.Locked.
	Locked bool `yaml:"locked"`
}

// ParseConfig decodes a YAML hierarchy and validates it. Unknown fields
// are rejected.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "memkit: decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses the YAML file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "memkit: read config %s", path)
	}
	return ParseConfig(data)
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidConfig, format, args...)
}

// Validate checks the layers one by one. Sizes are checked against what
// each kind needs, the allocator constructors check the rest.
func (cfg *Config) Validate() error {
	if len(cfg.Layers) == 0 {
		return invalid("no layers")
	}

	seen := make(map[string]bool, len(cfg.Layers))
	for i := range cfg.Layers {
		l := &cfg.Layers[i]
		if l.Name == "" {
			return invalid("layer %d has no name", i)
		}
		if seen[l.Name] {
			return invalid("layer %q defined twice", l.Name)
		}
		if err := l.validate(i == 0, seen); err != nil {
			return err
		}
		seen[l.Name] = true
	}
	return nil
}

func (l *LayerConfig) validate(first bool, seen map[string]bool) error {
	if l.Alignment != 0 && (l.Alignment < 0 || l.Alignment&(l.Alignment-1) != 0) {
		return invalid("layer %q: alignment %d is not a power of two", l.Name, l.Alignment)
	}

	switch l.Kind {
	case KindSystem, KindPage:
		if l.Parent != "" {
			return invalid("layer %q: %s layers have no parent", l.Name, l.Kind)
		}
		return nil

	case KindBuddy, KindArena, KindPool:
	default:
		return invalid("layer %q: unknown kind %q", l.Name, l.Kind)
	}

	if first {
		return invalid("layer %q: kind %s needs a parent layer", l.Name, l.Kind)
	}
	if l.Parent != "" && !seen[l.Parent] {
		return invalid("layer %q: parent %q is not defined before it", l.Name, l.Parent)
	}

	switch l.Kind {
	case KindBuddy:
		if l.Size == 0 || l.MinChunkSize == 0 {
			return invalid("layer %q: buddy needs size and min_chunk_size", l.Name)
		}
	case KindArena:
		if l.Size == 0 {
			return invalid("layer %q: arena needs size", l.Name)
		}
	case KindPool:
		if l.BlockSize == 0 || l.Blocks <= 0 {
			return invalid("layer %q: pool needs block_size and blocks", l.Name)
		}
	}
	return nil
}

func (l *LayerConfig) options() []allocator.Option {
	if l.Alignment == 0 {
		return nil
	}
	return []allocator.Option{allocator.WithAlignment(l.Alignment)}
}
