package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-recipes/internal/ports"
)

// SettingsLoader provides YAML settings parsing, validation, and caching.
// Use SettingsLoader to load settings from files or readers while
// benefiting from SHA256-based caching and validation of the general,
// chef and critic sections.
type SettingsLoader struct {
	// cache stores validated settings indexed by the SHA256 hash of their
	// normalized form. Cached settings are immutable.
	cache map[string]*Settings
	// cacheMu provides thread-safe access to the cache map during
	// concurrent read and write operations.
	cacheMu sync.RWMutex
	// sf prevents duplicate validation when multiple goroutines request the
	// same settings simultaneously.
	sf singleflight.Group
}

// NewSettingsLoader creates a new settings loader with an empty cache.
func NewSettingsLoader() *SettingsLoader {
	return &SettingsLoader{cache: make(map[string]*Settings)}
}

// load is the common implementation for loading settings from byte data,
// utilizing singleflight to prevent duplicate validation and SHA256-based
// caching for efficiency.
func (sl *SettingsLoader) load(ctx context.Context, data []byte) (*Settings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Parse first so that the hash is computed on the normalized form.
	settings, err := ParseSettings(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	hash, err := sl.calculateSettingsHash(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	v, err, _ := sl.sf.Do(hash, func() (any, error) {
		// Check the cache inside singleflight to handle the race between
		// the cache check and group execution.
		if cached, ok := sl.getCachedSettings(hash); ok {
			return cached, nil
		}

		if err := ValidateSettings(settings); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}

		sl.cacheSettings(hash, settings)
		return settings, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Settings), nil
}

// LoadFromFile loads and validates settings from a YAML file.
// LoadFromFile returns an error if file reading, parsing, or validation
// fails.
func (sl *SettingsLoader) LoadFromFile(ctx context.Context, path string) (*Settings, error) {
	cleanPath := filepath.Clean(path)

	data, err := os.ReadFile(cleanPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ports.NewConfigError(cleanPath, fmt.Errorf("%w: %w", ports.ErrConfigNotFound, err))
	}
	if err != nil {
		return nil, ports.NewConfigError(cleanPath, err)
	}

	return sl.load(ctx, data)
}

// LoadFromReader loads and validates settings from an io.Reader.
func (sl *SettingsLoader) LoadFromReader(ctx context.Context, r io.Reader) (*Settings, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	return sl.load(ctx, data)
}

// chefSteps is the validated view of the chef step list.
type chefSteps struct {
	Steps []string `validate:"required,min=1,unique,dive,stagename"`
}

// ValidateSettings checks the typed views of settings: the general and
// critic sections must decode and validate, and the chef step list must
// name known stages without repeats.
func ValidateSettings(settings *Settings) error {
	if _, err := settings.General(); err != nil {
		return err
	}
	if _, err := settings.Critic(); err != nil {
		return err
	}
	steps, err := settings.Steps(SectionChef)
	if err != nil {
		return err
	}
	return validateStruct("ChefSettings", chefSteps{Steps: steps})
}

// calculateSettingsHash computes the SHA256 hash of normalized settings.
// yaml.v3 encodes map keys in sorted order, so semantically identical
// files hash the same regardless of key order or whitespace.
func (sl *SettingsLoader) calculateSettingsHash(settings *Settings) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)

	if err := encoder.Encode(settings.sections); err != nil {
		return "", fmt.Errorf("failed to encode settings for hashing: %w", err)
	}

	hash := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(hash[:]), nil
}

func (sl *SettingsLoader) getCachedSettings(hash string) (*Settings, bool) {
	sl.cacheMu.RLock()
	defer sl.cacheMu.RUnlock()

	settings, ok := sl.cache[hash]
	return settings, ok
}

func (sl *SettingsLoader) cacheSettings(hash string, settings *Settings) {
	sl.cacheMu.Lock()
	defer sl.cacheMu.Unlock()

	sl.cache[hash] = settings
}

// ClearCache removes all cached settings, forcing subsequent loads to
// parse and validate from source.
func (sl *SettingsLoader) ClearCache() {
	sl.cacheMu.Lock()
	defer sl.cacheMu.Unlock()

	sl.cache = make(map[string]*Settings)
}
