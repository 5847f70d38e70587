package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileConfig configures the file-backed secrets provider. The file holds a
// flat JSON object of key/value pairs and is meant for local development;
// production deployments use Vault or environment variables.
type FileConfig struct {
	Path string
	// CreateIfMissing writes an empty secrets file when none exists.
	CreateIfMissing bool
}

// FileProvider serves secrets from a JSON file on disk. All keys are held
// in memory after load; Set and Delete write the file back.
type FileProvider struct {
	path string

	mu      sync.RWMutex
	secrets map[string]string
}

// NewFileProvider loads the secrets file at config.Path.
func NewFileProvider(config *FileConfig) (*FileProvider, error) {
	if config == nil || config.Path == "" {
		return nil, fmt.Errorf("file secrets provider needs a path")
	}
	p := &FileProvider{
		path:    config.Path,
		secrets: make(map[string]string),
	}
	err := p.load()
	switch {
	case err == nil:
	case os.IsNotExist(err) && config.CreateIfMissing:
		if err := p.flush(); err != nil {
			return nil, fmt.Errorf("create secrets file: %w", err)
		}
	default:
		return nil, fmt.Errorf("load secrets file %s: %w", config.Path, err)
	}
	return p, nil
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Get(ctx context.Context, key string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	val, ok := p.secrets[key]
	if !ok {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	return val, nil
}

func (p *FileProvider) Set(ctx context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.secrets[key] = value
	return p.flush()
}

func (p *FileProvider) Delete(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.secrets, key)
	return p.flush()
}

// Reload re-reads the file, picking up edits made outside this process.
func (p *FileProvider) Reload() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load()
}

func (p *FileProvider) load() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &p.secrets)
}

// flush writes the current secrets back to disk with owner-only
// permissions. The caller must hold the write lock.
func (p *FileProvider) flush() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("create secrets directory: %w", err)
	}
	data, err := json.MarshalIndent(p.secrets, "", "  ")
	if err != nil {
		return fmt.Errorf("encode secrets: %w", err)
	}
	return os.WriteFile(p.path, data, 0o600)
}
