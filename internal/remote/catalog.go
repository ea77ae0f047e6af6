// Package remote bridges logical button presses to an IR/RF blaster using a
// catalog of learned codes.
package remote

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// catalogFile is the TOML shape of a button catalog:
//
//	[buttons]
//	play = "JgBQAAAB..."
//	pause = "JgBQAAAC..."
//
// Values are base64 code blobs as captured by the vendor app.
type catalogFile struct {
	Buttons map[string]string `toml:"buttons"`
}

// Catalog holds the learned-code catalog and reloads it when the file on
// disk changes. A failed reload keeps the previous codes.
type Catalog struct {
	path string
	log  *zap.Logger

	mu    sync.RWMutex
	codes map[string][]byte
}

// NewCatalogFromCodes builds an in-memory catalog with no backing file.
func NewCatalogFromCodes(codes map[string][]byte, log *zap.Logger) *Catalog {
	return &Catalog{codes: codes, log: log}
}

// LoadCatalog reads the catalog file. Button ids are case-sensitive and used
// verbatim as API identifiers.
func LoadCatalog(path string, log *zap.Logger) (*Catalog, error) {
	c := &Catalog{path: path, log: log}
	codes, err := parseCatalog(path)
	if err != nil {
		return nil, err
	}
	c.codes = codes
	return c, nil
}

func parseCatalog(path string) (map[string][]byte, error) {
	var file catalogFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("read button catalog: %w", err)
	}

	codes := make(map[string][]byte, len(file.Buttons))
	for id, blob := range file.Buttons {
		code, err := base64.StdEncoding.DecodeString(blob)
		if err != nil {
			return nil, fmt.Errorf("button %q: decode code: %w", id, err)
		}
		if len(code) == 0 {
			return nil, fmt.Errorf("button %q: empty code", id)
		}
		codes[id] = code
	}
	return codes, nil
}

// Code returns the raw code for a button id.
func (c *Catalog) Code(id string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	code, ok := c.codes[id]
	return code, ok
}

// Buttons returns the known button ids, sorted.
func (c *Catalog) Buttons() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.codes))
	for id := range c.codes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Watch reloads the catalog whenever the file changes, until stop is called.
// Editors replace files rather than writing in place, so the watch covers
// the parent directory and filters on the catalog name.
func (c *Catalog) Watch() (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch button catalog: %w", err)
	}
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch button catalog: %w", err)
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != filepath.Base(c.path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				c.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.log.Warn("button catalog watcher error", zap.Error(err))
			}
		}
	}()

	return func() { watcher.Close() }, nil
}

func (c *Catalog) reload() {
	codes, err := parseCatalog(c.path)
	if err != nil {
		c.log.Warn("button catalog reload failed, keeping previous codes", zap.Error(err))
		return
	}

	c.mu.Lock()
	c.codes = codes
	c.mu.Unlock()
	c.log.Info("button catalog reloaded", zap.Int("buttons", len(codes)))
}
