package labels

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	yaml "gopkg.in/yaml.v3"

	"github.com/kapvel/chessvision/internal/board"
)

//go:embed labels.default.yaml
var defaultFiles embed.FS

// Catalog maps detector class labels to piece values. Defaults are embedded;
// custom-trained detectors supply override YAML files mapping their own
// class names to the shared "wP".."bK" piece codes.
type Catalog struct {
	mu   sync.RWMutex
	data map[string]nchess.Piece
}

// New loads the embedded default labels and then applies overrides from dir
// if provided.
func New(overrideDir string) (*Catalog, error) {
	c := &Catalog{data: make(map[string]nchess.Piece)}
	if err := c.loadEmbedded(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(overrideDir) != "" {
		if err := c.applyDir(overrideDir); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// PieceFor resolves a detector label to a piece.
func (c *Catalog) PieceFor(label string) (nchess.Piece, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.data[strings.ToLower(strings.TrimSpace(label))]
	return p, ok
}

// Labels lists the known labels in sorted order.
func (c *Catalog) Labels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.data))
	for k := range c.data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) loadEmbedded() error {
	raw, err := fs.ReadFile(defaultFiles, "labels.default.yaml")
	if err != nil {
		return fmt.Errorf("read embedded labels: %w", err)
	}
	return c.applyYAML(raw)
}

func (c *Catalog) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read labels dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	// Guard against the same label being redefined across override files.
	seen := make(map[string]string)
	for _, name := range files {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		flat, err := parseLabelMap(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		for label := range flat {
			if prev, ok := seen[label]; ok {
				return fmt.Errorf("duplicate label %q in %s and %s", label, prev, name)
			}
			seen[label] = name
		}
		c.mu.Lock()
		for label, piece := range flat {
			c.data[label] = piece
		}
		c.mu.Unlock()
	}
	return nil
}

func (c *Catalog) applyYAML(raw []byte) error {
	flat, err := parseLabelMap(raw)
	if err != nil {
		return err
	}
	c.mu.Lock()
	for label, piece := range flat {
		c.data[label] = piece
	}
	c.mu.Unlock()
	return nil
}

func parseLabelMap(raw []byte) (map[string]nchess.Piece, error) {
	var doc struct {
		Pieces map[string]string `yaml:"pieces"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if len(doc.Pieces) == 0 {
		return nil, errors.New("no pieces mapping")
	}
	out := make(map[string]nchess.Piece, len(doc.Pieces))
	for label, code := range doc.Pieces {
		piece, ok := board.PieceFromCode(strings.TrimSpace(code))
		if !ok {
			return nil, fmt.Errorf("label %q maps to unknown piece code %q", label, code)
		}
		out[strings.ToLower(strings.TrimSpace(label))] = piece
	}
	return out, nil
}
