package msgcat

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

const embeddedFile = "messages.en.yaml"

//go:embed messages.en.yaml
var embedded embed.FS

// Catalog maps dotted keys such as "arena.room_full" to compiled notice templates.
// It is immutable once New returns.
type Catalog struct {
	entries map[string]*template.Template
}

// New compiles the embedded notices, then layers every *.yaml/*.yml in overrideDir on top.
// An override file may not redefine a key another override file already set.
func New(overrideDir string) (*Catalog, error) {
	raw, err := embedded.ReadFile(embeddedFile)
	if err != nil {
		return nil, fmt.Errorf("read embedded messages: %w", err)
	}
	sources, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode embedded messages: %w", err)
	}
	if dir := strings.TrimSpace(overrideDir); dir != "" {
		overrides, err := loadOverrides(dir)
		if err != nil {
			return nil, err
		}
		for k, v := range overrides {
			sources[k] = v
		}
	}

	c := &Catalog{entries: make(map[string]*template.Template, len(sources))}
	for key, src := range sources {
		if strings.TrimSpace(src) == "" {
			continue
		}
		t, err := template.New(key).Option("missingkey=error").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", key, err)
		}
		c.entries[key] = t
	}
	return c, nil
}

// MustDefault returns the embedded catalog. It panics only on a broken build.
func MustDefault() *Catalog {
	c, err := New("")
	if err != nil {
		panic(err)
	}
	return c
}

// Render executes the notice stored under key.
func (c *Catalog) Render(key string, data any) (string, error) {
	t, ok := c.entries[strings.TrimSpace(key)]
	if !ok {
		return "", fmt.Errorf("unknown message key %q", key)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Text is Render with a fallback for nil catalogs, unknown keys and render failures.
func (c *Catalog) Text(key string, data any, fallback string) string {
	if c == nil {
		return fallback
	}
	if s, err := c.Render(key, data); err == nil && strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}

func loadOverrides(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read messages dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	merged := make(map[string]string)
	origin := make(map[string]string)
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		kv, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		for k, v := range kv {
			if first, dup := origin[k]; dup {
				return nil, fmt.Errorf("message %q defined in both %s and %s", k, first, name)
			}
			origin[k] = name
			merged[k] = v
		}
	}
	return merged, nil
}

// decode flattens nested YAML mappings into dotted keys. Leaves must be strings.
func decode(raw []byte) (map[string]string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if len(root.Content) == 0 {
		return out, nil
	}
	return out, walk(root.Content[0], "", out)
}

func walk(n *yaml.Node, path string, out map[string]string) error {
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if path != "" {
				key = path + "." + key
			}
			if err := walk(n.Content[i+1], key, out); err != nil {
				return err
			}
		}
		return nil
	case yaml.ScalarNode:
		if path == "" {
			return fmt.Errorf("line %d: message without a key", n.Line)
		}
		if n.Tag == "!!null" {
			return nil
		}
		out[path] = n.Value
		return nil
	default:
		return fmt.Errorf("line %d: %s must be a string or mapping", n.Line, path)
	}
}
