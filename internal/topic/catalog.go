// Package topic holds the catalog of research topics and picks the topic a
// query belongs to.
package topic

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/topic-research/internal/model"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is an ordered set of topics with one default.
type Catalog struct {
	topics     []model.Topic
	byKey      map[string]int
	defaultKey string
}

type catalogFile struct {
	Topics struct {
		Default string        `yaml:"default"`
		Entries []model.Topic `yaml:"entries"`
	} `yaml:"topics"`
}

// Default returns the catalog shipped with the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads a catalog from a YAML file. An empty path yields the built-in
// catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "topic: read catalog %s", path)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "topic: load catalog %s", path)
	}
	return c, nil
}

// Parse decodes a YAML catalog. Keys must be unique and non-empty, and the
// default key, when set, must name an entry. Without one the first entry is
// the default.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "topic: parse catalog")
	}
	if len(f.Topics.Entries) == 0 {
		return nil, eris.New("topic: catalog has no entries")
	}

	c := &Catalog{
		topics: f.Topics.Entries,
		byKey:  make(map[string]int, len(f.Topics.Entries)),
	}
	for i, t := range c.topics {
		key := strings.TrimSpace(t.Key)
		if key == "" {
			return nil, eris.Errorf("topic: entry %d has no key", i)
		}
		if _, dup := c.byKey[key]; dup {
			return nil, eris.Errorf("topic: duplicate key %q", key)
		}
		if t.Label == "" {
			c.topics[i].Label = key
		}
		c.topics[i].Key = key
		c.byKey[key] = i
	}

	c.defaultKey = c.topics[0].Key
	if f.Topics.Default != "" {
		if _, ok := c.byKey[f.Topics.Default]; !ok {
			return nil, eris.Errorf("topic: default key %q is not in the catalog", f.Topics.Default)
		}
		c.defaultKey = f.Topics.Default
	}
	return c, nil
}

// WithDefault returns a copy of c whose default is key. Unknown keys leave
// the default unchanged.
func (c *Catalog) WithDefault(key string) *Catalog {
	if _, ok := c.byKey[key]; !ok {
		return c
	}
	cp := *c
	cp.defaultKey = key
	return &cp
}

// Get returns a copy of the topic stored under key.
func (c *Catalog) Get(key string) (*model.Topic, bool) {
	i, ok := c.byKey[strings.TrimSpace(key)]
	if !ok {
		return nil, false
	}
	t := c.topics[i]
	return &t, true
}

// Default returns the fallback topic.
func (c *Catalog) Default() *model.Topic {
	t, _ := c.Get(c.defaultKey)
	return t
}

// Topics returns every topic in catalog order.
func (c *Catalog) Topics() []model.Topic {
	out := make([]model.Topic, len(c.topics))
	copy(out, c.topics)
	return out
}

// Match finds the topic whose label or key equals s, ignoring case and
// surrounding whitespace and quotes.
func (c *Catalog) Match(s string) (*model.Topic, bool) {
	s = strings.ToLower(strings.Trim(strings.TrimSpace(s), `"'.`))
	if s == "" {
		return nil, false
	}
	for i := range c.topics {
		if strings.ToLower(c.topics[i].Label) == s || strings.ToLower(c.topics[i].Key) == s {
			t := c.topics[i]
			return &t, true
		}
	}
	return nil, false
}
