// Package catalog holds the static list of eco-actions and challenges.
package catalog

import (
	"fmt"
	"strings"
	"sync"

	"github.com/okian/ecoquest/internal/domain/geo"
)

// Kind separates simple actions from location-gated challenges.
type Kind string

// Entry kinds.
const (
	KindAction    Kind = "action"
	KindChallenge Kind = "challenge"
)

// Entry describes one catalog item.
type Entry struct {
	ID               string     `json:"id" koanf:"id"`
	Title            string     `json:"title" koanf:"title"`
	Description      string     `json:"description" koanf:"description"`
	ImageRef         string     `json:"image_ref" koanf:"image_ref"`
	Kind             Kind       `json:"kind" koanf:"kind"`
	RequiresLocation bool       `json:"requires_location" koanf:"requires_location"`
	Target           *geo.Point `json:"target,omitempty" koanf:"target"`
}

// Catalog is read-only after construction except for the active selection.
type Catalog struct {
	mu            sync.RWMutex
	entries       map[string]Entry
	order         []string
	active        string
	defaultTarget geo.Point
}

// Option applies a configuration option to the Catalog.
type Option func(*Catalog)

// WithDefaultTarget sets the target used by gated entries without their own.
func WithDefaultTarget(p geo.Point) Option {
	return func(c *Catalog) {
		c.defaultTarget = p
	}
}

// New builds a catalog. Challenges are always gated; actions are gated only
// when they say so.
func New(entries []Entry, opts ...Option) (*Catalog, error) {
	c := &Catalog{
		entries:       make(map[string]Entry, len(entries)),
		defaultTarget: DefaultTarget,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.defaultTarget.Validate(); err != nil {
		return nil, fmt.Errorf("default target: %w", err)
	}

	for _, e := range entries {
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			return nil, fmt.Errorf("%w: empty id", ErrInvalidEntry)
		}
		if _, dup := c.entries[e.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, e.ID)
		}
		switch e.Kind {
		case "":
			e.Kind = KindAction
		case KindAction:
		case KindChallenge:
			e.RequiresLocation = true
		default:
			return nil, fmt.Errorf("%w: %s has kind %q", ErrInvalidEntry, e.ID, e.Kind)
		}
		if e.Target != nil {
			if err := e.Target.Validate(); err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidEntry, e.ID, err)
			}
		}
		c.entries[e.ID] = e
		c.order = append(c.order, e.ID)
	}

	return c, nil
}

// Describe returns the entry for id.
func (c *Catalog) Describe(id string) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}
	return e, nil
}

// RequiresLocation reports whether id is gated. Unknown ids are not gated.
func (c *Catalog) RequiresLocation(id string) bool {
	e, err := c.Describe(id)
	return err == nil && e.RequiresLocation
}

// Select marks id as the active entry.
func (c *Catalog) Select(id string) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}
	c.active = id
	return e, nil
}

// Active returns the selected entry, if any.
func (c *Catalog) Active() (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.active == "" {
		return Entry{}, false
	}
	return c.entries[c.active], true
}

// TargetFor returns the target point to gate id against.
func (c *Catalog) TargetFor(id string) geo.Point {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.entries[id]; ok && e.Target != nil {
		return *e.Target
	}
	return c.defaultTarget
}

// List returns every entry in declaration order.
func (c *Catalog) List() []Entry {
	return c.filter(func(Entry) bool { return true })
}

// Actions returns the simple actions.
func (c *Catalog) Actions() []Entry {
	return c.filter(func(e Entry) bool { return e.Kind == KindAction })
}

// Challenges returns the gated challenges.
func (c *Catalog) Challenges() []Entry {
	return c.filter(func(e Entry) bool { return e.Kind == KindChallenge })
}

func (c *Catalog) filter(keep func(Entry) bool) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.order))
	for _, id := range c.order {
		if e := c.entries[id]; keep(e) {
			out = append(out, e)
		}
	}
	return out
}
