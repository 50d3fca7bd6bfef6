package effects

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateEffect = errors.New("effects: duplicate effect id")
	ErrInvalidTemplate = errors.New("effects: invalid template")
)

// Catalog is the registry of effect templates. It is filled once at startup
// and only read afterwards.
type Catalog struct {
	templates map[string]*Template
	order     []string
}

// NewCatalog creates a catalog holding templates.
func NewCatalog(templates ...*Template) (*Catalog, error) {
	c := &Catalog{templates: make(map[string]*Template)}
	for _, t := range templates {
		if err := c.Register(t); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds a template, resolving its trigger table up front.
func (c *Catalog) Register(t *Template) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidTemplate)
	}
	if t.Kind != Passive && t.Kind != Consumable {
		return fmt.Errorf("%w: %s has kind %q", ErrInvalidTemplate, t.ID, t.Kind)
	}
	if _, exists := c.templates[t.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEffect, t.ID)
	}
	if t.Execute != nil && !t.Trigger.Known() {
		return fmt.Errorf("%w: %s uses unknown trigger %q", ErrInvalidTemplate, t.ID, t.Trigger)
	}
	for trig := range t.Hooks {
		if !trig.Known() {
			return fmt.Errorf("%w: %s hooks unknown trigger %q", ErrInvalidTemplate, t.ID, trig)
		}
	}
	c.templates[t.ID] = t
	c.order = append(c.order, t.ID)
	return nil
}

// Lookup returns the template registered under id.
func (c *Catalog) Lookup(id string) (*Template, bool) {
	t, ok := c.templates[id]
	return t, ok
}

// Instantiate rebuilds an owned instance from saved identity. It returns
// false when the id is no longer in the catalog.
func (c *Catalog) Instantiate(id string, quantity int, modifier float64) (*Instance, bool) {
	t, ok := c.templates[id]
	if !ok {
		return nil, false
	}
	inst := NewInstance(t)
	if quantity > 0 {
		inst.Quantity = quantity
	}
	inst.Modifier = modifier
	return inst, true
}

// Passives lists passive templates in registration order.
func (c *Catalog) Passives() []*Template {
	return c.byKind(Passive)
}

// Consumables lists consumable templates in registration order.
func (c *Catalog) Consumables() []*Template {
	return c.byKind(Consumable)
}

// Len returns the number of registered templates.
func (c *Catalog) Len() int {
	return len(c.order)
}

func (c *Catalog) byKind(k Kind) []*Template {
	var out []*Template
	for _, id := range c.order {
		if t := c.templates[id]; t.Kind == k {
			out = append(out, t)
		}
	}
	return out
}
