package inventory

import (
	"slices"
	"sync/atomic"
	"time"
)

// Catalog is the method/tool registry pair produced by one load pass.
type Catalog struct {
	Methods *MethodRegistry
	Tools   *ToolRegistry

	auditEvents []string
	sources     []string
	loadedAt    time.Time
}

// NewCatalog returns an empty, writable catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		Methods: NewMethodRegistry(),
		Tools:   NewToolRegistry(),
	}
}

// AddAuditEvents extends the audit-event catalog used for cross-reference checks.
func (c *Catalog) AddAuditEvents(names ...string) {
	for _, name := range names {
		if name == "" || slices.Contains(c.auditEvents, name) {
			continue
		}
		c.auditEvents = append(c.auditEvents, name)
	}
	slices.Sort(c.auditEvents)
}

// AuditEvents returns the declared audit-event names in sorted order.
func (c *Catalog) AuditEvents() []string { return slices.Clone(c.auditEvents) }

// HasAuditEvent reports whether the name is a declared audit event.
func (c *Catalog) HasAuditEvent(name string) bool {
	_, found := slices.BinarySearch(c.auditEvents, name)
	return found
}

// Sources returns the configuration locations the catalog was built from.
func (c *Catalog) Sources() []string { return slices.Clone(c.sources) }

// LoadedAt returns when the catalog was sealed.
func (c *Catalog) LoadedAt() time.Time { return c.loadedAt }

// Seal freezes both registries and records the provenance of the catalog.
func (c *Catalog) Seal(sources []string, at time.Time) {
	c.Methods.Seal()
	c.Tools.Seal()
	c.sources = slices.Clone(sources)
	c.loadedAt = at
}

// ToolsForMethod returns the tools bound to the named method, sorted by name.
func (c *Catalog) ToolsForMethod(method string) []ToolDefinition {
	out := make([]ToolDefinition, 0)
	for _, t := range c.Tools.All() {
		if t.Method == method {
			out = append(out, t)
		}
	}
	return out
}

// Holder publishes the current catalog to concurrent readers. A reload builds
// a new catalog and swaps it in; a published catalog is never mutated.
type Holder struct {
	current atomic.Pointer[Catalog]
}

// NewHolder returns a holder publishing cat, which may be nil.
func NewHolder(cat *Catalog) *Holder {
	h := &Holder{}
	if cat != nil {
		h.current.Store(cat)
	}
	return h
}

// Load returns the current catalog, or nil before the first publish.
func (h *Holder) Load() *Catalog { return h.current.Load() }

// Swap publishes cat and returns the catalog it replaced.
func (h *Holder) Swap(cat *Catalog) *Catalog { return h.current.Swap(cat) }
