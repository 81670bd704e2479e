package menu

import "sync"

// Meta carries display data of a menu entry.
type Meta struct {
	Icon     string
	Label    string
	Expanded bool
	// Expandable marks entries whose Expanded flag may be toggled.
	Expandable bool
}

// Entry is one item of the navigation menu. View names the page rendered for
// the entry's path; it is resolved lazily by the web console.
type Entry struct {
	Name     string
	Path     string
	Meta     Meta
	View     string
	Subroute []Entry
}

// Menu is the ordered, static navigation model. Only the Expanded flags change.
type Menu struct {
	mu    sync.RWMutex
	items []Entry
}

// New creates a menu from the given entries.
func New(items []Entry) *Menu {
	return &Menu{items: cloneEntries(items)}
}

// Default returns the console's navigation menu.
func Default() *Menu {
	return New([]Entry{
		{
			Name: "Overview",
			Path: "/overview",
			Meta: Meta{Icon: "fa-th"},
			View: "overview",
		},
		{
			Name: "Pipelines",
			Path: "/pipeline/create",
			Meta: Meta{Icon: "fa-battery-three-quarters", Expandable: true},
			View: "pipeline/create",
			Subroute: []Entry{
				{
					Name: "Create Pipeline",
					Path: "/pipeline/create",
					Meta: Meta{Label: "Create"},
					View: "pipeline/create",
				},
			},
		},
		{
			Name: "Settings",
			Path: "/settings",
			Meta: Meta{Icon: "fa-cogs"},
			View: "settings",
		},
		{
			Name: "Vault",
			Path: VaultPath,
			Meta: Meta{Icon: "fa-lock"},
			View: "vault",
		},
	})
}

// Items returns a snapshot of the menu entries.
func (m *Menu) Items() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneEntries(m.items)
}

// Expand sets the expanded flag of the top-level entry at index. It reports
// false when the index is out of range or the entry is not expandable.
func (m *Menu) Expand(index int, expanded bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.items) || !m.items[index].Meta.Expandable {
		return false
	}
	m.items[index].Meta.Expanded = expanded
	return true
}

// ExpandByName is Expand for callers that only know the entry name.
func (m *Menu) ExpandByName(name string, expanded bool) bool {
	m.mu.RLock()
	index := -1
	for i, item := range m.items {
		if item.Name == name {
			index = i
			break
		}
	}
	m.mu.RUnlock()
	return m.Expand(index, expanded)
}

// Toggle flips the expanded flag of the named entry.
func (m *Menu) Toggle(name string) bool {
	m.mu.RLock()
	expanded := false
	for _, item := range m.items {
		if item.Name == name {
			expanded = item.Meta.Expanded
			break
		}
	}
	m.mu.RUnlock()
	return m.ExpandByName(name, !expanded)
}

func cloneEntries(items []Entry) []Entry {
	if items == nil {
		return nil
	}
	out := make([]Entry, len(items))
	for i, item := range items {
		out[i] = item
		out[i].Subroute = cloneEntries(item.Subroute)
	}
	return out
}
