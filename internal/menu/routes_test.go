package menu

import (
	"errors"
	"testing"
)

func paths(routes []Route) []string {
	out := make([]string, len(routes))
	for i, r := range routes {
		out[i] = r.Path
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestProject(t *testing.T) {
	tests := []struct {
		name  string
		items []Entry
		want  []string
	}{
		{
			name: "flat, nested and pathless entries",
			items: []Entry{
				{Path: "/a"},
				{Path: "/b", Subroute: []Entry{{Path: "/b/1"}, {Path: "/b/2"}}},
				{Name: "no path"},
			},
			want: []string{"/a", "/b/1", "/b/2"},
		},
		{
			name:  "empty subroute keeps the parent",
			items: []Entry{{Path: "/p", Subroute: []Entry{}}},
			want:  []string{"/p"},
		},
		{
			name:  "pathless parent with subroutes is dropped",
			items: []Entry{{Subroute: []Entry{{Path: "/orphan"}}}},
			want:  nil,
		},
		{
			name: "grandchildren are not flattened",
			items: []Entry{
				{Path: "/x", Subroute: []Entry{{Path: "/x/1", Subroute: []Entry{{Path: "/x/1/a"}}}}},
			},
			want: []string{"/x/1"},
		},
		{
			name:  "empty menu",
			items: nil,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := paths(Project(tt.items))
			if !equal(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRoutesAppendsFixedAndCatchAll(t *testing.T) {
	routes, err := Routes(Default().Items())
	if err != nil {
		t.Fatalf("Routes: %v", err)
	}

	want := []string{"/overview", "/pipeline/create", "/settings", VaultPath, DetailPath, LogPath, ParamsPath, LoginPath, CatchAllPath}
	if got := paths(routes); !equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	last := routes[len(routes)-1]
	if last.Redirect != DefaultPath {
		t.Fatalf("catch-all must redirect to %s, got %q", DefaultPath, last.Redirect)
	}
}

func TestRoutesRejectsCollision(t *testing.T) {
	_, err := Routes([]Entry{{Path: DetailPath}})
	if !errors.Is(err, ErrRouteCollision) {
		t.Fatalf("expected ErrRouteCollision, got %v", err)
	}
}

func TestExpand(t *testing.T) {
	m := Default()

	if m.Expand(0, true) {
		t.Fatalf("overview is not expandable")
	}
	if m.Expand(99, true) || m.Expand(-1, true) {
		t.Fatalf("out of range index must be rejected")
	}
	if !m.ExpandByName("Pipelines", true) {
		t.Fatalf("expected pipelines to expand")
	}
	if !m.Items()[1].Meta.Expanded {
		t.Fatalf("expected expanded flag to be set")
	}
	if !m.Toggle("Pipelines") || m.Items()[1].Meta.Expanded {
		t.Fatalf("expected toggle to collapse pipelines")
	}
}

func TestItemsReturnsSnapshot(t *testing.T) {
	m := Default()
	items := m.Items()
	items[1].Subroute[0].Path = "/changed"

	if m.Items()[1].Subroute[0].Path != "/pipeline/create" {
		t.Fatalf("mutating a snapshot must not change the menu")
	}
}
