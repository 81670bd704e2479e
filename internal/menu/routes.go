package menu

import (
	"errors"
	"fmt"
)

// Paths of the views that are not reachable from the menu.
const (
	DefaultPath  = "/overview"
	DetailPath   = "/pipeline/detail"
	LogPath      = "/pipeline/log"
	ParamsPath   = "/pipeline/params"
	LoginPath    = "/login"
	CatchAllPath = "*"
)

// VaultPath is the menu path of the secret store view.
const VaultPath = "/vault"

var ErrRouteCollision = errors.New("fixed route collides with a menu route")

// Route is one navigable path.
type Route struct {
	Name string
	Path string
	View string
	// Redirect is set only on the catch-all route.
	Redirect string
}

// FixedRoutes are appended after the routes generated from the menu.
var FixedRoutes = []Route{
	{Name: "Pipeline Detail", Path: DetailPath, View: "pipeline/detail"},
	{Name: "Pipeline Logs", Path: LogPath, View: "pipeline/log"},
	{Name: "Pipeline Parameters", Path: ParamsPath, View: "pipeline/params"},
	{Name: "Login", Path: LoginPath, View: "login"},
}

// Project flattens the menu into routes, preserving top-level order. An entry
// with a path and subroutes contributes its subroutes instead of itself; one
// level of nesting is flattened. Entries without a path are dropped.
func Project(items []Entry) []Route {
	var routes []Route
	for _, item := range items {
		if item.Path == "" {
			continue
		}
		if len(item.Subroute) > 0 {
			for _, sub := range item.Subroute {
				if sub.Path == "" {
					continue
				}
				routes = append(routes, toRoute(sub))
			}
			continue
		}
		routes = append(routes, toRoute(item))
	}
	return routes
}

// Routes returns the full routing table: the projected menu, the fixed routes
// and a terminal catch-all redirecting to the overview. First match wins.
func Routes(items []Entry) ([]Route, error) {
	routes := Project(items)

	seen := make(map[string]bool, len(routes))
	for _, r := range routes {
		seen[r.Path] = true
	}
	for _, fixed := range FixedRoutes {
		if seen[fixed.Path] {
			return nil, fmt.Errorf("%w: %s", ErrRouteCollision, fixed.Path)
		}
		routes = append(routes, fixed)
	}

	return append(routes, Route{Name: "Not Found", Path: CatchAllPath, Redirect: DefaultPath}), nil
}

func toRoute(e Entry) Route {
	return Route{Name: e.Name, Path: e.Path, View: e.View}
}
