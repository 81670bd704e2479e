package ui

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pipedeck/pipedeck/internal/menu"
)

// Router builds the console's routing table from the menu. Views are looked
// up by name when a request arrives, so a route whose view is unknown fails
// only when it is visited.
func (h *Handler) Router() (http.Handler, error) {
	routes, err := menu.Routes(h.Menu.Items())
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.withBrowser)

	for _, route := range routes {
		if route.Path == menu.CatchAllPath {
			target := route.Redirect
			r.NotFound(func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, target, http.StatusFound)
			})
			continue
		}

		view := h.lazyView(route)
		if route.Path == menu.LoginPath {
			r.Get(route.Path, view)
			continue
		}
		r.With(h.requireSession).Get(route.Path, view)
	}

	r.Post(menu.LoginPath, h.HandleLogin)
	r.Group(func(r chi.Router) {
		r.Use(h.requireSession)
		r.Use(h.checkCSRF)
		r.Post("/logout", h.HandleLogout)
		r.Post("/pipeline/create", h.HandleCreate)
		r.Post("/pipeline/start", h.HandleStart)
		r.Post("/pipeline/pull", h.HandlePull)
		r.Post(menu.ParamsPath, h.HandleParams)
		r.Post(menu.VaultPath, h.HandleVault)
		r.Post("/menu/toggle", h.HandleMenuToggle)
		r.Get("/progress", h.ServeProgress)
	})

	return r, nil
}

func (h *Handler) lazyView(route menu.Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, ok := h.views[route.View]
		if !ok {
			h.Logger.Error("No view registered for route", "path", route.Path, "view", route.View)
			http.Error(w, fmt.Sprintf("view %q is not available", route.View), http.StatusInternalServerError)
			return
		}
		view(w, r)
	}
}
