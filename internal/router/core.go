package router

import (
	"net/http"

	"go.uber.org/fx"

	"github.com/go-chi/chi/v5"
)

// Handler is an HTTP endpoint that mounts itself on the shared mux.
type Handler interface {
	RegisterRoute(r *chi.Mux)
	Handle(w http.ResponseWriter, r *http.Request)
}

// AsRoute provides constructor's result as a Handler in the "handlers"
// group collected by NewMux.
func AsRoute(constructor any) any {
	return fx.Annotate(
		constructor,
		fx.As(new(Handler)),
		fx.ResultTags(`group:"handlers"`),
	)
}
