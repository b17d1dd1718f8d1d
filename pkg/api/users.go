package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/fuelops/pkg/auth"
	"github.com/platinummonkey/fuelops/pkg/httputil"
	"github.com/platinummonkey/fuelops/pkg/lifecycle"
)

// UserHandlers serves the lifecycle endpoints of one user kind
type UserHandlers struct {
	service *lifecycle.Service
	kind    lifecycle.Kind
}

// NewUserHandlers creates handlers for kind
func NewUserHandlers(service *lifecycle.Service, kind lifecycle.Kind) *UserHandlers {
	return &UserHandlers{service: service, kind: kind}
}

// RegisterRoutes registers /{kind} and /{kind}/{id} on router
func (h *UserHandlers) RegisterRoutes(router *mux.Router) {
	base := "/" + h.kind.Name
	router.HandleFunc(base, h.list).Methods("GET")
	router.HandleFunc(base, h.create).Methods("POST")
	router.HandleFunc(base+"/{id}", h.update).Methods("PUT")
	router.HandleFunc(base+"/{id}", h.delete).Methods("DELETE")
}

// list handles GET /api/{kind}
func (h *UserHandlers) list(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context(), auth.CallerFrom(r.Context()), h.kind)
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, users)
}

// create handles POST /api/{kind}
func (h *UserHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.CreateUserInput
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.service.CreateUser(r.Context(), auth.CallerFrom(r.Context()), h.kind, req)
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	httputil.WriteCreated(w, user)
}

// update handles PUT /api/{kind}/{id}
func (h *UserHandlers) update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req lifecycle.UpdateUserInput
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.service.UpdateUser(r.Context(), auth.CallerFrom(r.Context()), h.kind, id, req)
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// delete handles DELETE /api/{kind}/{id}
func (h *UserHandlers) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteUser(r.Context(), auth.CallerFrom(r.Context()), h.kind, id); err != nil {
		writeLifecycleError(w, r, err)
		return
	}

	if h.kind.DeleteMessage != "" {
		httputil.WriteSuccess(w, map[string]string{"message": h.kind.DeleteMessage})
		return
	}
	httputil.WriteSuccess(w, map[string]bool{"success": true})
}
