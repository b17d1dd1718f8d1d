package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/fuelops/pkg/auth"
	"github.com/platinummonkey/fuelops/pkg/httputil"
	"github.com/platinummonkey/fuelops/pkg/lifecycle"
)

// StationHandlers serves the station endpoints under a path segment
type StationHandlers struct {
	service *lifecycle.Service
	segment string
}

// NewStationHandlers creates station handlers mounted at /{segment}
func NewStationHandlers(service *lifecycle.Service, segment string) *StationHandlers {
	return &StationHandlers{service: service, segment: segment}
}

// RegisterRoutes registers the station routes on router
func (h *StationHandlers) RegisterRoutes(router *mux.Router) {
	base := "/" + h.segment
	router.HandleFunc(base, h.list).Methods("GET")
	router.HandleFunc(base, h.create).Methods("POST")
	router.HandleFunc(base+"/{id}", h.update).Methods("PUT")
	router.HandleFunc(base+"/{id}", h.delete).Methods("DELETE")
}

func (h *StationHandlers) list(w http.ResponseWriter, r *http.Request) {
	stations, err := h.service.ListStations(r.Context(), auth.CallerFrom(r.Context()))
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, stations)
}

func (h *StationHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.StationInput
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	station, err := h.service.CreateStation(r.Context(), auth.CallerFrom(r.Context()), req)
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	httputil.WriteCreated(w, station)
}

func (h *StationHandlers) update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req lifecycle.StationUpdateInput
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	station, err := h.service.UpdateStation(r.Context(), auth.CallerFrom(r.Context()), id, req)
	if err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, station)
}

func (h *StationHandlers) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteStation(r.Context(), auth.CallerFrom(r.Context()), id); err != nil {
		writeLifecycleError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]bool{"success": true})
}
