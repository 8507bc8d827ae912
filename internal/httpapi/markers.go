package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (api *API) HandleCreateMarker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	in, ok := api.decodeInput(w, r)
	if !ok {
		return
	}
	m, err := api.svc.CreateMarker(ctx, callerFrom(ctx), in)
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}
	api.writeJSON(ctx, w, http.StatusCreated, m)
}

// HandleUpdateMarker replaces a marker. The body must carry page_id.
func (api *API) HandleUpdateMarker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	in, ok := api.decodeInput(w, r)
	if !ok {
		return
	}
	in["id"] = chi.URLParam(r, "id")
	if err := api.svc.UpdateMarker(ctx, callerFrom(ctx), in); err != nil {
		api.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *API) HandleDeleteMarker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	err := api.svc.DeleteMarker(ctx, callerFrom(ctx), chi.URLParam(r, "id"), r.URL.Query().Get("page_id"))
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *API) HandlePageMarkers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	markers, err := api.svc.PageMarkers(ctx, callerFrom(ctx), chi.URLParam(r, "id"))
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, map[string]any{"markers": markers})
}
