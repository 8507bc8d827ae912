package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (api *API) HandleTimelines(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tls, err := api.svc.Timelines(ctx, callerFrom(ctx))
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, map[string]any{"timelines": tls})
}

func (api *API) HandleCreateTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	in, ok := api.decodeInput(w, r)
	if !ok {
		return
	}
	tl, err := api.svc.CreateTimeline(ctx, callerFrom(ctx), in)
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}
	api.writeJSON(ctx, w, http.StatusCreated, tl)
}

func (api *API) HandleUpdateTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	in, ok := api.decodeInput(w, r)
	if !ok {
		return
	}
	in["id"] = chi.URLParam(r, "id")
	if err := api.svc.UpdateTimeline(ctx, callerFrom(ctx), in); err != nil {
		api.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *API) HandleDeleteTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := api.svc.DeleteTimeline(ctx, callerFrom(ctx), chi.URLParam(r, "id")); err != nil {
		api.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pageTimelines struct {
	TimelineIDs []string `json:"timeline_ids"`
}

func (api *API) HandlePageTimelines(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ids, err := api.svc.PageTimelines(ctx, callerFrom(ctx), chi.URLParam(r, "id"))
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	api.writeJSON(ctx, w, http.StatusOK, pageTimelines{TimelineIDs: ids})
}

// HandleAssignPageTimelines replaces the set of timelines a page belongs to.
func (api *API) HandleAssignPageTimelines(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body pageTimelines
	if !api.decodeBody(w, r, &body) {
		return
	}
	if err := api.svc.AssignPageTimelines(ctx, callerFrom(ctx), chi.URLParam(r, "id"), body.TimelineIDs); err != nil {
		api.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
