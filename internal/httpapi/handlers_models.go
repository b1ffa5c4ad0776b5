package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"omnid/pkg/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *server) modelObject(m types.Model) types.ModelObject {
	return types.ModelObject{
		ID:        m.ID,
		Object:    "model",
		Created:   m.ModifiedUnix,
		OwnedBy:   "omnid",
		Loaded:    s.Models.Loaded(m.ID),
		Family:    m.Family,
		Quant:     m.Quant,
		SizeBytes: m.SizeBytes,
	}
}

func (s *server) modelList(models []types.Model) types.ModelList {
	out := types.ModelList{Object: "list", Data: make([]types.ModelObject, 0, len(models))}
	for _, m := range models {
		out.Data = append(out.Data, s.modelObject(m))
	}
	return out
}

// modelID returns the wildcard part of /models/*; ids may contain slashes.
func modelID(r *http.Request) string {
	return strings.Trim(chi.URLParam(r, "*"), "/")
}

// listModels godoc
// @Summary  List models
// @Tags     models
// @Produce  json
// @Success  200  {object}  types.ModelList
// @Router   /v1/models [get]
func (s *server) listModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.modelList(s.Models.ListModels()))
}

// rescanModels godoc
// @Summary  Rescan the models directory
// @Tags     models
// @Produce  json
// @Success  200  {object}  types.ModelList
// @Failure  500  {object}  types.ErrorResponse
// @Router   /v1/models/rescan [get]
func (s *server) rescanModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.Models.Rescan()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	zerolog.Ctx(r.Context()).Info().Int("models", len(models)).Msg("registry rescanned")
	writeJSON(w, http.StatusOK, s.modelList(models))
}

// getModel godoc
// @Summary  Get one model
// @Tags     models
// @Produce  json
// @Param    id   path      string  true  "Model id (may contain slashes)"
// @Success  200  {object}  types.ModelObject
// @Failure  404  {object}  types.ErrorResponse
// @Router   /v1/models/{id} [get]
func (s *server) getModel(w http.ResponseWriter, r *http.Request) {
	id := modelID(r)
	m, ok := s.Models.GetModel(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "model not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, s.modelObject(m))
}

// deleteModel godoc
// @Summary  Unload a model and delete its weights
// @Tags     models
// @Produce  json
// @Param    id   path      string  true  "Model id (may contain slashes)"
// @Success  200  {object}  types.ModelDeletion
// @Failure  404  {object}  types.ErrorResponse
// @Failure  429  {object}  types.ErrorResponse
// @Router   /v1/models/{id} [delete]
func (s *server) deleteModel(w http.ResponseWriter, r *http.Request) {
	id := modelID(r)
	if err := s.Models.Delete(id); err != nil {
		writeServiceError(w, err)
		return
	}
	zerolog.Ctx(r.Context()).Info().Str("model", id).Msg("model deleted")
	writeJSON(w, http.StatusOK, types.ModelDeletion{ID: id, Object: "model", Deleted: true})
}

// startDownload godoc
// @Summary  Download a model in the background
// @Tags     models
// @Accept   json
// @Produce  json
// @Param    request  body      types.ModelDownloadRequest  true  "Repository to fetch"
// @Success  200      {object}  types.ModelDownloadResponse
// @Failure  400      {object}  types.ErrorResponse
// @Failure  503      {object}  types.ErrorResponse
// @Router   /v1/models/load [post]
func (s *server) startDownload(w http.ResponseWriter, r *http.Request) {
	if s.Downloads == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "model downloads are disabled")
		return
	}
	var req types.ModelDownloadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	task, err := s.Downloads.Start(r.Context(), req.Model)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ModelDownloadResponse{ID: task.ID, Status: task.Status})
}

// downloadStatus godoc
// @Summary  Get the status of a download task
// @Tags     models
// @Produce  json
// @Param    taskID  path      string  true  "Task id"
// @Success  200     {object}  types.ModelDownloadStatus
// @Router   /v1/models/load/{taskID} [get]
func (s *server) downloadStatus(w http.ResponseWriter, r *http.Request) {
	if s.Downloads == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "model downloads are disabled")
		return
	}
	st, err := s.Downloads.Status(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// status godoc
// @Summary  Server status
// @Tags     ops
// @Produce  json
// @Success  200  {object}  types.StatusResponse
// @Router   /status [get]
func (s *server) status(w http.ResponseWriter, r *http.Request) {
	st := s.Models.Status()
	if s.Speech != nil {
		st.SpeechPools = s.Speech.Status()
	}
	writeJSON(w, http.StatusOK, st)
}
