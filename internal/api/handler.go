package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/alexivanou/guide-offline/internal/cachetier"
	"github.com/alexivanou/guide-offline/internal/model"
	"github.com/alexivanou/guide-offline/internal/service"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxRequestBytes = 128 << 20

// CacheController is the part of the cache tier manager exposed to the UI
type CacheController interface {
	State() cachetier.State
	HandleMessage(ctx context.Context, msg cachetier.Message) error
}

// Handler handles HTTP requests
type Handler struct {
	service service.ServiceInterface
	cache   CacheController
	logger  *zap.Logger
}

// NewHandler creates a new handler instance. cache may be nil when the cache tier is disabled.
func NewHandler(service service.ServiceInterface, cache CacheController, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, cache: cache, logger: logger}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type exportRequest struct {
	Password string `json:"password"`
}

type exportResponse struct {
	Payload string `json:"payload"`
}

type importRequest struct {
	Payload  string `json:"payload"`
	Password string `json:"password"`
}

type audioPrefetchRequest struct {
	Requests []model.AudioRequest `json:"requests"`
}

type cacheStateResponse struct {
	State string `json:"state"`
}

// statusFor maps distinguished errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrStorageQuotaExceeded):
		return http.StatusInsufficientStorage
	case errors.Is(err, model.ErrDecryptionFailure):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrInvalidPackage), errors.Is(err, model.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrNetworkFailure):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Error encoding response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		h.logger.Warn("Request failed", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error(), Code: model.ErrorCode(err)})
}

func (h *Handler) badRequest(w http.ResponseWriter, message string) {
	h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: message, Code: "INVALID_REQUEST"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.badRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// GetStatus handles GET /api/v1/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Status(r.Context()))
}

// GetCities handles GET /api/v1/cities
func (h *Handler) GetCities(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.GetCities(r.Context()))
}

// GetCity handles GET /api/v1/cities/{id}
func (h *Handler) GetCity(w http.ResponseWriter, r *http.Request) {
	city := h.service.GetCity(r.Context(), mux.Vars(r)["id"])
	if city == nil {
		h.writeError(w, r, model.ErrNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, city)
}

// GetLandmarks handles GET /api/v1/landmarks
func (h *Handler) GetLandmarks(w http.ResponseWriter, r *http.Request) {
	landmarks := h.service.GetLandmarks(r.Context(), r.URL.Query().Get("cityId"))

	lang := r.URL.Query().Get("lang")
	if lang == "" {
		h.writeJSON(w, http.StatusOK, landmarks)
		return
	}
	for i := range landmarks {
		text := landmarks[i].Text(lang)
		landmarks[i].Name = text.Name
		landmarks[i].Narration = text.Narration
		landmarks[i].Description = text.Description
	}
	h.writeJSON(w, http.StatusOK, landmarks)
}

// GetLandmark handles GET /api/v1/landmarks/{id}
func (h *Handler) GetLandmark(w http.ResponseWriter, r *http.Request) {
	landmark := h.service.GetLandmark(r.Context(), mux.Vars(r)["id"])
	if landmark == nil {
		h.writeError(w, r, model.ErrNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, landmark)
}

// ListPackages handles GET /api/v1/packages
func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	listing, err := h.service.ListAvailablePackages(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listing)
}

// ListDownloaded handles GET /api/v1/packages/downloaded
func (h *Handler) ListDownloaded(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.DownloadedCities(r.Context()))
}

// DownloadCity handles POST /api/v1/packages/{cityId}
func (h *Handler) DownloadCity(w http.ResponseWriter, r *http.Request) {
	cityID := mux.Vars(r)["cityId"]
	if err := h.service.DownloadCity(r.Context(), cityID); err != nil {
		h.writeError(w, r, err)
		return
	}
	progress, _ := h.service.Progress(cityID)
	h.writeJSON(w, http.StatusOK, progress)
}

// GetProgress handles GET /api/v1/packages/{cityId}/progress
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	progress, ok := h.service.Progress(mux.Vars(r)["cityId"])
	if !ok {
		h.writeError(w, r, model.ErrNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, progress)
}

// DeleteCity handles DELETE /api/v1/packages/{cityId}
func (h *Handler) DeleteCity(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCity(r.Context(), mux.Vars(r)["cityId"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecordVisit handles POST /api/v1/visited
func (h *Handler) RecordVisit(w http.ResponseWriter, r *http.Request) {
	var req model.VisitRequest
	if !h.decode(w, r, &req) {
		return
	}
	receipt, err := h.service.RecordVisit(r.Context(), req.LandmarkID, req.SessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if receipt.Queued {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, receipt)
}

// SyncVisits handles POST /api/v1/sync
func (h *Handler) SyncVisits(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.SyncQueuedVisits(r.Context())
	switch {
	case errors.Is(err, model.ErrPartialSyncFailure):
		h.writeJSON(w, http.StatusMultiStatus, result)
	case err != nil:
		h.writeError(w, r, err)
	default:
		h.writeJSON(w, http.StatusOK, result)
	}
}

// GetStorage handles GET /api/v1/storage
func (h *Handler) GetStorage(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.StorageInfo(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// ClearStorage handles DELETE /api/v1/storage
func (h *Handler) ClearStorage(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearAllOfflineData(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PrefetchAudio handles POST /api/v1/audio
func (h *Handler) PrefetchAudio(w http.ResponseWriter, r *http.Request) {
	var req audioPrefetchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Requests) == 0 {
		h.badRequest(w, "at least one audio request is required")
		return
	}
	result, err := h.service.PrefetchAudio(r.Context(), req.Requests)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// GetAudio handles GET /api/v1/audio/{landmarkId}?lang=
func (h *Handler) GetAudio(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = "en"
	}
	asset, err := h.service.GetAudio(r.Context(), mux.Vars(r)["landmarkId"], lang)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("ETag", `"`+asset.Checksum+`"`)
	if _, err := w.Write(asset.Audio); err != nil {
		h.logger.Warn("Error writing audio", zap.Error(err))
	}
}

// ListAudio handles GET /api/v1/audio?cityId=
func (h *Handler) ListAudio(w http.ResponseWriter, r *http.Request) {
	cityID := r.URL.Query().Get("cityId")
	if cityID == "" {
		h.badRequest(w, "query parameter 'cityId' is required")
		return
	}
	assets, err := h.service.ListAudio(r.Context(), cityID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, assets)
}

// ClearAudio handles DELETE /api/v1/audio
func (h *Handler) ClearAudio(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearAudio(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportBundle handles POST /api/v1/export
func (h *Handler) ExportBundle(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !h.decode(w, r, &req) {
		return
	}
	payload, err := h.service.ExportBundle(r.Context(), req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, exportResponse{Payload: payload})
}

// ImportBundle handles POST /api/v1/import
func (h *Handler) ImportBundle(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Payload == "" || req.Password == "" {
		h.badRequest(w, "payload and password are required")
		return
	}
	result, err := h.service.ImportBundle(r.Context(), req.Payload, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// SkipWaiting handles POST /api/v1/cache/skip-waiting
func (h *Handler) SkipWaiting(w http.ResponseWriter, r *http.Request) {
	h.sendCacheMessage(w, r, cachetier.MessageSkipWaiting)
}

// ClearCache handles POST /api/v1/cache/clear
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.sendCacheMessage(w, r, cachetier.MessageClearCache)
}

func (h *Handler) sendCacheMessage(w http.ResponseWriter, r *http.Request, msg cachetier.Message) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "cache tier disabled", Code: "CACHE_DISABLED"})
		return
	}
	if err := h.cache.HandleMessage(r.Context(), msg); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cacheStateResponse{State: h.cache.State().String()})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
