package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/snrmed/family-display-backend3/internal/apperr"
	"github.com/snrmed/family-display-backend3/internal/models"
)

// defaultDevice is used when a request names no device, matching the single
// shared-display installation this system grew out of.
const defaultDevice = "familydisplay"

// maxLayoutBytes caps an uploaded layout document.
const maxLayoutBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// deviceParam returns the device query parameter, defaulted.
func deviceParam(r *http.Request) string {
	if d := r.URL.Query().Get("device"); d != "" {
		return d
	}
	return defaultDevice
}

// RenderData handles GET /render-data. It aggregates provider data for the
// device without invoking the render engine (designer live preview).
func (h *Handler) RenderData(w http.ResponseWriter, r *http.Request) {
	device := deviceParam(r)
	data, err := h.svc.Renderer.RenderData(r.Context(), device)
	if err != nil {
		slog.Error("render data failed", slog.String("device", device), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("render data unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// Frame handles GET /frame with conditional-GET semantics. The latest
// pointer is re-read on every call; 304 is returned iff the caller's
// If-None-Match equals the current content fingerprint.
func (h *Handler) Frame(w http.ResponseWriter, r *http.Request) {
	device := deviceParam(r)
	data, etag, err := h.svc.Renderer.Latest(device)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("no frame rendered for device"))
			return
		}
		slog.Error("frame read failed", slog.String("device", device), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("store unavailable"))
		return
	}

	h.svc.Renderer.MarkSeen(device, etag)

	w.Header().Set("ETag", etag)
	if matchesETag(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// matchesETag reports whether an If-None-Match header value matches etag.
// Quotes and weak prefixes are tolerated; "*" matches any representation.
func matchesETag(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}
	want := strings.Trim(etag, `"`)
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if strings.Trim(candidate, `"`) == want {
			return true
		}
	}
	return false
}

// GetLayout handles GET /layouts/{device}. No preset fallback: absent means
// 404, mirroring what the designer needs to know.
func (h *Handler) GetLayout(w http.ResponseWriter, r *http.Request) {
	device := chi.URLParam(r, "device")
	layout, err := h.svc.Layouts.Stored(device)
	if err != nil {
		if errors.Is(err, apperr.ErrLayoutNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("layout not found"))
			return
		}
		slog.Error("layout read failed", slog.String("device", device), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("store unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, layout)
}

// PutLayout handles PUT /admin/layouts/{device}. The device is created
// implicitly on its first layout write.
func (h *Handler) PutLayout(w http.ResponseWriter, r *http.Request) {
	device := chi.URLParam(r, "device")
	r.Body = http.MaxBytesReader(w, r.Body, maxLayoutBytes)

	var layout models.Layout
	if err := json.NewDecoder(r.Body).Decode(&layout); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if len(layout.Elements) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("layout must contain elements"))
		return
	}

	if err := h.svc.Layouts.Put(device, &layout); err != nil {
		slog.Error("layout write failed", slog.String("device", device), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("store unavailable"))
		return
	}
	h.svc.EnsureDevice(device)
	writeJSON(w, http.StatusOK, LayoutSaved{OK: true, Device: device})
}

// RenderNow handles POST /admin/render-now: a synchronous render trigger.
func (h *Handler) RenderNow(w http.ResponseWriter, r *http.Request) {
	device := deviceParam(r)
	frame, err := h.svc.Renderer.Render(r.Context(), device)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrLayoutNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("layout not found"))
		case errors.Is(err, apperr.ErrRenderEngine):
			slog.Error("render engine failed", slog.String("device", device), slog.String("error", err.Error()))
			writeJSON(w, http.StatusBadGateway, errorBody("render engine failure"))
		case errors.Is(err, apperr.ErrStoreUnavailable):
			slog.Error("render store failed", slog.String("device", device), slog.String("error", err.Error()))
			writeJSON(w, http.StatusBadGateway, errorBody("store unavailable"))
		default:
			slog.Error("render failed", slog.String("device", device), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, frame)
}

// Prefetch handles POST /admin/prefetch. Per-theme failures are carried in
// the report, not surfaced as an HTTP error.
func (h *Handler) Prefetch(w http.ResponseWriter, r *http.Request) {
	var req PrefetchRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return
		}
	}
	themes := req.Themes
	if len(themes) == 0 {
		themes = h.svc.Themes
	}
	perTheme := req.PerThemeCount
	if perTheme <= 0 {
		perTheme = h.svc.PerThemeCount
	}

	report := h.svc.Prefetch.Prefetch(r.Context(), themes, perTheme)
	writeJSON(w, http.StatusOK, report)
}

// Devices handles GET /admin/devices.
func (h *Handler) Devices(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.Registry.List()
	if err != nil {
		slog.Error("device list failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, DeviceListResponse{Devices: rows})
}
