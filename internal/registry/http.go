package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Umesh0245/smartfleet1/internal/common/logger"
)

const requestTimeout = 5 * time.Second

// HTTPHandler 车辆登记 HTTP 入口。
type HTTPHandler struct {
	svc *Service
	log logger.Logger
}

// NewHTTPHandler 创建登记 HTTP handler。
func NewHTTPHandler(svc *Service, log logger.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, log: log}
}

// Register 挂载路由。
func (h *HTTPHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/vehicles", h.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/api/vehicles", h.handleListAll).Methods(http.MethodGet)
	r.HandleFunc("/api/vehicles/active", h.handleListActive).Methods(http.MethodGet)
	r.HandleFunc("/api/vehicles/search", h.handleSearchByDriver).Methods(http.MethodGet)
	r.HandleFunc("/api/vehicles/status/{status}", h.handleListByStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/vehicles/analytics/count/active", h.handleCountActive).Methods(http.MethodGet)
	r.HandleFunc("/api/vehicles/{vehicleId}", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/api/vehicles/{vehicleId}", h.handleUpdate).Methods(http.MethodPut)
	r.HandleFunc("/api/vehicles/{vehicleId}", h.handleDelete).Methods(http.MethodDelete)
}

func (h *HTTPHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var v Vehicle
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		h.respond(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "invalid request body",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	created, err := h.svc.Create(ctx, &v)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "vehicle registered",
		"data":    created,
	})
}

func (h *HTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	v, err := h.svc.Get(ctx, mux.Vars(r)["vehicleId"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{"success": true, "data": v})
}

func (h *HTTPHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DriverName *string `json:"driverName"`
		Status     *Status `json:"status"`
		Make       *string `json:"make"`
		Model      *string `json:"model"`
		Year       *int    `json:"year"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respond(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "invalid request body",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	v, err := h.svc.Update(ctx, mux.Vars(r)["vehicleId"], UpdateVehicleInput{
		DriverName: body.DriverName,
		Status:     body.Status,
		Make:       body.Make,
		Model:      body.Model,
		Year:       body.Year,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "vehicle updated",
		"data":    v,
	})
}

func (h *HTTPHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := h.svc.Delete(ctx, mux.Vars(r)["vehicleId"]); err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "vehicle deleted",
	})
}

func (h *HTTPHandler) handleListAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	vehicles, err := h.svc.ListAll(ctx)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondList(w, vehicles)
}

func (h *HTTPHandler) handleListActive(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	vehicles, err := h.svc.ListByStatus(ctx, StatusActive)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondList(w, vehicles)
}

func (h *HTTPHandler) handleListByStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	vehicles, err := h.svc.ListByStatus(ctx, Status(mux.Vars(r)["status"]))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondList(w, vehicles)
}

func (h *HTTPHandler) handleSearchByDriver(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	vehicles, err := h.svc.SearchByDriver(ctx, r.URL.Query().Get("driverName"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondList(w, vehicles)
}

func (h *HTTPHandler) handleCountActive(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	count, err := h.svc.CountActive(ctx)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]any{"activeVehicles": count},
	})
}

func (h *HTTPHandler) respondList(w http.ResponseWriter, vehicles []Vehicle) {
	if vehicles == nil {
		vehicles = []Vehicle{}
	}
	h.respond(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    vehicles,
		"count":   len(vehicles),
	})
}

// respondError 业务错误映射：冲突 -> 409，不存在 -> 404，其余输入错误 -> 400，
// 存储故障 -> 500。
func (h *HTTPHandler) respondError(w http.ResponseWriter, err error) {
	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) {
		h.respond(w, http.StatusConflict, map[string]any{
			"success": false,
			"message": conflictErr.Error(),
			"field":   conflictErr.Field,
		})
		return
	}
	var notFoundErr *NotFoundError
	if errors.As(err, &notFoundErr) {
		h.respond(w, http.StatusNotFound, map[string]any{
			"success": false,
			"message": notFoundErr.Error(),
		})
		return
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		h.respond(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": validationErr.Error(),
		})
		return
	}
	if h.log != nil {
		h.log.Errorf("registry request failed: %v", err)
	}
	h.respond(w, http.StatusInternalServerError, map[string]any{
		"success": false,
		"message": "internal error",
	})
}

func (h *HTTPHandler) respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
