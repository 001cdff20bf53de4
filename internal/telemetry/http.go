package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Umesh0245/smartfleet1/internal/cache"
	"github.com/Umesh0245/smartfleet1/internal/common/logger"
	"github.com/Umesh0245/smartfleet1/internal/common/middleware"
	"github.com/Umesh0245/smartfleet1/internal/common/server"
)

const (
	// maxPayloadBytes 单条遥测载荷上限；开放映射不能无限大。
	maxPayloadBytes = 1 << 20

	queryTimeout = 5 * time.Second
)

// HTTPHandler 遥测 HTTP 入口：摄入 + 查询。
// 摄入和 MQTT 消费走同一个 Reconciler.Ingest，两个渠道对相同载荷的成败必须一致。
type HTTPHandler struct {
	rec     *Reconciler
	store   Store
	cache   cache.Cache
	log     logger.Logger
	limiter middleware.RateLimiter // 只作用于摄入端点，可为 nil
}

// NewHTTPHandler 创建遥测 HTTP handler。
func NewHTTPHandler(rec *Reconciler, store Store, c cache.Cache, log logger.Logger, limiter middleware.RateLimiter) *HTTPHandler {
	if c == nil {
		c = cache.Noop{}
	}
	return &HTTPHandler{rec: rec, store: store, cache: c, log: log, limiter: limiter}
}

// Register 挂载路由。限流只套在摄入端点上，查询端点有缓存兜底、不限流。
func (h *HTTPHandler) Register(r *mux.Router) {
	ingest := server.Chain(http.HandlerFunc(h.handleIngest), server.RateLimit(h.limiter, h.log))

	// 两个摄入端点语义完全相同（/api/telemetry 兼容旧客户端）
	r.Handle("/api/telemetry/ingest", ingest).Methods(http.MethodPost)
	r.Handle("/api/telemetry", ingest).Methods(http.MethodPost)

	r.HandleFunc("/api/telemetry", h.handleListAll).Methods(http.MethodGet)
	r.HandleFunc("/api/telemetry/latest", h.handleListAll).Methods(http.MethodGet)
	r.HandleFunc("/api/telemetry/vehicle/{vehicleId}", h.handleGetByVehicle).Methods(http.MethodGet)
	r.HandleFunc("/api/fleet/metrics", h.handleFleetMetrics).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleIngest(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":  "error",
			"message": "failed to read request body",
		})
		return
	}
	if len(raw) > maxPayloadBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
			"status":  "error",
			"message": "payload too large",
		})
		return
	}

	res, err := h.rec.Ingest(r.Context(), raw, SourceHTTP)
	if err != nil {
		h.writeIngestError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"message":   "telemetry ingested",
		"vehicleId": res.VehicleID,
	})
}

// writeIngestError 按错误类别映射传输层状态码：
// 输入错误 -> 400（不要重试同样的载荷），持久层故障 -> 503（可整体重试）。
func (h *HTTPHandler) writeIngestError(w http.ResponseWriter, err error) {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":  "error",
			"message": decodeErr.Error(),
		})
		return
	}
	var storeErr *TransientStoreError
	if errors.As(err, &storeErr) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "error",
			"message": "telemetry store unavailable, retry later",
		})
		return
	}
	if h.log != nil {
		h.log.Errorf("ingest failed: %v", err)
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"status":  "error",
		"message": "internal error",
	})
}

func (h *HTTPHandler) handleListAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	snaps, err := h.store.ListAll(ctx)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if snaps == nil {
		snaps = []Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

// handleGetByVehicle 单车查询走读缓存：命中直接回，miss 回源后以 5 分钟 TTL 写入。
func (h *HTTPHandler) handleGetByVehicle(w http.ResponseWriter, r *http.Request) {
	vehicleID := mux.Vars(r)["vehicleId"]

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	key := cache.VehicleKey(vehicleID)
	if cached, ok := h.cache.Get(ctx, key); ok {
		writeRawJSON(w, http.StatusOK, cached)
		return
	}

	snap, err := h.store.GetByVehicleID(ctx, vehicleID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"status":  "error",
			"message": "vehicle telemetry not found",
		})
		return
	}

	body, err := json.Marshal(snap)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status":  "error",
			"message": "internal error",
		})
		return
	}
	h.cache.Set(ctx, key, body, cache.VehicleTTL)
	writeRawJSON(w, http.StatusOK, body)
}

// handleFleetMetrics 车队聚合指标，缓存 2 分钟。
func (h *HTTPHandler) handleFleetMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	if cached, ok := h.cache.Get(ctx, cache.FleetMetricsKey); ok {
		writeRawJSON(w, http.StatusOK, cached)
		return
	}

	snaps, err := h.store.ListAll(ctx)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	metrics := ComputeFleetMetrics(snaps)

	body, err := json.Marshal(metrics)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status":  "error",
			"message": "internal error",
		})
		return
	}
	h.cache.Set(ctx, cache.FleetMetricsKey, body, cache.FleetMetricsTTL)
	writeRawJSON(w, http.StatusOK, body)
}

func (h *HTTPHandler) writeStoreError(w http.ResponseWriter, err error) {
	var storeErr *TransientStoreError
	if errors.As(err, &storeErr) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "error",
			"message": "telemetry store unavailable, retry later",
		})
		return
	}
	if h.log != nil {
		h.log.Errorf("telemetry query failed: %v", err)
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"status":  "error",
		"message": "internal error",
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRawJSON(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
