package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-logr/logr"

	"github.com/rl1809/stock-guard/internal/core/service"
)

type HTTPHandler struct {
	stockService *service.StockService
	log          logr.Logger
}

type InitStockHTTPRequest struct {
	Key      string `json:"key"`
	Quantity int64  `json:"quantity"`
}

type DecreaseHTTPRequest struct {
	RequestID string `json:"request_id"`
	Key       string `json:"key"`
	Amount    int64  `json:"amount"`
}

type StockHTTPResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Key      string `json:"key,omitempty"`
	Quantity *int64 `json:"quantity,omitempty"`
	Strategy string `json:"strategy,omitempty"`
}

func NewHTTPHandler(stockService *service.StockService, log logr.Logger) *HTTPHandler {
	return &HTTPHandler{stockService: stockService, log: log}
}

// Register mounts the handler's routes on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthCheck)
	mux.HandleFunc("/api/stock/init", h.InitStock)
	mux.HandleFunc("/api/stock/decrease", h.Decrease)
	mux.HandleFunc("/api/stock", h.GetStock)
}

func (h *HTTPHandler) InitStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req InitStockHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, StockHTTPResponse{Message: "invalid request body"})
		return
	}
	if req.Key == "" {
		writeJSON(w, http.StatusBadRequest, StockHTTPResponse{Message: "missing required fields"})
		return
	}

	if err := h.stockService.Initialize(r.Context(), req.Key, req.Quantity); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StockHTTPResponse{
		Success:  true,
		Message:  "stock initialized",
		Key:      req.Key,
		Quantity: &req.Quantity,
	})
}

func (h *HTTPHandler) Decrease(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req DecreaseHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, StockHTTPResponse{Message: "invalid request body"})
		return
	}
	if req.Key == "" {
		writeJSON(w, http.StatusBadRequest, StockHTTPResponse{Message: "missing required fields"})
		return
	}

	if err := h.stockService.Decrease(r.Context(), req.RequestID, req.Key, req.Amount); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StockHTTPResponse{
		Success:  true,
		Message:  "stock decreased",
		Key:      req.Key,
		Strategy: string(h.stockService.Strategy()),
	})
}

func (h *HTTPHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, StockHTTPResponse{Message: "missing key"})
		return
	}

	q, err := h.stockService.CurrentQuantity(r.Context(), key)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StockHTTPResponse{
		Success:  true,
		Message:  "ok",
		Key:      key,
		Quantity: &q,
		Strategy: string(h.stockService.Strategy()),
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	m := mapError(err)
	if m.status >= http.StatusInternalServerError {
		h.log.Error(err, "request failed", "status", m.status)
	}
	writeJSON(w, m.status, StockHTTPResponse{Message: m.message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
