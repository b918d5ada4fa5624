package pipeline

import (
	"encoding/json"
	"net/http"
)

const FallbackMessage = "Service temporarily unavailable. Please try again later."

// StatusClientClosedRequest é registrado quando o cliente desiste antes da resposta.
const StatusClientClosedRequest = 499

// ErrorBody é o envelope das rejeições do cliente (401, 429).
type ErrorBody struct {
	Error      string `json:"error"`
	RetryAfter *int64 `json:"retryAfter,omitempty"`
}

// FallbackBody é o envelope 503 do gateway.
type FallbackBody struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, header http.Header, body any) {
	h := w.Header()
	for name, values := range header {
		h[name] = append([]string(nil), values...)
	}
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}
