package rest

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/liveexchange/auction-backend/internal/domain/errors"
)

// Response is the envelope every endpoint returns.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

// Page wraps a paginated listing.
type Page struct {
	Items    interface{} `json:"items"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Total    int64       `json:"total"`
}

func writeJSON(w http.ResponseWriter, statusCode int, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeSuccess writes a positive envelope.
func writeSuccess(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	writeJSON(w, statusCode, &Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// writeError maps an application error onto the envelope and status
// code. Anything unclassified becomes an opaque 500.
func writeError(w http.ResponseWriter, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		slog.Error("unclassified handler error", "error", err)
		writeJSON(w, http.StatusInternalServerError, &Response{
			Success: false,
			Message: "internal server error",
		})
		return
	}

	if appErr.Type == errors.ErrorTypeInternal {
		slog.Error("internal error", "code", appErr.Code, "error", appErr.Error())
	}

	resp := &Response{
		Success: false,
		Message: appErr.Message,
	}
	if len(appErr.Fields) > 0 {
		resp.Errors = appErr.Fields
	}
	writeJSON(w, appErr.StatusCode, resp)
}
