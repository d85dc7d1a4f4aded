package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/payprompt/payprompt-backend/internal/errs"
)

// Response is the JSON envelope the portal and USSD gateway consume.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Nav     interface{} `json:"nav,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func Success(w http.ResponseWriter, msg string, data interface{}) {
	WriteJSON(w, http.StatusOK, Response{Success: true, Message: msg, Data: data})
}

func SuccessNav(w http.ResponseWriter, data interface{}, nav interface{}) {
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: data, Nav: nav})
}

func Failed(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, Response{Success: false, Message: msg})
}

// Error maps the service error taxonomy onto HTTP statuses. Wrapped causes
// stay out of the response body.
func Error(w http.ResponseWriter, err error) {
	msg := errs.Message(err)
	switch errs.KindOf(err) {
	case errs.KindValidation:
		Failed(w, http.StatusBadRequest, msg)
	case errs.KindPrecondition:
		Failed(w, http.StatusUnprocessableEntity, msg)
	case errs.KindNotFound:
		Failed(w, http.StatusNotFound, msg)
	case errs.KindConflict:
		Failed(w, http.StatusConflict, msg)
	case errs.KindExternal:
		Failed(w, http.StatusBadGateway, msg)
	default:
		Failed(w, http.StatusInternalServerError, "internal error")
	}
}
