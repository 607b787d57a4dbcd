package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"salaryrules/internal/platform/requestctx"
)

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     *Error `json:"error,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

var (
	ErrEmptyBody    = errors.New("request body is empty")
	ErrBodyTooLarge = errors.New("request body too large")
)

func WriteJSON(w http.ResponseWriter, r *http.Request, status int, payload Envelope) {
	if payload.RequestID == "" {
		payload.RequestID = requestctx.GetRequestID(r.Context())
	}
	render.Status(r, status)
	render.JSON(w, r, payload)
}

func Success(w http.ResponseWriter, r *http.Request, data any) {
	WriteJSON(w, r, http.StatusOK, Envelope{Success: true, Data: data})
}

func Created(w http.ResponseWriter, r *http.Request, data any) {
	WriteJSON(w, r, http.StatusCreated, Envelope{Success: true, Data: data})
}

func Fail(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteJSON(w, r, status, Envelope{Error: &Error{Code: code, Message: message}})
}

func FailWithDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	WriteJSON(w, r, status, Envelope{Error: &Error{Code: code, Message: message, Details: details}})
}

// Decode reads a JSON request body into v.
func Decode(r *http.Request, v any) error {
	err := render.DecodeJSON(r.Body, v)
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return ErrBodyTooLarge
	case errors.Is(err, io.EOF):
		return ErrEmptyBody
	}
	return err
}

// FailDecode reports a body that could not be decoded.
func FailDecode(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrBodyTooLarge) {
		Fail(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
		return
	}
	message := "invalid request payload"
	if err != nil {
		message += ": " + strings.TrimSpace(err.Error())
	}
	Fail(w, r, http.StatusBadRequest, "invalid_payload", message)
}
