package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/imagebank/backend/gallery"
)

// APIErrorDetail represents a single error in the standardized error response.
type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// APIErrorResponse represents the standardized error response body.
type APIErrorResponse struct {
	Errors []APIErrorDetail `json:"errors"`
}

// WriteAPIError writes a standardized error response with the given HTTP status, code, and detail.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	resp := APIErrorResponse{
		Errors: []APIErrorDetail{
			{
				Code:   code,
				Status: strconv.Itoa(httpStatus),
				Detail: detail,
			},
		},
	}

	_ = json.NewEncoder(w).Encode(resp)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeWorkflowError maps the gallery error taxonomy onto HTTP responses.
func writeWorkflowError(w http.ResponseWriter, err error) {
	var validationErr *gallery.ValidationError
	var upstreamErr *gallery.UpstreamError

	switch {
	case errors.As(err, &validationErr):
		WriteAPIError(w, http.StatusBadRequest, "validation_failed", validationErr.Msg)
	case errors.Is(err, gallery.ErrNotFound):
		WriteAPIError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, gallery.ErrForbidden):
		WriteAPIError(w, http.StatusForbidden, "forbidden", "you do not own this image")
	case errors.Is(err, gallery.ErrConflict):
		WriteAPIError(w, http.StatusConflict, "conflict", "filename already exists")
	case errors.As(err, &upstreamErr):
		log.Printf("handlers: upstream detection failure: %v", err)
		WriteAPIError(w, http.StatusBadGateway, "upstream_failed", "face detection service is unavailable")
	default:
		log.Printf("handlers: internal error: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
