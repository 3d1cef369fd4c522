package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fjod/go_storefront/internal/service"
	"github.com/go-playground/validator/v10"
)

const kindUnauthorized = "Unauthorized"

type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Error("failed to encode response", "status", status, "err", err)
	}
}

func respondError(w http.ResponseWriter, status int, kind, message string) {
	respondJSON(w, status, ErrorResponse{Kind: kind, Message: message})
}

// statusForKind converts a service error kind to an HTTP status.
func statusForKind(kind string) int {
	switch kind {
	case service.KindAmountMismatch, service.KindEmptyCart, service.KindInvalidRequest:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func messageForKind(kind string, err error) string {
	switch kind {
	case service.KindPersistence:
		return "storage temporarily unavailable, retry later"
	case service.KindPaymentProvider:
		return "payment provider unavailable, retry later"
	case service.KindInternal:
		return "internal server error"
	default:
		return err.Error()
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
