package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/leshachaplin/capirelay/internal/apierror"
	"github.com/leshachaplin/capirelay/internal/domain"
	"github.com/leshachaplin/capirelay/internal/service"
)

type Handler struct {
	conversion service.Conversion
	validate   *validator.Validate
	now        func() time.Time
	logger     zerolog.Logger
}

func NewHandler(conversion service.Conversion, logger zerolog.Logger) *Handler {
	return &Handler{
		conversion: conversion,
		validate:   validator.New(),
		now:        time.Now,
		logger:     logger,
	}
}

func (h *Handler) error(err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	var apiErr apierror.Error
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &verr):
		apiErr = apierror.FromValidation(verr)
	default:
		h.logger.Error().Err(err).Msg("Unhandled request error.")
		apiErr = apierror.NewAPIError(http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}

	w.WriteHeader(apiErr.StatusCode())
	if err = json.NewEncoder(w).Encode(apiErr); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode error response.")
	}
}
