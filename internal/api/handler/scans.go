package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/slotwatch/slotwatch/internal/api/models"
	"github.com/slotwatch/slotwatch/internal/api/response"
	"github.com/slotwatch/slotwatch/internal/availability"
	"github.com/slotwatch/slotwatch/internal/history"
	"github.com/slotwatch/slotwatch/internal/scanrequest"
)

// maxScanBodyBytes caps the POST /v1/scans body.
const maxScanBodyBytes = 64 << 10

// ScanRunner runs a scan. *availability.Scanner implements it.
type ScanRunner interface {
	Scan(ctx context.Context, stations []availability.StationEndpoint, req availability.ReservationRequest) (*availability.ScanResult, error)
}

// ScanHandlerConfig holds the dependencies of ScanHandler.
type ScanHandlerConfig struct {
	Scanner  ScanRunner
	History  history.Repository
	Requests scanrequest.Builder
	Logger   zerolog.Logger
}

// ScanHandler handles scan endpoints.
type ScanHandler struct {
	scanner  ScanRunner
	history  history.Repository
	requests scanrequest.Builder
	logger   zerolog.Logger
}

// NewScanHandler creates a new ScanHandler.
func NewScanHandler(cfg ScanHandlerConfig) *ScanHandler {
	return &ScanHandler{
		scanner:  cfg.Scanner,
		history:  cfg.History,
		requests: cfg.Requests,
		logger:   cfg.Logger,
	}
}

// CreateScan handles POST /v1/scans - run a scan and return its result.
// The scan runs within the request; stations that cannot be checked are
// listed under failures rather than failing the request.
func (h *ScanHandler) CreateScan(w http.ResponseWriter, r *http.Request) {
	var input models.CreateScanRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScanBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	req, stations, err := h.requests.Build(scanrequest.Input{
		Start:           input.Start,
		DurationMinutes: input.DurationMinutes,
		Stations:        input.Stations,
	})
	if err != nil {
		writeValidationError(w, r, err)
		return
	}

	result, err := h.scanner.Scan(r.Context(), stations, req)
	if err != nil {
		switch {
		case errors.Is(err, availability.ErrInvalidRequest):
			writeValidationError(w, r, err)
		case errors.Is(err, availability.ErrSessionUnavailable):
			h.logger.Warn().Err(err).Msg("scan aborted: provider session unavailable")
			response.ServiceUnavailable(w, r, "the car-share provider could not be reached; try again later")
		case errors.Is(err, context.Canceled):
			// Client went away.
		default:
			h.logger.Error().Err(err).Msg("scan failed")
			response.InternalError(w, r, "scan failed")
		}
		return
	}

	location := ""
	if err := h.history.Save(r.Context(), result); err != nil {
		h.logger.Error().Err(err).Str("scan_id", result.ID).Msg("failed to store scan")
	} else {
		location = "/v1/scans/" + result.ID
	}

	response.Created(w, r, location, models.NewScan(result))
}

// ListScans handles GET /v1/scans - list recent scans, newest first.
func (h *ScanHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	opts := history.ListOptions{}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			response.BadRequest(w, r, "limit must be a positive integer", []models.FieldError{
				{Field: "limit", Message: "must be a positive integer", Code: "INVALID"},
			})
			return
		}
		opts.Limit = limit
	}

	scans, err := h.history.List(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list scans")
		response.InternalError(w, r, "failed to list scans")
		return
	}

	list := models.ScanList{
		Items: make([]models.ScanSummary, 0, len(scans)),
		Meta:  models.PagedResponseMeta{Limit: opts.EffectiveLimit(), Count: len(scans)},
	}
	for _, s := range scans {
		list.Items = append(list.Items, models.NewScanSummary(s))
	}
	response.JSON(w, r, http.StatusOK, list)
}

// GetScan handles GET /v1/scans/{scanId} - get a stored scan.
func (h *ScanHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scanId")
	if scanID == "" {
		response.BadRequest(w, r, "scanId is required", nil)
		return
	}

	result, err := h.history.Get(r.Context(), scanID)
	if err != nil {
		if errors.Is(err, history.ErrScanNotFound) {
			response.NotFound(w, r, "scan "+scanID+" not found")
			return
		}
		h.logger.Error().Err(err).Str("scan_id", scanID).Msg("failed to get scan")
		response.InternalError(w, r, "failed to get scan")
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewScan(result))
}

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *availability.ValidationError
	if errors.As(err, &ve) {
		response.BadRequest(w, r, ve.Error(), []models.FieldError{
			{Field: ve.Field, Message: ve.Reason, Code: "INVALID"},
		})
		return
	}
	response.BadRequest(w, r, err.Error(), nil)
}
