package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/ocupoint/salogger/pkg/acquire"
	"github.com/ocupoint/salogger/pkg/record"
)

type HealthResponse struct {
	Body struct {
		Status  string    `json:"status"`
		Version string    `json:"version"`
		Time    time.Time `json:"time"`
	}
}

type StateResponse struct {
	Body struct {
		State    acquire.State       `json:"state"`
		Defaults Defaults            `json:"defaults"`
		LastRun  *acquire.RunSummary `json:"last_run,omitempty"`
	}
}

// Defaults pre-fill the UI inputs.
type Defaults struct {
	Address string          `json:"address"`
	Run     acquire.Request `json:"run"`
}

type ConnectRequest struct {
	Body struct {
		Address string `json:"address" minLength:"1" doc:"Instrument IP, host:port or VISA resource string"`
	}
}

type ConnectResponse struct {
	Body struct {
		Identity string `json:"identity"`
	}
}

type StartMeasurementRequest struct {
	Body acquire.Request
}

type StartMeasurementResponse struct {
	Body struct {
		RunID string `json:"run_id"`
		Path  string `json:"path"`
	}
}

type ListMeasurementsResponse struct {
	Body struct {
		Files []record.FileInfo `json:"files"`
	}
}

type LogResponse struct {
	Body struct {
		Lines []acquire.LogLine `json:"lines"`
	}
}

// Handler serves the control API.
type Handler struct {
	// runs outlive the request that started them
	baseCtx  context.Context
	ctrl     *acquire.Controller
	ui       *uiState
	defaults Defaults
}

func newHandler(baseCtx context.Context, ctrl *acquire.Controller, ui *uiState, cfg Config) *Handler {
	return &Handler{
		baseCtx:  baseCtx,
		ctrl:     ctrl,
		ui:       ui,
		defaults: Defaults{Address: cfg.Address, Run: cfg.Run},
	}
}

func registerRoutes(api huma.API, h *Handler) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, h.Health)

	huma.Register(api, huma.Operation{
		OperationID: "getState",
		Method:      http.MethodGet,
		Path:        "/api/state",
		Summary:     "Controller state",
		Description: "Connection and run state, control labels and input defaults",
		Tags:        []string{"Control"},
	}, h.GetState)

	huma.Register(api, huma.Operation{
		OperationID: "connect",
		Method:      http.MethodPost,
		Path:        "/api/connect",
		Summary:     "Connect to the instrument",
		Description: "Opens the SCPI session, identifies the instrument and switches it to SA mode",
		Tags:        []string{"Control"},
	}, h.Connect)

	huma.Register(api, huma.Operation{
		OperationID:   "startMeasurement",
		Method:        http.MethodPost,
		Path:          "/api/measurements",
		Summary:       "Start a measurement run",
		Description:   "Checks the preconditions and starts recording traces in the background",
		Tags:          []string{"Measurements"},
		DefaultStatus: http.StatusAccepted,
	}, h.StartMeasurement)

	huma.Register(api, huma.Operation{
		OperationID: "listMeasurements",
		Method:      http.MethodGet,
		Path:        "/api/measurements",
		Summary:     "List measurement files",
		Tags:        []string{"Measurements"},
	}, h.ListMeasurements)

	huma.Register(api, huma.Operation{
		OperationID: "getLog",
		Method:      http.MethodGet,
		Path:        "/api/log",
		Summary:     "Log scrollback",
		Tags:        []string{"Control"},
	}, h.GetLog)
}

func (h *Handler) Health(ctx context.Context, input *struct{}) (*HealthResponse, error) {
	resp := &HealthResponse{}
	resp.Body.Status = "healthy"
	resp.Body.Version = "1.0.0"
	resp.Body.Time = time.Now()
	return resp, nil
}

func (h *Handler) GetState(ctx context.Context, input *struct{}) (*StateResponse, error) {
	resp := &StateResponse{}
	resp.Body.State = h.ctrl.State()
	resp.Body.Defaults = h.defaults
	resp.Body.LastRun = h.ui.LastRun()
	return resp, nil
}

func (h *Handler) Connect(ctx context.Context, req *ConnectRequest) (*ConnectResponse, error) {
	log.Info().Str("address", req.Body.Address).Msg("Connect request received")

	if err := h.ctrl.Connect(ctx, req.Body.Address); err != nil {
		return nil, toHTTPError(err)
	}

	resp := &ConnectResponse{}
	resp.Body.Identity = h.ctrl.State().Identity
	return resp, nil
}

func (h *Handler) StartMeasurement(ctx context.Context, req *StartMeasurementRequest) (*StartMeasurementResponse, error) {
	log.Info().Str("site", req.Body.Site).Msg("Start measurement request received")

	run, err := h.ctrl.Start(h.baseCtx, req.Body)
	if err != nil {
		return nil, toHTTPError(err)
	}

	resp := &StartMeasurementResponse{}
	resp.Body.RunID = run.ID.String()
	resp.Body.Path = run.Path
	return resp, nil
}

func (h *Handler) ListMeasurements(ctx context.Context, input *struct{}) (*ListMeasurementsResponse, error) {
	files, err := record.List(h.ctrl.DataDir())
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list measurement files", err)
	}
	resp := &ListMeasurementsResponse{}
	resp.Body.Files = files
	if resp.Body.Files == nil {
		resp.Body.Files = []record.FileInfo{}
	}
	return resp, nil
}

func (h *Handler) GetLog(ctx context.Context, input *struct{}) (*LogResponse, error) {
	resp := &LogResponse{}
	resp.Body.Lines = h.ui.Log()
	return resp, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, acquire.ErrInvalidInput):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, acquire.ErrBusy), errors.Is(err, acquire.ErrAlreadyConnected):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, acquire.ErrFileExists), errors.Is(err, acquire.ErrNotConnected):
		return huma.Error412PreconditionFailed(err.Error())
	case errors.Is(err, acquire.ErrConnection):
		return huma.Error502BadGateway("Unable to connect", err)
	default:
		return huma.Error500InternalServerError("Unexpected error", err)
	}
}
