package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"

	"github.com/chazu/tapevm/compiler"
	"github.com/chazu/tapevm/store"
)

// Procedure paths served over Connect (HTTP/JSON).
const (
	RunServiceName = "tape.v1.RunService"
	RunProcedure   = "/" + RunServiceName + "/Run"
	CheckProcedure = "/" + RunServiceName + "/Check"
	jsonCodecName  = "json"
)

// RunRequest asks the service to compile and execute a program. Input is
// base64 in JSON.
type RunRequest struct {
	Source string `json:"source"`
	Input  []byte `json:"input,omitempty"`
}

// RunResponse reports a run. Success is true only for a run that completed.
type RunResponse struct {
	Success      bool   `json:"success"`
	Status       string `json:"status"`
	Output       []byte `json:"output,omitempty"`
	Steps        uint64 `json:"steps"`
	Pointer      int    `json:"pointer"`
	ProgramHash  string `json:"programHash,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// CheckRequest asks the service to lex and parse a program without running it.
type CheckRequest struct {
	Source string `json:"source"`
}

// CheckResponse describes a checked program.
type CheckResponse struct {
	Valid        bool   `json:"valid"`
	Canonical    string `json:"canonical,omitempty"`
	Commands     int    `json:"commands"`
	Depth        int    `json:"depth"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// jsonCodec lets Connect carry plain Go structs as JSON.
type jsonCodec struct{}

func (jsonCodec) Name() string { return jsonCodecName }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// RunService implements the RunService Connect handlers.
type RunService struct {
	worker  *Worker
	timeout time.Duration
}

// NewRunService creates a RunService. A positive timeout bounds each run.
func NewRunService(worker *Worker, timeout time.Duration) *RunService {
	return &RunService{worker: worker, timeout: timeout}
}

// Run compiles and executes a program on the worker.
func (s *RunService) Run(
	ctx context.Context,
	req *connect.Request[RunRequest],
) (*connect.Response[RunResponse], error) {
	if req.Msg.Source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := s.worker.Do(ctx, Job{Source: req.Msg.Source, Input: req.Msg.Input})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, connect.NewError(connect.CodeDeadlineExceeded, err)
		}
		return connect.NewResponse(&RunResponse{
			Success:      false,
			ErrorMessage: err.Error(),
		}), nil
	}

	return connect.NewResponse(&RunResponse{
		Success:      res.Status == store.StatusOK,
		Status:       res.Status,
		Output:       res.Output,
		Steps:        res.Steps,
		Pointer:      res.Pointer,
		ProgramHash:  res.ProgramHash,
		ErrorMessage: res.Error,
	}), nil
}

// Check lexes and parses a program. It does not touch the worker.
func (s *RunService) Check(
	ctx context.Context,
	req *connect.Request[CheckRequest],
) (*connect.Response[CheckResponse], error) {
	prog, err := compiler.Compile(req.Msg.Source)
	if err != nil {
		return connect.NewResponse(&CheckResponse{ErrorMessage: err.Error()}), nil
	}
	return connect.NewResponse(&CheckResponse{
		Valid:     true,
		Canonical: prog.String(),
		Commands:  prog.CommandCount(),
		Depth:     prog.MaxDepth(),
	}), nil
}

// NewRunClient returns Connect clients for the RunService at baseURL.
func NewRunClient(httpClient connect.HTTPClient, baseURL string) *RunClient {
	codec := connect.WithCodec(jsonCodec{})
	return &RunClient{
		run:   connect.NewClient[RunRequest, RunResponse](httpClient, baseURL+RunProcedure, codec),
		check: connect.NewClient[CheckRequest, CheckResponse](httpClient, baseURL+CheckProcedure, codec),
	}
}

// RunClient calls a remote RunService.
type RunClient struct {
	run   *connect.Client[RunRequest, RunResponse]
	check *connect.Client[CheckRequest, CheckResponse]
}

// Run executes source remotely.
func (c *RunClient) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	res, err := c.run.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

// Check validates source remotely.
func (c *RunClient) Check(ctx context.Context, req *CheckRequest) (*CheckResponse, error) {
	res, err := c.check.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
