package control

import (
	"context"

	"github.com/core-tools/hsu-devlauncher/pkg/domain"
	"github.com/core-tools/hsu-devlauncher/pkg/errors"
	"github.com/core-tools/hsu-devlauncher/pkg/logging"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func RegisterGRPCServerHandler(grpcServerRegistrar grpc.ServiceRegistrar, handler domain.Contract, logger logging.Logger) {
	grpcServerRegistrar.RegisterService(&serviceDesc, &grpcServerHandler{
		handler: handler,
		logger:  logger,
	})
}

type grpcServerHandler struct {
	handler domain.Contract
	logger  logging.Logger
}

// fail converts a domain error to a status error and names its type in the trailer
func (h *grpcServerHandler) fail(ctx context.Context, method string, err error) error {
	h.logger.Errorf("%s server handler: %v", method, err)
	if errorType := errors.TypeOf(err); errorType != "" {
		_ = grpc.SetTrailer(ctx, metadata.Pairs(ErrorTypeTrailer, string(errorType)))
	}
	return toStatusError(err)
}

// Per-port start failures travel inside the results
func (h *grpcServerHandler) start(ctx context.Context, request *domain.StartRequest) (*startResponse, error) {
	results, err := h.handler.Start(ctx, *request)
	if results == nil && err != nil {
		return nil, h.fail(ctx, "Start", err)
	}
	h.logger.Debugf("Start server handler done, service: %s, results: %d", request.Service, len(results))
	return &startResponse{Results: results}, nil
}

// A partial stop failure travels inside the result
func (h *grpcServerHandler) stop(ctx context.Context, request *domain.StopRequest) (*domain.StopResult, error) {
	result, err := h.handler.Stop(ctx, *request)
	if err != nil && !errors.IsPartialStopFailureError(err) {
		return nil, h.fail(ctx, "Stop", err)
	}
	h.logger.Debugf("Stop server handler done, service: %s, stopped: %d", request.Service, len(result.Stopped))
	return &result, nil
}

func (h *grpcServerHandler) stopAll(ctx context.Context, request *empty) (*domain.StopResult, error) {
	result, err := h.handler.StopAll(ctx)
	if err != nil && !errors.IsPartialStopFailureError(err) {
		return nil, h.fail(ctx, "StopAll", err)
	}
	h.logger.Debugf("StopAll server handler done, stopped: %d", len(result.Stopped))
	return &result, nil
}

func (h *grpcServerHandler) listServices(ctx context.Context, request *empty) (*listServicesResponse, error) {
	services, err := h.handler.ListServices(ctx)
	if err != nil {
		return nil, h.fail(ctx, "ListServices", err)
	}
	return &listServicesResponse{Services: services}, nil
}

func (h *grpcServerHandler) listRunning(ctx context.Context, request *empty) (*listRunningResponse, error) {
	instances, err := h.handler.ListRunning(ctx)
	if err != nil {
		return nil, h.fail(ctx, "ListRunning", err)
	}
	return &listRunningResponse{Instances: instances}, nil
}

func (h *grpcServerHandler) probe(ctx context.Context, request *domain.ProbeRequest) (*probeResponse, error) {
	reports, err := h.handler.Probe(ctx, *request)
	if err != nil {
		return nil, h.fail(ctx, "Probe", err)
	}
	return &probeResponse{Reports: reports}, nil
}

func (h *grpcServerHandler) prune(ctx context.Context, request *empty) (*pruneResponse, error) {
	removed, err := h.handler.Prune(ctx)
	if err != nil {
		return nil, h.fail(ctx, "Prune", err)
	}
	h.logger.Debugf("Prune server handler done, removed: %d", len(removed))
	return &pruneResponse{Removed: removed}, nil
}

// Port warnings are non-fatal, the result is returned with them
func (h *grpcServerHandler) cleanup(ctx context.Context, request *domain.CleanupRequest) (*domain.CleanupResult, error) {
	result, err := h.handler.Cleanup(ctx, *request)
	if err != nil {
		if !errors.IsPortReconcileWarning(err) && !errors.IsCancelledError(err) {
			return nil, h.fail(ctx, "Cleanup", err)
		}
		h.logger.Warnf("Cleanup server handler warning: %v", err)
	}
	return &result, nil
}
