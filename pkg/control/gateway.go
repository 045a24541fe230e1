package control

import (
	"context"

	"github.com/core-tools/hsu-devlauncher/pkg/catalog"
	"github.com/core-tools/hsu-devlauncher/pkg/domain"
	"github.com/core-tools/hsu-devlauncher/pkg/logging"
	"github.com/core-tools/hsu-devlauncher/pkg/registry"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func NewGRPCClientGateway(grpcClientConnection grpc.ClientConnInterface, logger logging.Logger) domain.Contract {
	return &grpcClientGateway{
		conn:   grpcClientConnection,
		logger: logger,
	}
}

type grpcClientGateway struct {
	conn   grpc.ClientConnInterface
	logger logging.Logger
}

func (gw *grpcClientGateway) invoke(ctx context.Context, method string, request, response interface{}) error {
	var trailer metadata.MD
	err := gw.conn.Invoke(ctx, fullMethod(method), request, response,
		grpc.CallContentSubtype(CodecName), grpc.Trailer(&trailer))
	if err != nil {
		gw.logger.Errorf("%s client gateway: %v", method, err)
		return fromStatusError(err, trailer)
	}
	gw.logger.Debugf("%s client gateway done", method)
	return nil
}

func (gw *grpcClientGateway) Start(ctx context.Context, request domain.StartRequest) ([]domain.StartResult, error) {
	var response startResponse
	if err := gw.invoke(ctx, "Start", &request, &response); err != nil {
		return nil, err
	}
	return response.Results, domain.StartError(response.Results)
}

func (gw *grpcClientGateway) Stop(ctx context.Context, request domain.StopRequest) (domain.StopResult, error) {
	var response domain.StopResult
	if err := gw.invoke(ctx, "Stop", &request, &response); err != nil {
		return domain.StopResult{}, err
	}
	return response, domain.StopError(request.Service, response)
}

func (gw *grpcClientGateway) StopAll(ctx context.Context) (domain.StopResult, error) {
	var response domain.StopResult
	if err := gw.invoke(ctx, "StopAll", &empty{}, &response); err != nil {
		return domain.StopResult{}, err
	}
	return response, domain.StopError("all services", response)
}

func (gw *grpcClientGateway) ListServices(ctx context.Context) ([]catalog.ServiceDefinition, error) {
	var response listServicesResponse
	if err := gw.invoke(ctx, "ListServices", &empty{}, &response); err != nil {
		return nil, err
	}
	return response.Services, nil
}

func (gw *grpcClientGateway) ListRunning(ctx context.Context) ([]domain.InstanceStatus, error) {
	var response listRunningResponse
	if err := gw.invoke(ctx, "ListRunning", &empty{}, &response); err != nil {
		return nil, err
	}
	return response.Instances, nil
}

func (gw *grpcClientGateway) Probe(ctx context.Context, request domain.ProbeRequest) ([]domain.ProbeReport, error) {
	var response probeResponse
	if err := gw.invoke(ctx, "Probe", &request, &response); err != nil {
		return nil, err
	}
	return response.Reports, nil
}

func (gw *grpcClientGateway) Prune(ctx context.Context) ([]registry.ProcessRecord, error) {
	var response pruneResponse
	if err := gw.invoke(ctx, "Prune", &empty{}, &response); err != nil {
		return nil, err
	}
	return response.Removed, nil
}

func (gw *grpcClientGateway) Cleanup(ctx context.Context, request domain.CleanupRequest) (domain.CleanupResult, error) {
	var response domain.CleanupResult
	if err := gw.invoke(ctx, "Cleanup", &request, &response); err != nil {
		return domain.CleanupResult{}, err
	}
	return response, nil
}
