package control

import (
	"context"

	"github.com/core-tools/hsu-devlauncher/pkg/catalog"
	"github.com/core-tools/hsu-devlauncher/pkg/domain"
	"github.com/core-tools/hsu-devlauncher/pkg/registry"

	"google.golang.org/grpc"
)

const ServiceName = "hsu.devlauncher.Launcher"

type empty struct{}

type startResponse struct {
	Results []domain.StartResult `json:"results"`
}

type listServicesResponse struct {
	Services []catalog.ServiceDefinition `json:"services"`
}

type listRunningResponse struct {
	Instances []domain.InstanceStatus `json:"instances"`
}

type probeResponse struct {
	Reports []domain.ProbeReport `json:"reports"`
}

type pruneResponse struct {
	Removed []registry.ProcessRecord `json:"removed"`
}

// launcherServer is the handler type the service descriptor dispatches to
type launcherServer interface {
	start(ctx context.Context, request *domain.StartRequest) (*startResponse, error)
	stop(ctx context.Context, request *domain.StopRequest) (*domain.StopResult, error)
	stopAll(ctx context.Context, request *empty) (*domain.StopResult, error)
	listServices(ctx context.Context, request *empty) (*listServicesResponse, error)
	listRunning(ctx context.Context, request *empty) (*listRunningResponse, error)
	probe(ctx context.Context, request *domain.ProbeRequest) (*probeResponse, error)
	prune(ctx context.Context, request *empty) (*pruneResponse, error)
	cleanup(ctx context.Context, request *domain.CleanupRequest) (*domain.CleanupResult, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*launcherServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Start", launcherServer.start),
		unaryMethod("Stop", launcherServer.stop),
		unaryMethod("StopAll", launcherServer.stopAll),
		unaryMethod("ListServices", launcherServer.listServices),
		unaryMethod("ListRunning", launcherServer.listRunning),
		unaryMethod("Probe", launcherServer.probe),
		unaryMethod("Prune", launcherServer.prune),
		unaryMethod("Cleanup", launcherServer.cleanup),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hsu/devlauncher/launcher",
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryMethod[Req any, Resp any](method string, call func(launcherServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(launcherServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(method),
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(server, ctx, req.(*Req))
			})
		},
	}
}
