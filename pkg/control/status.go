package control

import (
	"github.com/core-tools/hsu-devlauncher/pkg/domain"
	"github.com/core-tools/hsu-devlauncher/pkg/errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ErrorTypeTrailer names the DomainError type of a failed call
const ErrorTypeTrailer = "error-type"

var statusCodes = map[errors.ErrorType]codes.Code{
	errors.ErrorTypeValidation:     codes.InvalidArgument,
	errors.ErrorTypeKindMismatch:   codes.InvalidArgument,
	errors.ErrorTypePathNotFound:   codes.FailedPrecondition,
	errors.ErrorTypeNotFound:       codes.NotFound,
	errors.ErrorTypeUnknownService: codes.NotFound,
	errors.ErrorTypeAlreadyRunning: codes.AlreadyExists,
	errors.ErrorTypePermission:     codes.PermissionDenied,
	errors.ErrorTypeTimeout:        codes.DeadlineExceeded,
	errors.ErrorTypeCancelled:      codes.Canceled,
	errors.ErrorTypeLaunchFailed:   codes.Aborted,
}

func toStatusError(err error) error {
	code, ok := statusCodes[errors.TypeOf(err)]
	if !ok {
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// fromStatusError rebuilds the DomainError of a failed call from its status and trailer
func fromStatusError(err error, trailer metadata.MD) error {
	st, ok := status.FromError(err)
	if !ok {
		return errors.NewInternalError("control call failed", err)
	}

	values := trailer.Get(ErrorTypeTrailer)
	if len(values) == 0 {
		switch st.Code() {
		case codes.Unavailable:
			return errors.NewIOError("launcher daemon unavailable", err)
		case codes.DeadlineExceeded:
			return errors.NewTimeoutError("control call timed out", err)
		case codes.Canceled:
			return errors.NewCancelledError("control call cancelled", err)
		}
		return errors.NewInternalError("control call failed", err)
	}
	return domain.RebuildError(errors.ErrorType(values[0]), st.Message())
}
