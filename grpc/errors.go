package grpc

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.viam.com/sensorhub/utils"
)

const (
	errorDomain      = "sensorhub"
	subjectMetadata  = "subject"
	causeMetadataKey = "cause"
)

var kindCodes = map[utils.ErrorKind]codes.Code{
	utils.KindNotFound:           codes.NotFound,
	utils.KindFaultedSensor:      codes.FailedPrecondition,
	utils.KindNotRunning:         codes.FailedPrecondition,
	utils.KindStartupFailure:     codes.Aborted,
	utils.KindAcquisitionFailure: codes.Internal,
	utils.KindUnreachablePeer:    codes.Unavailable,
	utils.KindDiscoveryTimeout:   codes.DeadlineExceeded,
}

// ToStatusError converts err into a gRPC status error. Classified errors carry their kind and
// subject in an ErrorInfo detail so that FromStatusError can rebuild them on the other side.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var classified *utils.Error
	if !errors.As(err, &classified) {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return status.Error(codes.DeadlineExceeded, err.Error())
		case errors.Is(err, context.Canceled):
			return status.Error(codes.Canceled, err.Error())
		default:
			return status.Error(codes.Unknown, err.Error())
		}
	}

	code, ok := kindCodes[classified.Kind]
	if !ok {
		code = codes.Unknown
	}
	info := &errdetails.ErrorInfo{
		Reason:   string(classified.Kind),
		Domain:   errorDomain,
		Metadata: map[string]string{subjectMetadata: classified.Subject},
	}
	if classified.Err != nil {
		info.Metadata[causeMetadataKey] = classified.Err.Error()
	}
	st, detailErr := status.New(code, classified.Error()).WithDetails(info)
	if detailErr != nil {
		return status.Error(code, classified.Error())
	}
	return st.Err()
}

// FromStatusError converts a status error received from target into a classified error when
// possible. Statuses without sensorhub details that indicate a transport problem become
// UnreachablePeer errors; anything else, including errors that are already classified, is
// returned unchanged.
func FromStatusError(target string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := utils.KindOf(err); ok {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return utils.NewUnreachablePeerError(target, err)
		}
		return err
	}
	for _, detail := range st.Details() {
		info, ok := detail.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != errorDomain {
			continue
		}
		var cause error
		if msg, ok := info.GetMetadata()[causeMetadataKey]; ok {
			cause = errors.New(msg)
		}
		return utils.NewError(utils.ErrorKind(info.GetReason()), info.GetMetadata()[subjectMetadata], cause)
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return utils.NewUnreachablePeerError(target, err)
	default:
		return err
	}
}
