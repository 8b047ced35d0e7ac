// Package server wires message validation into gRPC servers.
package server

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/solatis/protocheck/internal/violations"
)

// Validator validates one request message.
type Validator interface {
	Validate(msg proto.Message) error
}

// UnaryServerInterceptor rejects requests that fail validation before they
// reach the handler.
func UnaryServerInterceptor(v Validator, logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if err := check(v, req); err != nil {
			logger.Debug("rejected request", "method", info.FullMethod, "error", err)
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor validates every message a client streams in.
func StreamServerInterceptor(v Validator, logger *slog.Logger) grpc.StreamServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return handler(srv, &validatingStream{ServerStream: ss, validator: v, logger: logger, method: info.FullMethod})
	}
}

// ServerOptions returns the interceptors as options for grpc.NewServer.
func ServerOptions(v Validator, logger *slog.Logger) []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(v, logger)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor(v, logger)),
	}
}

type validatingStream struct {
	grpc.ServerStream
	validator Validator
	logger    *slog.Logger
	method    string
}

func (s *validatingStream) RecvMsg(m interface{}) error {
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return err
	}
	if err := check(s.validator, m); err != nil {
		s.logger.Debug("rejected stream message", "method", s.method, "error", err)
		return err
	}
	return nil
}

// check validates req and maps the outcome to a gRPC status error.
// Messages that are not protobuf messages pass through.
func check(v Validator, req interface{}) error {
	msg, ok := req.(proto.Message)
	if !ok {
		return nil
	}
	return Status(v.Validate(msg))
}

// Status converts a validation result into a gRPC status error. Violations
// become INVALID_ARGUMENT carrying a buf.validate.Violations detail; any
// other error, schema errors included, becomes INTERNAL.
func Status(err error) error {
	if err == nil {
		return nil
	}
	var verr *violations.Error
	if !errors.As(err, &verr) {
		return status.Error(codes.Internal, err.Error())
	}
	st := status.New(codes.InvalidArgument, verr.Error())
	if detailed, derr := st.WithDetails(verr.ToProto()); derr == nil {
		st = detailed
	}
	return st.Err()
}
