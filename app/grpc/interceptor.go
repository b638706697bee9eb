package grpc

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/factory"
	"github.com/vibast-solutions/ms-go-billing/app/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const requestIDHeader = "x-request-id"

type requestIDContextKey struct{}

var logger = factory.NewModuleLogger("grpc")

func RequestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx = withRequestID(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDHeader, RequestIDFromContext(ctx)))
		return handler(ctx, req)
	}
}

func LoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(ctx, info.FullMethod, start, err)
		return resp, err
	}
}

func RecoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (_ interface{}, err error) {
		defer recoverPanic(ctx, info.FullMethod, &err)
		return handler(ctx, req)
	}
}

// StreamRequestIDInterceptor, StreamLoggingInterceptor and
// StreamRecoveryInterceptor cover streaming calls such as health Watch.
func StreamRequestIDInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := withRequestID(ss.Context())
		_ = ss.SetHeader(metadata.Pairs(requestIDHeader, RequestIDFromContext(ctx)))
		return handler(srv, &contextStream{ServerStream: ss, ctx: ctx})
	}
}

func StreamLoggingInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logCall(ss.Context(), info.FullMethod, start, err)
		return err
	}
}

func StreamRecoveryInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer recoverPanic(ss.Context(), info.FullMethod, &err)
		return handler(srv, ss)
	}
}

func RequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	return requestID
}

type contextStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *contextStream) Context() context.Context {
	return s.ctx
}

func withRequestID(ctx context.Context) context.Context {
	requestID := requestIDFromMetadata(ctx)
	if requestID == "" {
		requestID = fmt.Sprintf("grpc-%s", uuid.NewString())
	}
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

func logCall(ctx context.Context, method string, start time.Time, err error) {
	latency := time.Since(start)
	code := status.Code(err).String()
	metrics.GRPCRequests.WithLabelValues(method, code).Inc()

	entry := loggerWithContext(ctx).WithFields(logrus.Fields{
		"method":     method,
		"grpc_code":  code,
		"latency":    latency.String(),
		"latency_ns": latency.Nanoseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("grpc_request")
		return
	}
	entry.Info("grpc_request")
}

func recoverPanic(ctx context.Context, method string, err *error) {
	rec := recover()
	if rec == nil {
		return
	}
	loggerWithContext(ctx).WithFields(logrus.Fields{
		"method": method,
		"panic":  rec,
		"stack":  string(debug.Stack()),
	}).Error("grpc_panic_recovered")
	*err = status.Error(codes.Internal, "internal server error")
}

func loggerWithContext(ctx context.Context) logrus.FieldLogger {
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		return logger.WithField("request_id", requestID)
	}
	return logger
}

func requestIDFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(requestIDHeader)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
