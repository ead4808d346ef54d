package middleware

import (
	"context"

	"google.golang.org/grpc"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/pkg/contextx"
)

// GRPCAuditInterceptor records one audit event per unary call. The
// operation is the full method name with the request message as its only
// argument. Install it inside GRPCRecoveryInterceptor so that panics are
// recorded before they are converted to status errors.
func GRPCAuditInterceptor(a *audit.Auditor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if a == nil {
			return handler(ctx, req)
		}

		ctx = contextx.WithEntryPoint(ctx, contextx.EntryGRPC)
		call := audit.Func(info.FullMethod, req)
		return audit.Intercept(ctx, a, call, func(ctx context.Context) (any, error) {
			return handler(ctx, req)
		})
	}
}
