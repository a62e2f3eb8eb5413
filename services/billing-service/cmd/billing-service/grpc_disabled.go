//go:build !protogen

package main

import (
	"context"
	"log/slog"

	"github.com/nvoloshyn/placedesk/libs/db"
)

// The entitlements gRPC server needs generated protobuf code. Build with
// -tags protogen after running the proto generation step.
func startGrpcServer(_ context.Context, logger *slog.Logger, _ *db.Pool) error {
	logger.Info("grpc server disabled (build without protogen tag)")
	return nil
}
