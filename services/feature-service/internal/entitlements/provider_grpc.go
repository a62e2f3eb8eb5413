//go:build protogen

package entitlements

import (
	"context"
	"log/slog"
	"time"

	"github.com/nvoloshyn/placedesk/libs/grpcx"
	billingv1 "github.com/nvoloshyn/placedesk/protos/gen/billing/v1"
)

type grpcProvider struct {
	client billingv1.BillingServiceClient
}

func NewBillingProvider(logger *slog.Logger, addr string) (Provider, error) {
	if addr == "" {
		return NewStaticProvider("free", "none"), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		logger.Warn("billing grpc provider unavailable, using free fallback", "err", err)
		return NewStaticProvider("free", "none"), nil
	}

	logger.Info("billing grpc provider enabled", "addr", addr)
	return &grpcProvider{client: billingv1.NewBillingServiceClient(conn)}, nil
}

func (p *grpcProvider) Lookup(ctx context.Context, placeID string) (Entitlement, error) {
	resp, err := p.client.GetEntitlements(ctx, &billingv1.EntitlementsRequest{PlaceId: placeID})
	if err != nil {
		return Entitlement{}, err
	}
	return Entitlement{Tier: resp.GetTier(), Status: resp.GetStatus()}, nil
}
