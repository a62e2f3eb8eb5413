//go:build protogen

package entitlements

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	billingv1 "github.com/nvoloshyn/placedesk/protos/gen/billing/v1"
	"github.com/nvoloshyn/placedesk/services/billing-service/internal/storage"
	"google.golang.org/grpc"
)

type server struct {
	billingv1.UnimplementedBillingServiceServer
	repo *storage.Repository
}

func Register(grpcServer *grpc.Server, repo *storage.Repository) {
	billingv1.RegisterBillingServiceServer(grpcServer, &server{repo: repo})
}

func (s *server) GetEntitlements(ctx context.Context, req *billingv1.EntitlementsRequest) (*billingv1.EntitlementsResponse, error) {
	tier := "free"
	status := "none"
	if s.repo != nil && req.GetPlaceId() != "" {
		sub, err := s.repo.GetSubscription(ctx, req.GetPlaceId())
		if err == nil {
			tier = sub.Tier
			status = sub.Status
		}
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			// keep response stable: treat repo errors as free tier
		}
	}
	limits := LimitsForTier(tier)
	return &billingv1.EntitlementsResponse{
		Tier:               tier,
		Status:             status,
		MaxStaff:           limits.MaxStaff,
		MaxPlaces:          limits.MaxPlaces,
		MaxMonthlyMessages: limits.MaxMonthlyMessages,
		Features:           limits.Features,
	}, nil
}
