package grpc

import (
	"context"
	"errors"

	"github.com/xdeleon/offsync/internal/api"
	"github.com/xdeleon/offsync/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (s *GRPCServer) Upsert(ctx context.Context, req *api.UpsertRequest) (*api.UpsertResponse, error) {
	userID, ok := userIDFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Internal, "missing user id")
	}

	row, inserted, err := s.rows.Upsert(ctx, userID, req.Table, req.Row)
	if err != nil {
		return nil, s.toStatus(ctx, "upsert", err)
	}

	s.logger.Debug(ctx, "upserted", "table", req.Table, "id", row.ID, "inserted", inserted)
	return &api.UpsertResponse{Row: *row, Inserted: inserted}, nil
}

func (s *GRPCServer) SoftDelete(ctx context.Context, req *api.SoftDeleteRequest) (*api.SoftDeleteResponse, error) {
	userID, ok := userIDFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Internal, "missing user id")
	}

	row, err := s.rows.SoftDelete(ctx, userID, req.Table, req.ID, req.OwnerID, req.DeletedAt)
	if err != nil {
		return nil, s.toStatus(ctx, "soft delete", err)
	}

	s.logger.Debug(ctx, "soft deleted", "table", req.Table, "id", req.ID)
	return &api.SoftDeleteResponse{Row: *row}, nil
}

func (s *GRPCServer) Fetch(ctx context.Context, req *api.FetchRequest) (*api.FetchResponse, error) {
	userID, ok := userIDFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Internal, "missing user id")
	}

	rows, err := s.rows.Fetch(ctx, userID, req.Table)
	if err != nil {
		return nil, s.toStatus(ctx, "fetch", err)
	}
	return &api.FetchResponse{Rows: rows}, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *api.PingRequest) (*api.PingResponse, error) {
	return &api.PingResponse{ServerTime: s.now().UTC()}, nil
}

func (s *GRPCServer) toStatus(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, common.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrInvalidRow), errors.Is(err, common.ErrUnknownTable):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	s.logger.Error(ctx, op+" failed", "error", err)
	return status.Error(codes.Internal, "internal error")
}
