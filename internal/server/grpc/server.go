package grpc

import (
	"context"
	"net"
	"time"

	"github.com/xdeleon/offsync/internal/api"
	"github.com/xdeleon/offsync/internal/logging"
	"google.golang.org/grpc"
)

// rowSvc is the part of services.RowService the handlers call.
type rowSvc interface {
	Upsert(ctx context.Context, userID string, t api.Table, row api.Row) (*api.Row, bool, error)
	SoftDelete(ctx context.Context, userID string, t api.Table, id, ownerID string, at time.Time) (*api.Row, error)
	Fetch(ctx context.Context, userID string, t api.Table) ([]api.Row, error)
}

type GRPCServer struct {
	api.UnimplementedRowsServer
	address   string
	rows      rowSvc
	logger    logging.Logger
	jwtSecret []byte
	now       func() time.Time
}

func NewGRPCServer(a string, l logging.Logger, rs rowSvc, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		rows:      rs,
		jwtSecret: []byte(secretKey),
		now:       time.Now,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	api.RegisterRowsServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	return nil
}
