package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/xdeleon/offsync/internal/api"
	"github.com/xdeleon/offsync/internal/common"
)

const defaultCallTimeout = 10 * time.Second

// TokenSource yields the current access token, or "" when signed out.
type TokenSource interface {
	Token() string
}

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      api.RowsClient
	tokens      TokenSource
	callTimeout time.Duration
}

// NewGRPCClient prepares a client for endpointURL. The connection is lazy;
// nothing is dialed until the first call.
func NewGRPCClient(endpointURL string, tokens TokenSource, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, tokens: tokens, callTimeout: defaultCallTimeout}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)
	conn, err := grpc.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client %s: %w", endpointURL, err)
	}
	c.conn = conn
	c.client = api.NewRowsClient(conn)
	return c, nil
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (c *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			ctx = withAccessToken(ctx, tok)
		}
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

func (c *GRPCClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.callTimeout)
}

func (c *GRPCClient) Upsert(ctx context.Context, table api.Table, row api.Row) (*api.Row, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.Upsert(ctx, &api.UpsertRequest{Table: table, Row: row})
	if err != nil {
		return nil, mapError(err)
	}
	return &resp.Row, nil
}

func (c *GRPCClient) SoftDelete(ctx context.Context, table api.Table, id, ownerID string, at time.Time) (*api.Row, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.SoftDelete(ctx, &api.SoftDeleteRequest{Table: table, ID: id, OwnerID: ownerID, DeletedAt: at})
	if err != nil {
		return nil, mapError(err)
	}
	return &resp.Row, nil
}

// Fetch returns every row of table visible to the caller, deleted ones
// included.
func (c *GRPCClient) Fetch(ctx context.Context, table api.Table) ([]api.Row, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.Fetch(ctx, &api.FetchRequest{Table: table})
	if err != nil {
		return nil, mapError(err)
	}
	return resp.Rows, nil
}

func (c *GRPCClient) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if _, err := c.client.Ping(ctx, &api.PingRequest{}); err != nil {
		return mapError(err)
	}
	return nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", common.ErrorNotFound, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
