package client

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/xdeleon/offsync/internal/api"
	"github.com/xdeleon/offsync/internal/common"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

type fakeRows struct {
	api.UnimplementedRowsServer

	mu     sync.Mutex
	tokens []string
	last   any
	err    error
	rows   []api.Row
}

func (f *fakeRows) record(ctx context.Context, req any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	md, _ := metadata.FromIncomingContext(ctx)
	f.tokens = append(f.tokens, md.Get(common.AccessTokenHeaderName)...)
	f.last = req
	return f.err
}

func (f *fakeRows) Upsert(ctx context.Context, req *api.UpsertRequest) (*api.UpsertResponse, error) {
	if err := f.record(ctx, req); err != nil {
		return nil, err
	}
	row := req.Row
	row.UpdatedAt = row.UpdatedAt.Add(time.Second)
	return &api.UpsertResponse{Row: row, Inserted: true}, nil
}

func (f *fakeRows) SoftDelete(ctx context.Context, req *api.SoftDeleteRequest) (*api.SoftDeleteResponse, error) {
	if err := f.record(ctx, req); err != nil {
		return nil, err
	}
	at := req.DeletedAt
	return &api.SoftDeleteResponse{Row: api.Row{ID: req.ID, OwnerID: req.OwnerID, DeletedAt: &at, UpdatedAt: at}}, nil
}

func (f *fakeRows) Fetch(ctx context.Context, req *api.FetchRequest) (*api.FetchResponse, error) {
	if err := f.record(ctx, req); err != nil {
		return nil, err
	}
	return &api.FetchResponse{Rows: f.rows}, nil
}

func (f *fakeRows) Ping(ctx context.Context, req *api.PingRequest) (*api.PingResponse, error) {
	if err := f.record(ctx, req); err != nil {
		return nil, err
	}
	return &api.PingResponse{ServerTime: time.Now()}, nil
}

func newBufClient(t *testing.T, srv *fakeRows, token string) *GRPCClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	api.RegisterRowsServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	c, err := NewGRPCClient("passthrough:///bufnet", staticToken(token),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGRPCClient_RoundTrip(t *testing.T) {
	srv := &fakeRows{}
	c := newBufClient(t, srv, "tok-1")
	ctx := context.Background()
	now := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

	in := api.Row{ID: "i1", OwnerID: "u1", ContainerID: "c1", Name: "Cells", CreatedAt: now, UpdatedAt: now}
	got, err := c.Upsert(ctx, api.TableItems, in)
	require.NoError(t, err)
	want := in
	want.UpdatedAt = now.Add(time.Second)
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("upsert row mismatch (-want +got):\n%s", diff)
	}

	del, err := c.SoftDelete(ctx, api.TableItems, "i1", "u1", now)
	require.NoError(t, err)
	require.NotNil(t, del.DeletedAt)
	assert.True(t, now.Equal(*del.DeletedAt))
	req, ok := srv.last.(*api.SoftDeleteRequest)
	require.True(t, ok)
	assert.Equal(t, "u1", req.OwnerID)
	assert.True(t, now.Equal(req.DeletedAt))

	srv.rows = []api.Row{in}
	rows, err := c.Fetch(ctx, api.TableItems)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Cells", rows[0].Name)

	require.NoError(t, c.Ping(ctx))
	assert.Equal(t, []string{"tok-1", "tok-1", "tok-1", "tok-1"}, srv.tokens)
}

func TestGRPCClient_NoTokenWhenSignedOut(t *testing.T) {
	srv := &fakeRows{}
	c := newBufClient(t, srv, "")

	require.NoError(t, c.Ping(context.Background()))
	assert.Empty(t, srv.tokens)
}

func TestGRPCClient_MapsStatusCodes(t *testing.T) {
	tests := []struct {
		code codes.Code
		want error
	}{
		{codes.Unauthenticated, common.ErrUnauthorized},
		{codes.PermissionDenied, common.ErrUnauthorized},
		{codes.Unavailable, common.ErrUnavailable},
		{codes.DeadlineExceeded, common.ErrUnavailable},
		{codes.NotFound, common.ErrorNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			srv := &fakeRows{err: status.Error(tt.code, "nope")}
			c := newBufClient(t, srv, "tok")

			_, err := c.Fetch(context.Background(), api.TableContainers)
			require.ErrorIs(t, err, tt.want)
		})
	}

	srv := &fakeRows{err: status.Error(codes.InvalidArgument, "bad row")}
	c := newBufClient(t, srv, "tok")
	_, err := c.Upsert(context.Background(), api.TableContainers, api.Row{ID: "x"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrUnavailable)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestMapError_Nil(t *testing.T) {
	assert.NoError(t, mapError(nil))
}
