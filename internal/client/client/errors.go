package client

import "github.com/xdeleon/offsync/internal/common"

var (
	ErrUnavailable  = common.ErrUnavailable
	ErrUnauthorized = common.ErrUnauthorized
)
