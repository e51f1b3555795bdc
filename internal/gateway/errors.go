package gateway

import "errors"

var (
	errTooManyConns  = errors.New("gateway: too many connections for user")
	errUnknownConn   = errors.New("gateway: unknown connection")
	errReservedGroup = errors.New("gateway: group name is reserved")
)
