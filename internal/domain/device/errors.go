package device

import "errors"

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrGroupNotFound  = errors.New("group not found")
	ErrGroupReserved  = errors.New("the all-devices group cannot be modified")
)
