package service

import "errors"

var (
	ErrRunNotFound        = errors.New("run not found")
	ErrLogNotFound        = errors.New("run log not found")
	ErrInventoryMissing   = errors.New("inventory does not exist, call /install/config first")
	ErrPeerNotFound       = errors.New("peer not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPublicKeyMissing   = errors.New("installer public key not found")
	ErrStreamFinished     = errors.New("run finished, no records after the last event id")
)
