package services

import "errors"

var (
	ErrNilService          = errors.New("services: cannot add a nil service")
	ErrDuplicateService    = errors.New("services: service name already registered")
	ErrDuplicateCapability = errors.New("services: capability already provided")
	ErrUnknownKind         = errors.New("services: unknown service kind")
	ErrEmptyName           = errors.New("services: descriptor has no name")
	ErrAlreadySetUp        = errors.New("services: registry already set up")
	ErrShutdown            = errors.New("services: registry shut down")
)
