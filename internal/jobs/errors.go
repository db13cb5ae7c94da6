package jobs

import "errors"

var (
	ErrNotDeclared      = errors.New("job no longer declared")
	ErrUnknownKind      = errors.New("unknown job kind")
	ErrUnexpectedStatus = errors.New("unexpected http status")
	ErrUnitInactive     = errors.New("unit not active")
	ErrNoConfig         = errors.New("no config loaded")
)
