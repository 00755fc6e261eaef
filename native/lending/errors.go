package lending

import "errors"

// Exported sentinels let embedders branch on the failure class of any ledger
// operation with errors.Is. Every path that rejects a request resolves to one
// of these, possibly wrapped with call-site context.
var (
	ErrLoanNotFound      = errors.New("lending: loan not found")
	ErrProgramNotFound   = errors.New("lending: program not found")
	ErrNotAuthorized     = errors.New("lending: caller not authorized")
	ErrInvalidAmount     = errors.New("lending: invalid amount")
	ErrInvalidArgument   = errors.New("lending: invalid argument")
	ErrInvalidDuration   = errors.New("lending: invalid duration")
	ErrInvalidRate       = errors.New("lending: invalid rate")
	ErrAlreadyRegistered = errors.New("lending: reference already registered")
	ErrAlreadyConfigured = errors.New("lending: alias already configured")
	ErrUnknownReference  = errors.New("lending: reference not registered")
	ErrSelfCheckFailed   = errors.New("lending: collaborator self check failed")
	ErrLoanNotActive     = errors.New("lending: loan not active")
	ErrLoanNotFrozen     = errors.New("lending: loan not frozen")
	ErrLoanClosed        = errors.New("lending: loan already closed")
	ErrCooldownExpired   = errors.New("lending: revocation cooldown expired")
	ErrInstallmentLimit  = errors.New("lending: installment limit exceeded")
	ErrCollaborator      = errors.New("lending: collaborator rejected operation")
)

var (
	errNilState    = errors.New("lending engine: state not configured")
	errNilRegistry = errors.New("lending engine: registry not configured")
	errNilResolver = errors.New("lending engine: collaborator resolver not configured")
	errNilMover    = errors.New("lending engine: value mover not configured")
)
