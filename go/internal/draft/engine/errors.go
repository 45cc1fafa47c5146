package engine

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownParticipant = errors.New("participant not found")
	ErrNotInDraft         = errors.New("draft in progress")
	ErrAlreadyConnected   = errors.New("participant already connected")
	ErrConnectionInUse    = errors.New("connection already registered")
	ErrNotRegistered      = errors.New("not registered")

	ErrDraftNotStarted    = errors.New("draft not started")
	ErrAlreadyStarted     = errors.New("draft already started")
	ErrDraftEnding        = errors.New("draft is ending")
	ErrDraftEnded         = errors.New("draft ended")
	ErrNoParticipants     = errors.New("no participants registered")
	ErrEmptyPool          = errors.New("no claimable items")
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	ErrNotYourTurn    = errors.New("not your turn")
	ErrAlreadyClaimed = errors.New("already claimed")
	ErrUnknownItem    = errors.New("unknown item")
	ErrInvalidTarget  = errors.New("invalid target")

	ErrEngineStopped = errors.New("engine stopped")
)

var reasons = []error{
	ErrInvalidCredentials, ErrUnknownParticipant, ErrNotInDraft, ErrAlreadyConnected,
	ErrConnectionInUse, ErrNotRegistered, ErrDraftNotStarted, ErrAlreadyStarted,
	ErrDraftEnding, ErrDraftEnded, ErrNoParticipants, ErrEmptyPool, ErrCatalogUnavailable,
	ErrNotYourTurn, ErrAlreadyClaimed, ErrUnknownItem, ErrInvalidTarget, ErrEngineStopped,
}

// Reason maps an engine error to the rejection reason sent to clients.
// Errors that are not engine rejections map to "internal error".
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r) {
			return r.Error()
		}
	}
	return "internal error"
}
