package spam

import "github.com/Laisky/errors/v2"

var (
	// ErrClassifierRejected means the service refused the request, e.g. a bad key
	ErrClassifierRejected = errors.New("spam classifier rejected the request")
	// ErrUnexpectedResponse means the service answered with something unparseable
	ErrUnexpectedResponse = errors.New("unexpected spam classifier response")
)
