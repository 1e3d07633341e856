package transport

import "context"

// ContentType is the media type of EBICS requests and responses
const ContentType = "text/xml; charset=UTF-8"

// Transport delivers one serialized request to the bank and returns the raw
// response. Implementations must be safe for concurrent use.
type Transport interface {
	Send(ctx context.Context, request []byte) ([]byte, error)
}

// Func adapts an ordinary function to the Transport interface
type Func func(ctx context.Context, request []byte) ([]byte, error)

// Send calls f(ctx, request)
func (f Func) Send(ctx context.Context, request []byte) ([]byte, error) {
	return f(ctx, request)
}
