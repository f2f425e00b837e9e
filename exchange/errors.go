package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/adshao/go-binance/v2/common"
)

var (
	ErrInvalidAsset    = errors.New("invalid asset")
	ErrInvalidQuantity = errors.New("invalid quantity")
)

type ErrorKind string

var (
	KindTransient    ErrorKind = "transient"
	KindPermanent    ErrorKind = "permanent"
	KindConnectivity ErrorKind = "connectivity"
)

// Error wraps an exchange failure with its retry classification. Connectivity
// errors count as transient for retry purposes but additionally degrade the
// account's health record.
type Error struct {
	Kind ErrorKind
	Code int64
	Err  error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("exchange: %s (code %d): %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("exchange: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Transient() bool {
	return e.Kind == KindTransient || e.Kind == KindConnectivity
}

// binance error codes that are worth retrying
var transientCodes = map[int64]bool{
	-1001: true, // internal error
	-1003: true, // too many requests
	-1007: true, // timeout waiting for backend
	-1008: true, // server overloaded
	-1021: true, // timestamp out of recv window
}

// binance error codes that can never succeed on retry
var permanentCodes = map[int64]bool{
	-1111: true, // bad precision
	-1121: true, // invalid symbol
	-2010: true, // order rejected
	-2019: true, // insufficient margin
	-2022: true, // reduce-only rejected
	-4003: true, // quantity below minimum
	-4164: true, // notional below minimum
}

// Classify folds any raw error into the retry taxonomy. Already-classified
// errors pass through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindConnectivity, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Kind: KindConnectivity, Err: err}
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch {
		case transientCodes[apiErr.Code]:
			return &Error{Kind: KindTransient, Code: apiErr.Code, Err: err}
		case permanentCodes[apiErr.Code]:
			return &Error{Kind: KindPermanent, Code: apiErr.Code, Err: err}
		case apiErr.Code <= -9000: // filter failures
			return &Error{Kind: KindPermanent, Code: apiErr.Code, Err: err}
		default:
			return &Error{Kind: KindPermanent, Code: apiErr.Code, Err: err}
		}
	}

	return &Error{Kind: classifyMessage(err.Error()), Err: err}
}

// classifyMessage is a last-resort string scan for errors that lost their
// type crossing an SDK boundary.
func classifyMessage(msg string) ErrorKind {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "service unavailable"),
		strings.Contains(msg, "busy"):
		return KindTransient
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "eof"):
		return KindConnectivity
	default:
		return KindPermanent
	}
}

func IsTransient(err error) bool {
	c := Classify(err)
	return c != nil && c.Transient()
}

func IsConnectivity(err error) bool {
	c := Classify(err)
	return c != nil && c.Kind == KindConnectivity
}
