package redis

import (
	"github.com/joomcode/errorx"
)

var (
	// Errors is a root namespace of all redis errors.
	Errors = errorx.NewNamespace("redis")

	// ErrTraitNotSent signals request were not written to wire.
	// Such request may be safely retried.
	ErrTraitNotSent = errorx.RegisterTrait("request_not_sent")
	// ErrTraitConnectivity marks all networking and io errors.
	ErrTraitConnectivity = errorx.RegisterTrait("network")
	// ErrTraitClusterMove signals that key lives on other node.
	ErrTraitClusterMove = errorx.RegisterTrait("cluster_move")

	// ErrOpts - options are wrong.
	ErrOpts = Errors.NewType("opts")
	// ErrContextIsNil - context is not passed to constructor.
	ErrContextIsNil = ErrOpts.NewSubtype("context_is_nil")
	// ErrNoAddressProvided - no address given to constructor.
	ErrNoAddressProvided = ErrOpts.NewSubtype("no_address")

	// ErrContextClosed - context were explicitly closed (connection or cluster shut down).
	ErrContextClosed = Errors.NewType("connection_context_closed", ErrTraitNotSent)

	// ErrConnection - connection were not established at the moment request were done,
	// request is definitely not sent anywhere.
	ErrConnection = Errors.NewType("connection", ErrTraitNotSent, ErrTraitConnectivity)
	// ErrNotConnected - connection were not established at the moment.
	ErrNotConnected = ErrConnection.NewSubtype("not_connected")
	// ErrDial - could not connect.
	ErrDial = ErrConnection.NewSubtype("could_not_connect")
	// ErrAuth - password didn't match.
	ErrAuth = ErrConnection.NewSubtype("count_not_auth")
	// ErrConnSetup - other connection initialization error (including io errors).
	ErrConnSetup = ErrConnection.NewSubtype("initialization_error")

	// ErrIO - io error: read/write error, or timeout, or connection closed while reading/writing.
	// It is not known if request were processed or not.
	ErrIO = Errors.NewType("io error", ErrTraitConnectivity)

	// ErrRequest - request malformed. Can not serialize request, no reason to retry.
	ErrRequest = Errors.NewType("request")
	// ErrArgumentType - argument is not serializable.
	ErrArgumentType = ErrRequest.NewSubtype("argument_type")
	// ErrBatchFormat - some other command in batch is malformed.
	ErrBatchFormat = ErrRequest.NewSubtype("batch_format")
	// ErrRequestCancelled - request already cancelled.
	ErrRequestCancelled = ErrRequest.NewSubtype("request_cancelled", ErrTraitNotSent)

	// ErrResponse - response malformed. Redis returns unexpected response.
	ErrResponse = Errors.NewType("response")
	// ErrResponseFormat - response is not valid Redis response.
	ErrResponseFormat = ErrResponse.NewSubtype("format")
	// ErrResponseUnexpected - response is valid redis response, but its structure/type unexpected.
	ErrResponseUnexpected = ErrResponse.NewSubtype("unexpected")
	// ErrHeaderlineTooLarge - header line too large.
	ErrHeaderlineTooLarge = ErrResponse.NewSubtype("headerline_too_large")
	// ErrHeaderlineEmpty - header line is empty.
	ErrHeaderlineEmpty = ErrResponse.NewSubtype("headerline_empty")
	// ErrIntegerParsing - integer malformed.
	ErrIntegerParsing = ErrResponse.NewSubtype("integer_parsing")
	// ErrNoFinalRN - no final "\r\n".
	ErrNoFinalRN = ErrResponse.NewSubtype("no_final_rn")
	// ErrUnknownHeaderType - unknown header type.
	ErrUnknownHeaderType = ErrResponse.NewSubtype("unknown_headerline_type")
	// ErrPing - ping receives wrong response.
	ErrPing = ErrResponse.NewSubtype("ping")

	// ErrResult - just regular redis response.
	ErrResult = Errors.NewType("result")
	// ErrMoved - MOVED response.
	ErrMoved = ErrResult.NewSubtype("moved", ErrTraitClusterMove)
	// ErrAsk - ASK response.
	ErrAsk = ErrResult.NewSubtype("ask", ErrTraitClusterMove)
	// ErrLoading - redis didn't finish start.
	ErrLoading = ErrResult.NewSubtype("loading", errorx.Temporary())
)

var (
	// EKLine - set by response parser for unrecognized header lines.
	EKLine = errorx.RegisterProperty("line")
	// EKMovedTo - set by response parser for MOVED and ASK responses.
	EKMovedTo = errorx.RegisterProperty("movedto")
	// EKSlot - set by response parser for MOVED and ASK responses.
	EKSlot = errorx.RegisterProperty("slot")
	// EKVal - set by request writer and checker to argument value which could not be serialized.
	EKVal = errorx.RegisterProperty("val")
	// EKArgPos - set by request writer and checker to argument position which could not be serialized.
	EKArgPos = errorx.RegisterProperty("argpos")
	// EKRequest - request that triggered error.
	EKRequest = errorx.RegisterProperty("request")
	// EKRequests - batch requests that triggered error.
	EKRequests = errorx.RegisterProperty("requests")
	// EKResponse - unexpected response.
	EKResponse = errorx.RegisterProperty("response")
	// EKAddress - address of redis that has a problems.
	EKAddress = errorx.RegisterProperty("address")
)

// AsError casts interface to error (if it is error).
func AsError(v interface{}) error {
	e, _ := v.(error)
	return e
}

// AsErrorx casts interface to *errorx.Error.
// It panics if value is error but not *errorx.Error, since all errors produced
// by this library are of that type.
func AsErrorx(v interface{}) *errorx.Error {
	e, _ := v.(*errorx.Error)
	if e == nil {
		if _, ok := v.(error); ok {
			panic(errorx.IllegalState.New("result should be either *errorx.Error, or not error at all, but got %#v", v))
		}
	}
	return e
}

// HardError reports whether err is not a plain redis result error,
// i.e. connection state should be considered broken.
func HardError(err *errorx.Error) bool {
	return err != nil && !err.IsOfType(ErrResult)
}
