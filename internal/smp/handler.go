package smp

// Handler receives the outcome of transactions for one management group.
//
// Exactly one terminal callback is delivered for every successful Send:
// ReceiveOK, ReceiveError, Timeout, Cancel, TransportDisconnected,
// TransportError or DecodeFailed. VersionMismatch is a side signal delivered just before the
// terminal callback. Callbacks run on the goroutine that completed the
// transaction (a transport reader or a timer) with no Processor lock held,
// so a handler may call Send again.
type Handler interface {
	// ReceiveOK delivers a response with no device error. body is the
	// complete CBOR body.
	ReceiveOK(version uint8, op Op, group uint16, command uint8, body []byte)

	// ReceiveError delivers a response carrying a device error.
	ReceiveError(version uint8, op Op, group uint16, command uint8, err Error)

	// Timeout is called when no valid response arrived after every retry.
	Timeout(msg *Message)

	// Cancel is called when the outstanding transaction was cancelled.
	Cancel()

	// TransportDisconnected is called when the transport went away while
	// a transaction was outstanding.
	TransportDisconnected()

	// TransportError is called when the transport rejected a
	// retransmission. The transaction is over.
	TransportError(err error)

	// VersionMismatch reports that the device answered with a different
	// protocol version than the request used.
	VersionMismatch(requested, received uint8)

	// DecodeFailed is called when the response body could not be decoded.
	DecodeFailed(err error)
}
