package upnp

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a transport failure.
type ErrorKind int

const (
	// KindNetwork covers timeouts, refused connections and resets.
	KindNetwork ErrorKind = iota
	// KindFault is a structured SOAP fault returned by the device.
	KindFault
	// KindMalformed is an unparseable response envelope.
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindFault:
		return "fault"
	case KindMalformed:
		return "malformed"
	}
	return "unknown"
}

// TransportError is a typed device-transport failure. Commands surface it to
// the caller untouched so retry decisions stay with the caller.
type TransportError struct {
	Kind      ErrorKind
	Action    string
	FaultCode string
	Err       error
}

func (e *TransportError) Error() string {
	if e.Kind == KindFault && e.FaultCode != "" {
		return fmt.Sprintf("%s: device fault %s", e.Action, e.FaultCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s error: %s", e.Action, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error", e.Action, e.Kind)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a TransportError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == kind
}
