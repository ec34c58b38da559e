package telemetry

import "fmt"

// StorageError reports a failed append. It ends the owning stream.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("telemetry storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// TransportError reports a failed push to the stream subscriber.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("telemetry transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
