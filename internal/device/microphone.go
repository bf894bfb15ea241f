// Package device guards access to the browser microphone shared by the
// camera preview, speech capture and permission probes of one session.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Reason classifies why a device could not be used
type Reason string

const (
	ReasonPermissionDenied Reason = "permission_denied" // NotAllowedError in the browser
	ReasonNotFound         Reason = "not_found"         // NotFoundError
	ReasonAlreadyInUse     Reason = "already_in_use"    // NotReadableError or a held lease
)

// ErrDeviceBusy is wrapped by DeviceError when a lease is already held.
var ErrDeviceBusy = errors.New("device is already in use")

// DeviceError reports a failed device acquisition
type DeviceError struct {
	Device string
	Reason Reason
	Holder string // current lease owner, for AlreadyInUse
	Err    error
}

func (e *DeviceError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Device, e.Reason)
	if e.Holder != "" {
		msg += " (held by " + e.Holder + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Guidance returns the message shown to the candidate
func (e *DeviceError) Guidance() string {
	switch e.Reason {
	case ReasonPermissionDenied:
		return "Microphone access was denied. Please allow microphone access in your browser settings."
	case ReasonNotFound:
		return "No microphone found. Please ensure a microphone is connected and permissions are granted."
	case ReasonAlreadyInUse:
		return "The microphone is being used by another feature or application. Close it and try again."
	default:
		return "The microphone is unavailable."
	}
}

// IsReason reports whether err is a DeviceError with the given reason
func IsReason(err error, reason Reason) bool {
	var devErr *DeviceError
	return errors.As(err, &devErr) && devErr.Reason == reason
}

// PermissionState is the browser's last reported microphone state
type PermissionState string

const (
	PermissionUnknown PermissionState = ""
	PermissionGranted PermissionState = "granted"
	PermissionPrompt  PermissionState = "prompt"
	PermissionDenied  PermissionState = "denied"
	PermissionMissing PermissionState = "not_found"
	PermissionBusy    PermissionState = "in_use"
)

// Microphone owns the lease and the permission state for one session's
// microphone. At most one owner holds the lease at a time; a second
// Acquire fails fast instead of racing for the device.
type Microphone struct {
	mu         sync.Mutex
	holder     string
	seq        uint64
	permission PermissionState
}

// NewMicrophone creates an unheld microphone with unknown permission
func NewMicrophone() *Microphone {
	return &Microphone{}
}

// Lease is a held claim on the microphone
type Lease struct {
	mic   *Microphone
	owner string
	seq   uint64
	once  sync.Once
}

// Owner returns who holds the lease
func (l *Lease) Owner() string {
	return l.owner
}

// Release gives the microphone back. Safe to call more than once.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		l.mic.mu.Lock()
		defer l.mic.mu.Unlock()
		if l.mic.seq == l.seq {
			l.mic.holder = ""
		}
	})
}

// Acquire claims the microphone for owner
func (m *Microphone) Acquire(owner string) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.holder != "" {
		return nil, &DeviceError{Device: "microphone", Reason: ReasonAlreadyInUse, Holder: m.holder, Err: ErrDeviceBusy}
	}
	m.seq++
	m.holder = owner
	return &Lease{mic: m, owner: owner, seq: m.seq}, nil
}

// Holder returns the current lease owner, or "" when free
func (m *Microphone) Holder() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holder
}

// SetPermission records the state the browser reported
func (m *Microphone) SetPermission(state PermissionState) {
	m.mu.Lock()
	m.permission = state
	m.mu.Unlock()
}

// Permission returns the last reported state
func (m *Microphone) Permission() PermissionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permission
}

// Probe checks that the microphone can be opened. Unknown and prompt
// states pass: the browser asks the user when audio capture begins, and a
// refusal then arrives as a denied device_status report.
func (m *Microphone) Probe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch m.Permission() {
	case PermissionDenied:
		return &DeviceError{Device: "microphone", Reason: ReasonPermissionDenied}
	case PermissionMissing:
		return &DeviceError{Device: "microphone", Reason: ReasonNotFound}
	case PermissionBusy:
		return &DeviceError{Device: "microphone", Reason: ReasonAlreadyInUse}
	default:
		return nil
	}
}
