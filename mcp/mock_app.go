package mcp

import (
	"context"
	"errors"
	"sync"
)

// MockCall records a method call for verification
type MockCall struct {
	Method string
	Args   []interface{}
}

// MockUssdApp is a mock implementation of UssdApp for testing
type MockUssdApp struct {
	mu    sync.Mutex
	Calls []MockCall

	// Devices
	GetDevicesResult []Device
	GetDevicesError  error

	// Sessions
	SendRequestResult   *SendResult
	SendRequestError    error
	SendMultiStepResult *SendResult
	SendMultiStepError  error
	SendMessageResult   bool
	SendMessageError    error
	CancelSessionResult bool
	CancelSessionError  error

	// Lines and permission
	ListLinesResult     []Line
	ListLinesError      error
	PermissionResult    PermissionStatus
	PermissionError     error
	OpenPermissionError error

	// PanicOn makes the named method panic after recording the call.
	PanicOn string

	// Utility
	AppVersion string
}

// NewMockUssdApp creates a new MockUssdApp with sensible defaults
func NewMockUssdApp() *MockUssdApp {
	return &MockUssdApp{
		Calls:             make([]MockCall, 0),
		AppVersion:        "1.0.0-test",
		GetDevicesResult:  []Device{},
		ListLinesResult:   []Line{},
		SendRequestResult: &SendResult{Status: "ok"},
		SendMessageResult: true,
		PermissionResult:  PermissionStatus{Granted: true, State: "device"},
	}
}

// recordCall records a method call
func (m *MockUssdApp) recordCall(method string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
	if m.PanicOn == method {
		panic("mock panic in " + method)
	}
}

// GetCalls returns all recorded calls
func (m *MockUssdApp) GetCalls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall{}, m.Calls...)
}

// ResetCalls clears all recorded calls
func (m *MockUssdApp) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = make([]MockCall, 0)
}

// GetLastCall returns the last recorded call
func (m *MockUssdApp) GetLastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	return &m.Calls[len(m.Calls)-1]
}

// WasMethodCalled checks if a method was called
func (m *MockUssdApp) WasMethodCalled(method string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, call := range m.Calls {
		if call.Method == method {
			return true
		}
	}
	return false
}

// GetLastCallByMethod returns the last call to a specific method
func (m *MockUssdApp) GetLastCallByMethod(method string) *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Calls) - 1; i >= 0; i-- {
		if m.Calls[i].Method == method {
			return &m.Calls[i]
		}
	}
	return nil
}

func (m *MockUssdApp) GetAppVersion() string {
	m.recordCall("GetAppVersion")
	return m.AppVersion
}

func (m *MockUssdApp) GetDevices(ctx context.Context) ([]Device, error) {
	m.recordCall("GetDevices")
	return m.GetDevicesResult, m.GetDevicesError
}

func (m *MockUssdApp) SendRequest(ctx context.Context, code string, line int) (*SendResult, error) {
	m.recordCall("SendRequest", code, line)
	return m.SendRequestResult, m.SendRequestError
}

func (m *MockUssdApp) SendMultiStepRequest(ctx context.Context, code string, line int, options []string, onUpdate func(string)) (*SendResult, error) {
	m.recordCall("SendMultiStepRequest", code, line, options)
	if m.SendMultiStepResult != nil && onUpdate != nil {
		for _, u := range m.SendMultiStepResult.Updates {
			onUpdate(u)
		}
	}
	return m.SendMultiStepResult, m.SendMultiStepError
}

func (m *MockUssdApp) SendMessage(ctx context.Context, text string) (bool, error) {
	m.recordCall("SendMessage", text)
	return m.SendMessageResult, m.SendMessageError
}

func (m *MockUssdApp) CancelSession(ctx context.Context) (bool, error) {
	m.recordCall("CancelSession")
	return m.CancelSessionResult, m.CancelSessionError
}

func (m *MockUssdApp) IsAutomationPermissionGranted(ctx context.Context) (PermissionStatus, error) {
	m.recordCall("IsAutomationPermissionGranted")
	return m.PermissionResult, m.PermissionError
}

func (m *MockUssdApp) OpenPermissionSettings(ctx context.Context) error {
	m.recordCall("OpenPermissionSettings")
	return m.OpenPermissionError
}

func (m *MockUssdApp) ListLines(ctx context.Context) ([]Line, error) {
	m.recordCall("ListLines")
	return m.ListLinesResult, m.ListLinesError
}

// SetupWithDevices configures mock with sample devices
func (m *MockUssdApp) SetupWithDevices(devices ...Device) *MockUssdApp {
	m.GetDevicesResult = devices
	return m
}

// SetupWithLines configures mock with sample lines
func (m *MockUssdApp) SetupWithLines(lines ...Line) *MockUssdApp {
	m.ListLinesResult = lines
	return m
}

// SetupWithError configures a specific method to return an error
func (m *MockUssdApp) SetupWithError(method string, err error) *MockUssdApp {
	switch method {
	case "GetDevices":
		m.GetDevicesError = err
	case "SendRequest":
		m.SendRequestError = err
	case "SendMultiStepRequest":
		m.SendMultiStepError = err
	case "SendMessage":
		m.SendMessageError = err
	case "CancelSession":
		m.CancelSessionError = err
	case "ListLines":
		m.ListLinesError = err
	case "IsAutomationPermissionGranted":
		m.PermissionError = err
	case "OpenPermissionSettings":
		m.OpenPermissionError = err
	}
	return m
}

// Common test errors
var (
	ErrDeviceNotFound   = errors.New("device not found")
	ErrDeviceOffline    = errors.New("device offline")
	ErrPermissionDenied = errors.New("permission denied")
	ErrTimeout          = errors.New("operation timed out")
)

// Sample test data factories

// SampleDevice returns a sample device for testing
func SampleDevice(id string) Device {
	return Device{
		ID:     id,
		Serial: id,
		State:  "device",
		Model:  "Pixel_6",
		Type:   "wired",
	}
}

// SampleLine returns a sample SIM line for testing
func SampleLine(slot int, carrier string) Line {
	return Line{
		ID:          slot,
		SubID:       slot + 1,
		DisplayName: carrier + " SIM",
		Carrier:     carrier,
		Number:      "+2250700000000",
	}
}
