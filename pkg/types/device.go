package types

// Device represents an Android device known to adb
type Device struct {
	ID      string `json:"id"`
	Serial  string `json:"serial"`
	State   string `json:"state"`
	Model   string `json:"model"`
	Product string `json:"product"`
	Type    string `json:"type"` // "wired" or "wireless"
}

// Line is a SIM subscription that can carry a USSD request
type Line struct {
	// ID is the value passed to dial requests: the SIM slot index.
	ID          int    `json:"id"`
	SubID       int    `json:"subId"`
	DisplayName string `json:"displayName"`
	Carrier     string `json:"carrier"`
	Number      string `json:"number,omitempty"`
	ICCID       string `json:"iccid,omitempty"`
}

// PermissionStatus reports whether the host may automate the device UI
type PermissionStatus struct {
	Granted bool   `json:"granted"`
	State   string `json:"state"`
	Detail  string `json:"detail,omitempty"`
}

// SendResult is returned by the USSD commands
type SendResult struct {
	Status  string   `json:"status"` // "ok" or "permission_required"
	Message string   `json:"message,omitempty"`
	Updates []string `json:"updates,omitempty"`
}

// Send result statuses
const (
	StatusOK                 = "ok"
	StatusPermissionRequired = "permission_required"
	StatusNotFound           = "not_found"
)
