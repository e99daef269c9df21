package apupdater

// ErrorCode is the closed set of outcomes update_firmware-equivalent
// orchestration can produce. The CLI maps each to a stable exit code.
type ErrorCode int

const (
	ErrDone ErrorCode = iota
	ErrNeedROUpdate
	ErrNoImage
	ErrSystemImage
	ErrInvalidImage
	ErrSetCookies
	ErrWriteFirmware
	ErrPlatform
	ErrTarget
	ErrRootKey
	ErrTPMRollback
	ErrUnknown
)

var errorMessages = [...]string{
	ErrDone:          "Done (no update found or perform).",
	ErrNeedROUpdate:  "RO Update is needed but not allowed.",
	ErrNoImage:       "No image to update; considered as failure.",
	ErrSystemImage:   "Cannot load system active firmware.",
	ErrInvalidImage:  "The given firmware image is not valid.",
	ErrSetCookies:    "Failed to set system cookies/flags for update.",
	ErrWriteFirmware: "Failed to write the firmware after preparation.",
	ErrPlatform:      "Platform is not compatible with this firmware image.",
	ErrTarget:        "Target update section does not seem to be available.",
	ErrRootKey:       "RO root key is not compatible to given firmware image.",
	ErrTPMRollback:   "Firmware version is older than TPM anti-rollback record.",
	ErrUnknown:       "Unknown error.",
}

// String returns the stable, human-readable message for the code, mirroring
// the original updater_error_messages table.
func (c ErrorCode) String() string {
	if int(c) < 0 || int(c) >= len(errorMessages) {
		return errorMessages[ErrUnknown]
	}
	return errorMessages[c]
}
