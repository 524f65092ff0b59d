package settings

import (
	"errors"
	"time"
)

// KeyGoogleSignIn stores the Google sign-in toggle.
const KeyGoogleSignIn = "google_signin_enabled"

// ErrNotFound is returned when a setting has never been written.
var ErrNotFound = errors.New("settings: not found")

// Record is one versioned row of app_settings.
type Record struct {
	Key       string
	Value     string
	Version   int64
	UpdatedBy string
	UpdatedAt time.Time
}

// Setting is the admin view of the sign-in toggle.
type Setting struct {
	GoogleSignInEnabled bool
	Version             int64
	UpdatedBy           string
	UpdatedAt           time.Time
}
