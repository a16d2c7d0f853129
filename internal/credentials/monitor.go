// Package credentials inspects the exported browser cookie file handed to
// the extractor and converts browser JSON exports into it.
package credentials

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strings"
	"time"
)

// Health is the outcome of one credential check.
type Health struct {
	Valid        bool   `json:"valid"`
	Message      string `json:"message"`
	ExpiringSoon bool   `json:"expiringSoon"`
}

// importantCookies are the authentication cookies whose expiry matters.
// Names are matched by substring.
var importantCookies = []string{
	"LOGIN_INFO", "SID", "SSID", "HSID", "APISID", "SAPISID",
	"__Secure-1PSID", "__Secure-3PSID", "__Secure-1PAPISID", "__Secure-3PAPISID",
	"sessionid", "csrftoken", "ds_user_id",
}

const expiryWarning = 7 * 24 * time.Hour

// Monitor checks the credential file on every call; nothing is cached.
type Monitor struct {
	path string
	now  func() time.Time
}

// NewMonitor creates a monitor for the cookie file at path.
func NewMonitor(path string) *Monitor {
	return &Monitor{path: path, now: time.Now}
}

// Path returns the monitored file path.
func (m *Monitor) Path() string {
	return m.path
}

// Check reads and evaluates the credential file.
func (m *Monitor) Check() Health {
	f, err := os.Open(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Health{Message: "No cookies.txt found"}
	}
	if err != nil {
		return Health{Message: fmt.Sprintf("Error reading cookies: %v", err)}
	}
	defer f.Close()

	cookies, err := ParseNetscape(f)
	if err != nil {
		return Health{Message: fmt.Sprintf("Error reading cookies: %v", err)}
	}
	if len(cookies) == 0 {
		return Health{Message: "cookies.txt is empty"}
	}

	now := m.now()
	var (
		hasLogin, hasSession bool
		expiredName          string
		earliest             time.Time
	)
	for _, c := range cookies {
		if strings.Contains(c.Name, "LOGIN_INFO") || strings.Contains(c.Name, "SID") {
			hasLogin = true
		}
		if strings.Contains(c.Name, "SSID") || strings.Contains(c.Name, "HSID") {
			hasSession = true
		}
		if c.Expires.IsZero() || !isImportant(c.Name) {
			continue
		}
		switch {
		case c.Expires.Before(now):
			expiredName = c.Name
		case c.Expires.Before(now.Add(expiryWarning)):
			if earliest.IsZero() || c.Expires.Before(earliest) {
				earliest = c.Expires
			}
		}
	}

	switch {
	case expiredName != "":
		return Health{Message: fmt.Sprintf("Important cookie expired (%s). Please re-export from browser.", expiredName)}
	case !hasLogin && !hasSession:
		return Health{Message: "Missing YouTube login cookies. Make sure you are logged in when exporting."}
	case !earliest.IsZero():
		days := int(math.Ceil(earliest.Sub(now).Hours() / 24))
		return Health{
			Valid:        true,
			Message:      fmt.Sprintf("Cookies will expire in %d day(s). Consider refreshing soon.", days),
			ExpiringSoon: true,
		}
	default:
		return Health{Valid: true, Message: "Cookies are valid"}
	}
}

// CredentialPath returns the file to pass to the extractor, or false when
// the credentials are missing or invalid and access should be anonymous.
func (m *Monitor) CredentialPath() (string, bool) {
	if m == nil || m.path == "" {
		return "", false
	}
	if !m.Check().Valid {
		return "", false
	}
	return m.path, true
}

// Present reports whether a credential file exists, valid or not.
func (m *Monitor) Present() bool {
	if m == nil || m.path == "" {
		return false
	}
	_, err := os.Stat(m.path)
	return err == nil
}

func isImportant(name string) bool {
	for _, n := range importantCookies {
		if strings.Contains(name, n) {
			return true
		}
	}
	return false
}
