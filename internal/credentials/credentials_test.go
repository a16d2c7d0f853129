package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func cookieLine(domain, name string, expires time.Time) string {
	exp := int64(0)
	if !expires.IsZero() {
		exp = expires.Unix()
	}
	return fmt.Sprintf("%s\tTRUE\t/\tTRUE\t%d\t%s\tvalue", domain, exp, name)
}

func writeCookies(t *testing.T, lines ...string) *Monitor {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.txt")
	content := "# Netscape HTTP Cookie File\n\n" + strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write cookies: %v", err)
	}
	m := NewMonitor(path)
	m.now = func() time.Time { return fixedNow }
	return m
}

func TestParseNetscape(t *testing.T) {
	input := strings.Join([]string{
		"# Netscape HTTP Cookie File",
		"",
		".youtube.com\tTRUE\t/\tTRUE\t1790000000\tSID\tabc",
		"#HttpOnly_.youtube.com\tTRUE\t/\tTRUE\t0\tHSID\tdef",
		"broken line",
		".instagram.com\tTRUE\t/\tFALSE\tnope\tsessionid\tghi\r",
	}, "\n")

	cookies, err := ParseNetscape(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseNetscape() error = %v", err)
	}
	if len(cookies) != 3 {
		t.Fatalf("got %d cookies, want 3", len(cookies))
	}

	if c := cookies[0]; c.Name != "SID" || c.Value != "abc" || !c.Secure || c.Expires.Unix() != 1790000000 {
		t.Errorf("cookie[0] = %+v", c)
	}
	if c := cookies[1]; c.Name != "HSID" || !c.HttpOnly || !c.Expires.IsZero() {
		t.Errorf("cookie[1] = %+v, want http-only session cookie", c)
	}
	if c := cookies[2]; c.Value != "ghi" || c.Secure || !c.Expires.IsZero() {
		t.Errorf("cookie[2] = %+v", c)
	}
}

func TestMonitor_Check(t *testing.T) {
	day := 24 * time.Hour

	tests := []struct {
		name         string
		lines        []string
		wantValid    bool
		wantSoon     bool
		wantContains string
	}{
		{
			name:         "valid",
			lines:        []string{cookieLine(".youtube.com", "SID", fixedNow.Add(300*day)), cookieLine(".youtube.com", "HSID", fixedNow.Add(300*day))},
			wantValid:    true,
			wantContains: "Cookies are valid",
		},
		{
			name:         "empty",
			lines:        nil,
			wantContains: "cookies.txt is empty",
		},
		{
			name:         "important cookie expired",
			lines:        []string{cookieLine(".youtube.com", "SID", fixedNow.Add(300*day)), cookieLine(".youtube.com", "__Secure-3PSID", fixedNow.Add(-day))},
			wantContains: "Important cookie expired (__Secure-3PSID)",
		},
		{
			name:         "trivial cookie expired is ignored",
			lines:        []string{cookieLine(".youtube.com", "SID", time.Time{}), cookieLine(".youtube.com", "PREF", fixedNow.Add(-day))},
			wantValid:    true,
			wantContains: "Cookies are valid",
		},
		{
			name:         "no login cookies",
			lines:        []string{cookieLine(".youtube.com", "PREF", fixedNow.Add(300*day))},
			wantContains: "Missing YouTube login cookies",
		},
		{
			name:         "expiring soon",
			lines:        []string{cookieLine(".youtube.com", "SID", fixedNow.Add(2*day+time.Hour)), cookieLine(".youtube.com", "SSID", fixedNow.Add(5*day))},
			wantValid:    true,
			wantSoon:     true,
			wantContains: "Cookies will expire in 3 day(s)",
		},
		{
			name:         "instagram session",
			lines:        []string{cookieLine(".instagram.com", "sessionid", fixedNow.Add(90*day)), cookieLine(".google.com", "SID", fixedNow.Add(90*day))},
			wantValid:    true,
			wantContains: "Cookies are valid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := writeCookies(t, tt.lines...)
			got := m.Check()
			if got.Valid != tt.wantValid || got.ExpiringSoon != tt.wantSoon {
				t.Errorf("Check() = %+v, want valid=%v expiringSoon=%v", got, tt.wantValid, tt.wantSoon)
			}
			if !strings.Contains(got.Message, tt.wantContains) {
				t.Errorf("Check().Message = %q, want it to contain %q", got.Message, tt.wantContains)
			}
		})
	}
}

func TestMonitor_Missing(t *testing.T) {
	m := NewMonitor(filepath.Join(t.TempDir(), "cookies.txt"))

	if got := m.Check(); got.Valid || got.Message != "No cookies.txt found" {
		t.Errorf("Check() = %+v", got)
	}
	if _, ok := m.CredentialPath(); ok {
		t.Error("CredentialPath() should withhold a missing file")
	}
	if m.Present() {
		t.Error("Present() = true for a missing file")
	}
}

func TestMonitor_CredentialPath(t *testing.T) {
	day := 24 * time.Hour

	soon := writeCookies(t, cookieLine(".youtube.com", "SID", fixedNow.Add(day)))
	if path, ok := soon.CredentialPath(); !ok || path != soon.Path() {
		t.Errorf("expiring-soon credentials should still be used, got %q %v", path, ok)
	}

	expired := writeCookies(t, cookieLine(".youtube.com", "SID", fixedNow.Add(-day)))
	if _, ok := expired.CredentialPath(); ok {
		t.Error("expired credentials should be withheld")
	}
	if !expired.Present() {
		t.Error("Present() = false for an existing file")
	}

	var nilMonitor *Monitor
	if _, ok := nilMonitor.CredentialPath(); ok {
		t.Error("nil monitor should report no credentials")
	}
}

func TestConvertJSON(t *testing.T) {
	input := `[
  {"domain":".youtube.com","name":"SID","value":"old","path":"/","secure":true,"expirationDate":1790000000.75},
  {"domain":"www.instagram.com","name":"sessionid","value":"s","secure":false}
]
[
  {"domain":".youtube.com","name":"SID","value":"new","path":"/","secure":true,"expirationDate":1790000001.2},
  {"domain":"","name":"orphan","value":"x"}
]`

	var out bytes.Buffer
	summary, err := ConvertJSON(strings.NewReader(input), &out)
	if err != nil {
		t.Fatalf("ConvertJSON() error = %v", err)
	}

	want := "# Netscape HTTP Cookie File\n" +
		"# https://curl.haxx.se/docs/http-cookies.html\n" +
		"# This file was generated automatically\n\n" +
		".youtube.com\tTRUE\t/\tTRUE\t1790000001\tSID\tnew\n" +
		".www.instagram.com\tTRUE\t/\tFALSE\t0\tsessionid\ts\n"
	if out.String() != want {
		t.Errorf("output =\n%s\nwant\n%s", out.String(), want)
	}

	if summary.Total != 2 {
		t.Errorf("Total = %d, want 2", summary.Total)
	}
	if !reflect.DeepEqual(summary.Platforms, []string{"Instagram", "YouTube"}) {
		t.Errorf("Platforms = %v", summary.Platforms)
	}

	// The converted file must round-trip through the monitor's parser.
	cookies, err := ParseNetscape(&out)
	if err != nil || len(cookies) != 2 {
		t.Fatalf("ParseNetscape(converted) = %d cookies, %v", len(cookies), err)
	}
}

func TestConvertJSON_Errors(t *testing.T) {
	if _, err := ConvertJSON(strings.NewReader(`[]`), &bytes.Buffer{}); !errors.Is(err, ErrNoCookies) {
		t.Errorf("empty export error = %v, want ErrNoCookies", err)
	}
	if _, err := ConvertJSON(strings.NewReader(`{not json`), &bytes.Buffer{}); err == nil {
		t.Error("malformed export should fail")
	}
}
