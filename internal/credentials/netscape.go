package credentials

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

const httpOnlyPrefix = "#HttpOnly_"

// ParseNetscape parses a Netscape cookies.txt file.
// Format: domain flag path secure expiration name value
func ParseNetscape(r io.Reader) ([]*http.Cookie, error) {
	var cookies []*http.Cookie
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			line = strings.TrimPrefix(line, httpOnlyPrefix)
			httpOnly = true
		}
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, "\t")
		if len(parts) < 7 {
			continue
		}

		cookie := &http.Cookie{
			Domain:   parts[0],
			Path:     parts[2],
			Secure:   strings.EqualFold(parts[3], "TRUE"),
			Name:     parts[5],
			Value:    parts[6],
			HttpOnly: httpOnly,
		}
		// Zero or unparseable expiry marks a session cookie.
		if exp, err := strconv.ParseInt(parts[4], 10, 64); err == nil && exp > 0 {
			cookie.Expires = time.Unix(exp, 0)
		}
		cookies = append(cookies, cookie)
	}

	return cookies, scanner.Err()
}

// browserCookie is one entry of a browser extension's JSON export.
type browserCookie struct {
	Domain         string  `json:"domain"`
	Name           string  `json:"name"`
	Value          string  `json:"value"`
	Path           string  `json:"path"`
	Secure         bool    `json:"secure"`
	ExpirationDate float64 `json:"expirationDate"`
}

// Summary describes a finished conversion.
type Summary struct {
	Total     int
	Platforms []string
}

var ErrNoCookies = errors.New("no cookies found in export")

var platformDomains = []struct {
	name    string
	needles []string
}{
	{"YouTube", []string{"youtube", "google"}},
	{"Facebook", []string{"facebook", "fb.com"}},
	{"Instagram", []string{"instagram"}},
	{"TikTok", []string{"tiktok"}},
	{"Twitter", []string{"twitter", "x.com"}},
}

// ConvertJSON reads one or more concatenated JSON cookie arrays from r and
// writes them to w in Netscape format. Duplicate domain/name pairs keep the
// last occurrence.
func ConvertJSON(r io.Reader, w io.Writer) (Summary, error) {
	dec := json.NewDecoder(r)

	index := make(map[string]int)
	var cookies []browserCookie
	for {
		var batch []browserCookie
		err := dec.Decode(&batch)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Summary{}, fmt.Errorf("parse cookie export: %w", err)
		}
		for _, c := range batch {
			if c.Name == "" || c.Domain == "" {
				continue
			}
			key := c.Domain + "|" + c.Name
			if i, ok := index[key]; ok {
				cookies[i] = c
				continue
			}
			index[key] = len(cookies)
			cookies = append(cookies, c)
		}
	}
	if len(cookies) == 0 {
		return Summary{}, ErrNoCookies
	}

	bw := bufio.NewWriter(w)
	bw.WriteString("# Netscape HTTP Cookie File\n")
	bw.WriteString("# https://curl.haxx.se/docs/http-cookies.html\n")
	bw.WriteString("# This file was generated automatically\n\n")

	seen := make(map[string]bool)
	for _, c := range cookies {
		domain := c.Domain
		if !strings.HasPrefix(domain, ".") {
			domain = "." + domain
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		secure := "FALSE"
		if c.Secure {
			secure = "TRUE"
		}
		fmt.Fprintf(bw, "%s\tTRUE\t%s\t%s\t%d\t%s\t%s\n",
			domain, path, secure, int64(math.Floor(c.ExpirationDate)), c.Name, c.Value)

		base := strings.ToLower(strings.TrimPrefix(domain, "."))
		for _, p := range platformDomains {
			for _, needle := range p.needles {
				if strings.Contains(base, needle) {
					seen[p.name] = true
				}
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return Summary{}, err
	}

	summary := Summary{Total: len(cookies)}
	for name := range seen {
		summary.Platforms = append(summary.Platforms, name)
	}
	sort.Strings(summary.Platforms)
	return summary, nil
}
