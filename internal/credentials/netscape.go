package credentials

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const httpOnlyPrefix = "#HttpOnly_"

var ErrNoCookies = errors.New("cookie file contains no cookies")

// ParseNetscape parses a Netscape cookies.txt file, which is the format
// browsers' cookie export extensions produce and yt-dlp consumes. Each line is
// seven TAB separated fields: domain, include-subdomains, path, secure,
// expiry (unix seconds), name and value.
func ParseNetscape(r io.Reader) ([]*http.Cookie, error) {
	cookies := make([]*http.Cookie, 0)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			line = strings.TrimPrefix(line, httpOnlyPrefix)
			httpOnly = true
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, "\t")
		if len(parts) < 7 {
			continue
		}

		expiresUnix, err := strconv.ParseInt(parts[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed expiry %q for cookie %s", parts[4], parts[5])
		}

		cookie := &http.Cookie{
			Domain:   parts[0],
			Path:     parts[2],
			Secure:   strings.EqualFold(parts[3], "TRUE"),
			Name:     parts[5],
			Value:    parts[6],
			HttpOnly: httpOnly,
		}
		if expiresUnix > 0 {
			cookie.Expires = time.Unix(expiresUnix, 0)
		}
		cookies = append(cookies, cookie)
	}

	return cookies, scanner.Err()
}

// Report summarises a cookie file's health.
type Report struct {
	Total   int
	Expired int
}

// Validate parses the cookie file at the path given and reports how many of
// its cookies have expired relative to now. A file with no cookies is an error.
func Validate(path string, now time.Time) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, err
	}
	defer f.Close()

	cookies, err := ParseNetscape(f)
	if err != nil {
		return Report{}, err
	}
	if len(cookies) == 0 {
		return Report{}, ErrNoCookies
	}

	report := Report{Total: len(cookies)}
	for _, c := range cookies {
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			report.Expired++
		}
	}

	return report, nil
}
