// Package credentials owns the opaque credential bundle handed to yt-dlp. The
// pipeline never inspects the bundle, it only asks the bundle to apply itself
// to an outgoing yt-dlp command.
package credentials

import (
	"errors"
	"fmt"
	"os"

	"github.com/lrstanley/go-ytdlp"
	"github.com/mitchellh/go-homedir"
)

type Config struct {
	CookieFile         string `yaml:"cookie_file" env:"CREDENTIALS_COOKIE_FILE"`
	CookiesFromBrowser string `yaml:"cookies_from_browser" env:"CREDENTIALS_COOKIES_FROM_BROWSER"`
	Watch              bool   `yaml:"watch" env:"CREDENTIALS_WATCH" env-default:"false"`
}

var ErrAmbiguousSource = errors.New("credentials: cookie_file and cookies_from_browser are mutually exclusive")

// Bundle is an immutable cookie source. The zero value is a valid, empty
// bundle which applies nothing.
type Bundle struct {
	cookieFile string
	browser    string
}

// New builds a bundle from the configuration provided. The cookie file path
// has '~' expanded, and must exist if provided.
func New(config Config) (Bundle, error) {
	if config.CookieFile != "" && config.CookiesFromBrowser != "" {
		return Bundle{}, ErrAmbiguousSource
	}

	if config.CookiesFromBrowser != "" {
		return Bundle{browser: config.CookiesFromBrowser}, nil
	}

	if config.CookieFile == "" {
		return Bundle{}, nil
	}

	path, err := homedir.Expand(config.CookieFile)
	if err != nil {
		return Bundle{}, fmt.Errorf("failed to expand cookie file path %s: %w", config.CookieFile, err)
	}
	if _, err := os.Stat(path); err != nil {
		return Bundle{}, fmt.Errorf("cookie file %s is not accessible: %w", path, err)
	}

	return Bundle{cookieFile: path}, nil
}

// Empty returns true if this bundle carries no credentials.
func (bundle Bundle) Empty() bool {
	return bundle.cookieFile == "" && bundle.browser == ""
}

// Apply attaches the bundle's cookie source to the yt-dlp command provided.
func (bundle Bundle) Apply(cmd *ytdlp.Command) *ytdlp.Command {
	switch {
	case bundle.cookieFile != "":
		return cmd.Cookies(bundle.cookieFile)
	case bundle.browser != "":
		return cmd.CookiesFromBrowser(bundle.browser)
	}

	return cmd
}

// Args returns the yt-dlp flags this bundle contributes.
func (bundle Bundle) Args() []string {
	switch {
	case bundle.cookieFile != "":
		return []string{"--cookies", bundle.cookieFile}
	case bundle.browser != "":
		return []string{"--cookies-from-browser", bundle.browser}
	}

	return nil
}

// String describes the bundle without revealing any cookie content.
func (bundle Bundle) String() string {
	switch {
	case bundle.cookieFile != "":
		return fmt.Sprintf("Bundle{cookie_file=%s}", bundle.cookieFile)
	case bundle.browser != "":
		return fmt.Sprintf("Bundle{browser=%s}", bundle.browser)
	}

	return "Bundle{empty}"
}

// CookieFile returns the path of the cookie file backing this bundle, if any.
func (bundle Bundle) CookieFile() (string, bool) {
	return bundle.cookieFile, bundle.cookieFile != ""
}
