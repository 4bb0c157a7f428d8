package credentials_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hbomb79/Phonograph/internal/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/fs"
)

const netscapeFixture = "# Netscape HTTP Cookie File\n" +
	"\n" +
	".youtube.com\tTRUE\t/\tTRUE\t4102444800\tPREF\tf6=40000000\n" +
	"#HttpOnly_.youtube.com\tTRUE\t/\tTRUE\t4102444800\tLOGIN_INFO\tabc\n" +
	".youtube.com\tTRUE\t/\tFALSE\t946684800\tVISITOR\told\n" +
	"this line is not a cookie\n"

func Test_ParseNetscape(t *testing.T) {
	cookies, err := credentials.ParseNetscape(strings.NewReader(netscapeFixture))
	require.NoError(t, err)
	require.Len(t, cookies, 3)

	assert.Equal(t, "PREF", cookies[0].Name)
	assert.Equal(t, "f6=40000000", cookies[0].Value)
	assert.Equal(t, ".youtube.com", cookies[0].Domain)
	assert.True(t, cookies[0].Secure)
	assert.False(t, cookies[0].HttpOnly)

	assert.Equal(t, "LOGIN_INFO", cookies[1].Name)
	assert.True(t, cookies[1].HttpOnly)

	assert.False(t, cookies[2].Secure)
}

func Test_ParseNetscape_MalformedExpiry(t *testing.T) {
	_, err := credentials.ParseNetscape(strings.NewReader(".x.com\tTRUE\t/\tTRUE\tsoon\tA\tB\n"))
	assert.Error(t, err)
}

func Test_Validate(t *testing.T) {
	dir := fs.NewDir(t, "credentials",
		fs.WithFile("cookies.txt", netscapeFixture),
		fs.WithFile("empty.txt", "# Netscape HTTP Cookie File\n"),
	)
	defer dir.Remove()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	report, err := credentials.Validate(dir.Join("cookies.txt"), now)
	require.NoError(t, err)
	assert.Equal(t, credentials.Report{Total: 3, Expired: 1}, report)

	_, err = credentials.Validate(dir.Join("empty.txt"), now)
	assert.ErrorIs(t, err, credentials.ErrNoCookies)

	_, err = credentials.Validate(dir.Join("missing.txt"), now)
	assert.Error(t, err)
}

func Test_Watcher_RevalidatesOnChange(t *testing.T) {
	dir := fs.NewDir(t, "credentials", fs.WithFile("cookies.txt", netscapeFixture))
	defer dir.Remove()

	bundle, err := credentials.New(credentials.Config{CookieFile: dir.Join("cookies.txt")})
	require.NoError(t, err)

	checks := make(chan credentials.Report, 16)
	watcher := credentials.NewWatcher(bundle).OnCheck(func(r credentials.Report, err error) {
		if err == nil {
			checks <- r
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, watcher.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	select {
	case r := <-checks:
		assert.Equal(t, 3, r.Total)
	case <-time.After(5 * time.Second):
		t.Fatal("initial validation did not occur")
	}

	// The watch is registered after the initial check, give it a moment.
	time.Sleep(200 * time.Millisecond)
	single := ".youtube.com\tTRUE\t/\tTRUE\t4102444800\tPREF\tx\n"
	require.NoError(t, os.WriteFile(dir.Join("cookies.txt"), []byte(single), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case r := <-checks:
			if r.Total == 1 {
				return
			}
		case <-deadline:
			t.Fatal("cookie file change was not re-validated")
		}
	}
}

func Test_Watcher_NoCookieFile(t *testing.T) {
	watcher := credentials.NewWatcher(credentials.Bundle{})
	assert.NoError(t, watcher.Run(context.Background()))
}
