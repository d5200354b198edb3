package catalog

import (
	"context"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/reelmatch/match-cli/internal/resilience"
)

// FTPOptions configures FTP feed downloads.
type FTPOptions struct {
	Timeout time.Duration
	Retries int
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "catalog: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("catalog: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	path = u.Path
	if path == "" {
		return "", "", eris.New("catalog: empty path in ftp url")
	}

	return host, path, nil
}

// FetchFTP downloads a feed file over FTP and returns its contents. Transient
// failures are retried with backoff.
func FetchFTP(ctx context.Context, feedURL string, opts FTPOptions) ([]byte, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	retryCfg := resilience.DefaultRetryConfig()
	if opts.Retries > 0 {
		retryCfg.MaxAttempts = opts.Retries
	}
	retryCfg.OnRetry = resilience.RetryLogger("ftp", "fetch feed")

	return resilience.DoVal(ctx, retryCfg, func(ctx context.Context) ([]byte, error) {
		return fetchFTPOnce(ctx, feedURL, opts.Timeout)
	})
}

func fetchFTPOnce(ctx context.Context, feedURL string, timeout time.Duration) ([]byte, error) {
	host, path, err := parseFTPURL(feedURL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("catalog: ftp connecting", zap.String("host", host), zap.String("path", path))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "catalog: ftp dial")
	}
	defer conn.Quit()

	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		return nil, eris.Wrap(err, "catalog: ftp login")
	}

	resp, err := conn.Retr(path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: ftp retrieve")
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: ftp read")
	}
	return data, nil
}
