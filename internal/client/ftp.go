package client

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

// DefaultNOAAAddr is the NOAA archive FTP host serving both the GSOD and
// ISD datasets.
const DefaultNOAAAddr = "ftp.ncdc.noaa.gov:21"

// ftpFetcher retrieves and decompresses gzipped archive files over
// anonymous FTP. One connection per file: yearly archive fetches are rare
// enough that holding connections open buys nothing.
type ftpFetcher struct {
	addr    string
	timeout time.Duration
}

func newFTPFetcher(addr string, timeout time.Duration) *ftpFetcher {
	if addr == "" {
		addr = DefaultNOAAAddr
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ftpFetcher{addr: addr, timeout: timeout}
}

// fetchGzip downloads path and returns its gunzipped contents.
// Dial and login failures map to ErrRemoteUnavailable; a failed RETR maps
// to ErrNoData since NOAA returns 550 for station-years with no archive.
func (f *ftpFetcher) fetchGzip(ctx context.Context, path string) ([]byte, error) {
	conn, err := ftp.Dial(f.addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(f.timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrRemoteUnavailable, f.addr, err)
	}
	defer conn.Quit()

	if err := conn.Login("anonymous", "anonymous"); err != nil {
		return nil, fmt.Errorf("%w: login: %v", ErrRemoteUnavailable, err)
	}

	resp, err := conn.Retr(path)
	if err != nil {
		if isPermanentFTPError(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoData, path)
		}
		return nil, fmt.Errorf("%w: retr %s: %v", ErrRemoteUnavailable, path, err)
	}
	defer resp.Close()

	gz, err := gzip.NewReader(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, path, err)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, path, err)
	}
	return data, nil
}

// isPermanentFTPError reports whether err is a 5xx FTP reply, meaning the
// file does not exist rather than the server being down.
func isPermanentFTPError(err error) bool {
	var reply *textproto.Error
	if errors.As(err, &reply) {
		return reply.Code >= 500 && reply.Code < 600
	}
	return strings.Contains(err.Error(), "550")
}
