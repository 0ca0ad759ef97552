package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPClient downloads feed archives over plain FTP. Some vendors
// mirror the daily archive on an FTP endpoint; selection happens via
// the transport config key. Upload and import trigger always go over
// SSH, so this client is download-only.
type FTPClient struct {
	opts Options
}

// NewFTPClient creates a new FTPClient with the given options.
func NewFTPClient(opts Options) *FTPClient {
	if opts.Port == 0 {
		opts.Port = 21
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &FTPClient{opts: opts}
}

// DownloadToFile retrieves remotePath into localPath. Returns bytes written.
func (c *FTPClient) DownloadToFile(ctx context.Context, remotePath, localPath string) (int64, error) {
	addr := net.JoinHostPort(c.opts.Host, fmt.Sprintf("%d", c.opts.Port))

	zap.L().Debug("ftp: connecting", zap.String("host", addr), zap.String("remote", remotePath))

	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(c.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return 0, classifyConnectErr(err)
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(c.opts.User, c.opts.Password); err != nil {
		return 0, classifyConnectErr(err)
	}

	resp, err := conn.Retr(remotePath)
	if err != nil {
		var proto *textproto.Error
		if errors.As(err, &proto) && proto.Code == ftp.StatusFileUnavailable {
			return 0, eris.Wrapf(ErrRemoteFileNotFound, "ftp: retrieve %s", remotePath)
		}
		return 0, eris.Wrapf(err, "ftp: retrieve %s", remotePath)
	}
	defer resp.Close() //nolint:errcheck

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return 0, eris.Wrap(err, "ftp: create local directory")
	}

	dst, err := os.Create(localPath)
	if err != nil {
		return 0, eris.Wrap(err, "ftp: create local file")
	}
	defer dst.Close() //nolint:errcheck

	n, err := io.Copy(dst, resp)
	if err != nil {
		return n, eris.Wrapf(err, "ftp: download %s", remotePath)
	}

	zap.L().Info("ftp: download complete",
		zap.String("remote", remotePath),
		zap.String("local", localPath),
		zap.Int64("bytes", n),
	)
	return n, nil
}
