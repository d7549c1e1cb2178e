package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"compose-migrate/src/target"
	"compose-migrate/src/util/progress"
)

const ftpDialTimeout = 15 * time.Second

// uploadFTP delivers the file over FTP. Credentials embedded in the
// destination URL win over the ones passed in Options.
func uploadFTP(ctx context.Context, src string, dest target.Destination, opts Options) error {
	user, pass := dest.User, dest.Password
	if user == "" {
		user = opts.FTPUser
	}
	if pass == "" {
		pass = opts.FTPPassword
	}
	if user == "" {
		user = "anonymous"
	}

	conn, err := ftp.Dial(dest.Addr(), ftp.DialWithContext(ctx), ftp.DialWithTimeout(ftpDialTimeout))
	if err != nil {
		return &Error{Kind: KindConnectionFailed, Dest: dest.String(), Err: err}
	}
	defer conn.Quit()

	if err := conn.Login(user, pass); err != nil {
		return &Error{Kind: KindAuthFailed, Dest: dest.String(), Err: err}
	}

	remote := strings.TrimPrefix(dest.Path, "/")
	if strings.HasSuffix(dest.Path, "/") {
		remote = path.Join(remote, filepath.Base(src))
	}
	// Create parent directories one level at a time; servers answer 550
	// for ones that already exist, which is fine.
	if dir := path.Dir(remote); dir != "." {
		parts := strings.Split(dir, "/")
		for i := range parts {
			_ = conn.MakeDir(strings.Join(parts[:i+1], "/"))
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return &Error{Kind: KindIO, Dest: dest.String(), Err: err}
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return &Error{Kind: KindIO, Dest: dest.String(), Err: err}
	}

	rd := io.Reader(in)
	if opts.Out != nil {
		rd = progress.NewReader(in, info.Size(), "upload "+filepath.Base(src), opts.Out)
	}
	if err := conn.Stor(remote, rd); err != nil {
		return &Error{Kind: KindIO, Dest: dest.String(), Err: err}
	}

	size, err := remoteSize(conn, remote)
	if err != nil {
		return &Error{Kind: KindIO, Dest: dest.String(), Err: fmt.Errorf("verify upload: %w", err)}
	}
	if size != info.Size() {
		_ = conn.Delete(remote)
		return &Error{
			Kind: KindSizeMismatch,
			Dest: dest.String(),
			Err:  fmt.Errorf("remote has %d bytes, expected %d", size, info.Size()),
		}
	}

	if opts.Move {
		in.Close()
		if err := os.Remove(src); err != nil {
			return &Error{Kind: KindIO, Dest: dest.String(), Err: fmt.Errorf("remove source after move: %w", err)}
		}
	}
	return nil
}

// ftpLister is the slice of the FTP connection the size check needs.
type ftpLister interface {
	FileSize(path string) (int64, error)
	List(path string) ([]*ftp.Entry, error)
}

// remoteSize reports the size of an uploaded file, via SIZE when the
// server supports it and a parent-directory listing otherwise. A size that
// cannot be determined either way fails the upload rather than passing
// unverified.
func remoteSize(c ftpLister, remote string) (int64, error) {
	size, err := c.FileSize(remote)
	if err == nil {
		return size, nil
	}
	entries, lerr := c.List(path.Dir(remote))
	if lerr != nil {
		return 0, fmt.Errorf("SIZE failed (%v) and LIST failed: %w", err, lerr)
	}
	name := path.Base(remote)
	for _, e := range entries {
		if e.Name == name && e.Type == ftp.EntryTypeFile {
			return int64(e.Size), nil
		}
	}
	return 0, fmt.Errorf("SIZE failed (%v) and %s not in LIST output", err, name)
}
