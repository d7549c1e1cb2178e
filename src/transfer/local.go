package transfer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"compose-migrate/src/target"
	"compose-migrate/src/util/progress"
)

// uploadLocal copies src to the destination path. A destination that is an
// existing directory receives the file under its own basename.
func uploadLocal(src string, dest target.Destination, opts Options) error {
	dst := dest.Path
	if info, err := os.Stat(dst); err == nil && info.IsDir() {
		dst = filepath.Join(dst, filepath.Base(src))
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &Error{Kind: KindIO, Dest: dest.String(), Err: err}
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

	out, err := os.Create(dst)
	if err != nil {
		return &Error{Kind: KindIO, Dest: dest.String(), Err: err}
	}

	rd := io.Reader(in)
	if opts.Out != nil {
		rd = progress.NewReader(in, info.Size(), "copy "+filepath.Base(src), opts.Out)
	}
	if _, err := io.Copy(out, rd); err != nil {
		out.Close()
		os.Remove(dst)
		return &Error{Kind: KindIO, Dest: dest.String(), Err: err}
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return &Error{Kind: KindIO, Dest: dest.String(), Err: err}
	}

	written, err := os.Stat(dst)
	if err != nil {
		return &Error{Kind: KindIO, Dest: dest.String(), Err: err}
	}
	if written.Size() != info.Size() {
		os.Remove(dst)
		return &Error{
			Kind: KindSizeMismatch,
			Dest: dest.String(),
			Err:  fmt.Errorf("wrote %d bytes, expected %d", written.Size(), info.Size()),
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
