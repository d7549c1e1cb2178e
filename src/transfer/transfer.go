// Package transfer delivers finished archives to their destination over
// one of the supported transports: local filesystem, scp, or ftp.
package transfer

import (
	"context"
	"fmt"
	"io"

	"compose-migrate/src/target"
)

// Kind classifies a transfer failure so callers can react differently to
// bad credentials versus an unreachable host versus a corrupt upload.
type Kind string

const (
	KindAuthFailed       Kind = "auth_failed"
	KindConnectionFailed Kind = "connection_failed"
	KindSizeMismatch     Kind = "size_mismatch"
	KindIO               Kind = "io"
)

// Error wraps a transfer failure with its classification and destination.
type Error struct {
	Kind Kind
	Dest string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transfer to %s failed (%s): %v", e.Dest, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options tunes a single upload.
type Options struct {
	// FTPUser and FTPPassword override credentials embedded in the
	// destination URL. URL credentials win when both are present.
	FTPUser     string
	FTPPassword string

	// SSHPassword enables password authentication for scp destinations
	// when no agent key is accepted.
	SSHPassword string

	// Move deletes the source file after a verified upload.
	Move bool

	// Out, when set, receives progress output during the upload.
	Out io.Writer
}

// Upload delivers the file at src to dest, dispatching on the destination
// scheme. Network uploads are verified by comparing the remote size with
// the local one.
func Upload(ctx context.Context, src string, dest target.Destination, opts Options) error {
	switch dest.Scheme {
	case target.SchemeLocal:
		return uploadLocal(src, dest, opts)
	case target.SchemeSCP:
		return uploadSCP(ctx, src, dest, opts)
	case target.SchemeFTP:
		return uploadFTP(ctx, src, dest, opts)
	default:
		return &Error{Kind: KindIO, Dest: dest.String(), Err: fmt.Errorf("unsupported scheme %q", dest.Scheme)}
	}
}
