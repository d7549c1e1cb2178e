package transfer

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"compose-migrate/src/target"
	"compose-migrate/src/util/progress"
)

// uploadSCP delivers the file over SSH using the SFTP subsystem. Keys held
// by a running ssh-agent are tried first, then password auth if a password
// was supplied.
func uploadSCP(ctx context.Context, src string, dest target.Destination, opts Options) error {
	auths := sshAuthMethods(opts)
	if len(auths) == 0 {
		return &Error{
			Kind: KindAuthFailed,
			Dest: dest.String(),
			Err:  fmt.Errorf("no ssh-agent available and no password supplied"),
		}
	}

	cfg := &ssh.ClientConfig{
		User: dest.User,
		Auth: auths,
		// Migration targets are frequently fresh hosts without a
		// known_hosts entry yet.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	dialer := net.Dialer{}
	raw, err := dialer.DialContext(ctx, "tcp", dest.Addr())
	if err != nil {
		return &Error{Kind: KindConnectionFailed, Dest: dest.String(), Err: err}
	}
	conn, chans, reqs, err := ssh.NewClientConn(raw, dest.Addr(), cfg)
	if err != nil {
		raw.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return &Error{Kind: KindAuthFailed, Dest: dest.String(), Err: err}
		}
		return &Error{Kind: KindConnectionFailed, Dest: dest.String(), Err: err}
	}
	client := ssh.NewClient(conn, chans, reqs)
	defer client.Close()

	sf, err := sftp.NewClient(client)
	if err != nil {
		return &Error{Kind: KindConnectionFailed, Dest: dest.String(), Err: err}
	}
	defer sf.Close()

	remote := dest.Path
	if info, err := sf.Stat(remote); err == nil && info.IsDir() {
		remote = path.Join(remote, filepath.Base(src))
	}
	if dir := path.Dir(remote); dir != "." && dir != "/" {
		// Best effort, Create reports the real error if this fails.
		_ = sf.MkdirAll(dir)
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

	out, err := sf.Create(remote)
	if err != nil {
		return &Error{Kind: KindIO, Dest: dest.String(), Err: err}
	}

	rd := io.Reader(in)
	if opts.Out != nil {
		rd = progress.NewReader(in, info.Size(), "upload "+filepath.Base(src), opts.Out)
	}
	if _, err := io.Copy(out, rd); err != nil {
		out.Close()
		_ = sf.Remove(remote)
		return &Error{Kind: KindIO, Dest: dest.String(), Err: err}
	}
	if err := out.Close(); err != nil {
		_ = sf.Remove(remote)
		return &Error{Kind: KindIO, Dest: dest.String(), Err: err}
	}

	uploaded, err := sf.Stat(remote)
	if err != nil {
		return &Error{Kind: KindIO, Dest: dest.String(), Err: fmt.Errorf("verify upload: %w", err)}
	}
	if uploaded.Size() != info.Size() {
		_ = sf.Remove(remote)
		return &Error{
			Kind: KindSizeMismatch,
			Dest: dest.String(),
			Err:  fmt.Errorf("remote has %d bytes, expected %d", uploaded.Size(), info.Size()),
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

func sshAuthMethods(opts Options) []ssh.AuthMethod {
	var auths []ssh.AuthMethod
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			auths = append(auths, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}
	if opts.SSHPassword != "" {
		auths = append(auths, ssh.Password(opts.SSHPassword))
	}
	return auths
}
