package transfer

import (
	"errors"
	"testing"

	"github.com/jlaffaye/ftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	size    int64
	sizeErr error
	entries []*ftp.Entry
	listErr error
}

func (f *fakeLister) FileSize(string) (int64, error)    { return f.size, f.sizeErr }
func (f *fakeLister) List(string) ([]*ftp.Entry, error) { return f.entries, f.listErr }

func TestRemoteSize_SizeCommand(t *testing.T) {
	got, err := remoteSize(&fakeLister{size: 42}, "backups/x.tar")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}

func TestRemoteSize_ListFallback(t *testing.T) {
	c := &fakeLister{
		sizeErr: errors.New("550 SIZE not allowed"),
		entries: []*ftp.Entry{
			{Name: "other.tar", Type: ftp.EntryTypeFile, Size: 7},
			{Name: "x.tar", Type: ftp.EntryTypeFile, Size: 42},
		},
	}
	got, err := remoteSize(c, "backups/x.tar")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}

func TestRemoteSize_NoVerificationPossible(t *testing.T) {
	c := &fakeLister{
		sizeErr: errors.New("550 SIZE not allowed"),
		listErr: errors.New("425 no data connection"),
	}
	_, err := remoteSize(c, "backups/x.tar")
	require.Error(t, err)
}

func TestRemoteSize_MissingFromListing(t *testing.T) {
	c := &fakeLister{
		sizeErr: errors.New("550 SIZE not allowed"),
		entries: []*ftp.Entry{{Name: "x.tar", Type: ftp.EntryTypeFolder}},
	}
	_, err := remoteSize(c, "backups/x.tar")
	require.Error(t, err)
}

func TestSSHAuthMethods_PasswordOnly(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	assert.Empty(t, sshAuthMethods(Options{}))
	assert.Len(t, sshAuthMethods(Options{SSHPassword: "s3cret"}), 1)
}
