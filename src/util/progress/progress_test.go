package progress_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compose-migrate/src/util/progress"
)

func TestReader_PassesBytesThrough(t *testing.T) {
	var out bytes.Buffer
	src := strings.NewReader("hello world")
	r := progress.NewReader(src, int64(src.Len()), "copy", &out)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
	assert.Contains(t, out.String(), "copy")
	assert.Contains(t, out.String(), "100.0%")
}

func TestReader_NilOutIsSilent(t *testing.T) {
	src := strings.NewReader("payload")
	r := progress.NewReader(src, int64(src.Len()), "copy", nil)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestWriter_CountsBytes(t *testing.T) {
	var sink, out bytes.Buffer
	w := progress.NewWriter(&sink, "save", &out)

	_, err := w.Write([]byte("some bytes"))
	require.NoError(t, err)
	w.Finish()

	assert.Equal(t, "some bytes", sink.String())
	assert.Contains(t, out.String(), "save")
	assert.Contains(t, out.String(), "10 B")
}
