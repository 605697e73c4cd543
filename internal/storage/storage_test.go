package storage

import (
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStorage_SaveOpenDelete(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, 0, zap.NewNop())

	key, size, err := s.Save("Report.PDF", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
	assert.True(t, strings.HasPrefix(key, "task_attachments/"))
	assert.True(t, strings.HasSuffix(key, ".pdf"))

	f, err := s.Open(key)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "hello", string(data))

	require.NoError(t, s.Delete(key))
	_, err = s.Open(key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Delete(key))
}

func TestStorage_SizeLimit(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, 4, zap.NewNop())

	_, _, err := s.Save("big.txt", strings.NewReader("12345"))
	assert.ErrorIs(t, err, ErrTooLarge)

	_, size, err := s.Save("ok.txt", strings.NewReader("1234"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)

	// the rejected upload left nothing behind
	var files int
	require.NoError(t, afero.Walk(fs, keyPrefix, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			files++
		}
		return err
	}))
	assert.Equal(t, 1, files)
}

func TestNewKey(t *testing.T) {
	at := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	assert.Regexp(t, `^task_attachments/2024/03/[0-9a-f-]{36}\.txt$`, newKey("notes.TXT", at))
	assert.Regexp(t, `^task_attachments/2024/03/[0-9a-f-]{36}$`, newKey("README", at))
	assert.Regexp(t, `^task_attachments/2024/03/[0-9a-f-]{36}\.png$`, newKey(`C:\pics\cat.png`, at))
}
