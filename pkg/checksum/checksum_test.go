package checksum_test

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoflow/repoflow/pkg/checksum"
)

func TestDigesterStreaming(t *testing.T) {
	d := checksum.NewDigester()
	_, err := d.Write([]byte("HEL"))
	require.NoError(t, err)
	_, err = d.Write([]byte("LO"))
	require.NoError(t, err)

	want := sha1.Sum([]byte("HELLO"))
	assert.Equal(t, hex.EncodeToString(want[:]), d.SHA1())
	// MD5("HELLO")
	assert.Equal(t, "eb61eead90e3b899c6bcbe27ac581660", d.MD5())
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{
			name:    "bare digest",
			content: "a2363646a9dd05955633b450010b59a21af8a423",
			want:    "a2363646a9dd05955633b450010b59a21af8a423",
		},
		{
			name:    "trailing newline",
			content: "a2363646a9dd05955633b450010b59a21af8a423\n",
			want:    "a2363646a9dd05955633b450010b59a21af8a423",
		},
		{
			name:    "digest with filename",
			content: "a2363646a9dd05955633b450010b59a21af8a423  abbot-1.4.0.jar",
			want:    "a2363646a9dd05955633b450010b59a21af8a423",
		},
		{
			name:    "uppercase digest kept lowercase",
			content: "A2363646A9DD05955633B450010B59A21AF8A423",
			want:    "a2363646a9dd05955633b450010b59a21af8a423",
		},
		{
			name:    "leading junk skipped",
			content: "sha1:zzz a2363646a9dd05955633b450010b59a21af8a423",
			want:    "a2363646a9dd05955633b450010b59a21af8a423",
		},
		{
			name:    "empty content",
			content: "",
			wantErr: true,
		},
		{
			name:    "no hex token",
			content: "not a checksum at all",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := checksum.Parse(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatches(t *testing.T) {
	assert.True(t, checksum.Matches("ABCDEF", "abcdef"))
	assert.True(t, checksum.Matches(" abcdef \n", "abcdef"))
	assert.False(t, checksum.Matches("abcdef", "abcde0"))
	assert.False(t, checksum.Matches("", ""))
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("DATA"), 0o644))

	d, err := checksum.File(path)
	require.NoError(t, err)

	want := sha1.Sum([]byte("DATA"))
	assert.Equal(t, hex.EncodeToString(want[:]), d.SHA1())
	assert.Equal(t, d.SHA1(), d.Hex(checksum.ExtSHA1))
	assert.Equal(t, d.MD5(), d.Hex(checksum.ExtMD5))
}

func TestFileMissing(t *testing.T) {
	_, err := checksum.File(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
