package tempfile_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoflow/repoflow/pkg/tempfile"
)

func TestClaimMintsFreshPartial(t *testing.T) {
	r := tempfile.NewRegistry(tempfile.Option{})
	dst := filepath.Join(t.TempDir(), "abbot-1.4.0.jar")

	e, err := r.Claim(dst, "worker-1", true)
	require.NoError(t, err)

	assert.Equal(t, dst, e.Final)
	assert.True(t, strings.HasPrefix(e.Path, dst+".part-"))
	assert.Len(t, filepath.Base(e.Path), len(filepath.Base(dst))+len(".part-")+16)
	assert.False(t, e.Resumed)
	assert.Zero(t, e.Size)
	assert.Equal(t, 1, r.Active())

	// The advisory lock companion exists while the claim is held.
	_, err = os.Stat(e.Path + ".lock")
	assert.NoError(t, err)

	r.Release(e, true)
	assert.Equal(t, 0, r.Active())
	_, err = os.Stat(e.Path + ".lock")
	assert.True(t, os.IsNotExist(err))
}

func TestClaimAdoptsAbandonedPartial(t *testing.T) {
	r := tempfile.NewRegistry(tempfile.Option{})
	dir := t.TempDir()
	dst := filepath.Join(dir, "abbot-1.4.0.jar")
	abandoned := dst + ".part-0123456789abcdef"
	require.NoError(t, os.WriteFile(abandoned, []byte("HEL"), 0o644))

	e, err := r.Claim(dst, "worker-1", true)
	require.NoError(t, err)

	assert.Equal(t, abandoned, e.Path)
	assert.True(t, e.Resumed)
	assert.Equal(t, int64(3), e.Size)

	r.Release(e, false)
	// Released without deletion: the partial stays for the next resume.
	_, err = os.Stat(abandoned)
	assert.NoError(t, err)
}

func TestClaimSkipsEmptyPartial(t *testing.T) {
	r := tempfile.NewRegistry(tempfile.Option{})
	dir := t.TempDir()
	dst := filepath.Join(dir, "abbot-1.4.0.jar")
	require.NoError(t, os.WriteFile(dst+".part-0123456789abcdef", nil, 0o644))

	e, err := r.Claim(dst, "worker-1", true)
	require.NoError(t, err)
	defer r.Release(e, true)

	assert.False(t, e.Resumed)
}

func TestClaimRefusesSecondClaimOfSamePartial(t *testing.T) {
	r := tempfile.NewRegistry(tempfile.Option{})
	dir := t.TempDir()
	dst := filepath.Join(dir, "abbot-1.4.0.jar")
	abandoned := dst + ".part-0123456789abcdef"
	require.NoError(t, os.WriteFile(abandoned, []byte("HEL"), 0o644))

	first, err := r.Claim(dst, "worker-1", true)
	require.NoError(t, err)
	defer r.Release(first, true)
	require.Equal(t, abandoned, first.Path)

	// The same abandoned partial cannot be handed out twice; the second
	// worker gets a fresh one.
	second, err := r.Claim(dst, "worker-2", true)
	require.NoError(t, err)
	defer r.Release(second, true)

	assert.NotEqual(t, first.Path, second.Path)
	assert.False(t, second.Resumed)
}

func TestClaimDisableResumeNeverScans(t *testing.T) {
	r := tempfile.NewRegistry(tempfile.Option{DisableResume: true})
	dir := t.TempDir()
	dst := filepath.Join(dir, "abbot-1.4.0.jar")
	require.NoError(t, os.WriteFile(dst+".part-0123456789abcdef", []byte("HEL"), 0o644))

	e, err := r.Claim(dst, "worker-1", true)
	require.NoError(t, err)
	defer r.Release(e, true)

	assert.False(t, e.Resumed)
	assert.Zero(t, e.Size)
}

func TestClaimResumeNotAllowed(t *testing.T) {
	r := tempfile.NewRegistry(tempfile.Option{})
	dir := t.TempDir()
	dst := filepath.Join(dir, "maven-metadata.xml")
	require.NoError(t, os.WriteFile(dst+".part-0123456789abcdef", []byte("xml"), 0o644))

	e, err := r.Claim(dst, "worker-1", false)
	require.NoError(t, err)
	defer r.Release(e, true)

	assert.False(t, e.Resumed)
}

func TestConcurrentClaimsAreIsolated(t *testing.T) {
	r := tempfile.NewRegistry(tempfile.Option{})
	dir := t.TempDir()
	dst := filepath.Join(dir, "abbot-1.4.0.jar")
	require.NoError(t, os.WriteFile(dst+".part-0123456789abcdef", []byte("HEL"), 0o644))

	const workers = 8
	entries := make([]*tempfile.Entry, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			e, err := r.Claim(dst, "worker", true)
			assert.NoError(t, err)
			entries[i] = e
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	var resumed int
	for _, e := range entries {
		require.NotNil(t, e)
		assert.False(t, seen[e.Path], "partial handed out twice: %s", e.Path)
		seen[e.Path] = true
		if e.Resumed {
			resumed++
		}
		r.Release(e, true)
	}
	// Exactly one worker may adopt the abandoned partial.
	assert.LessOrEqual(t, resumed, 1)
	assert.Equal(t, 0, r.Active())
}
