package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"strings"

	"golang.org/x/xerrors"
)

// Sidecar file extensions, in verification preference order.
const (
	ExtSHA1 = ".sha1"
	ExtMD5  = ".md5"
)

// Digester streams body chunks through SHA-1 and MD5 at once, so a
// single pass over the response produces both digests. One digester per
// transfer; not safe for concurrent writers.
type Digester struct {
	sha1 hash.Hash
	md5  hash.Hash
}

func NewDigester() *Digester {
	return &Digester{
		sha1: sha1.New(),
		md5:  md5.New(),
	}
}

func (d *Digester) Write(p []byte) (int, error) {
	d.sha1.Write(p)
	d.md5.Write(p)
	return len(p), nil
}

// SHA1 returns the lowercase hex SHA-1 of everything written so far.
func (d *Digester) SHA1() string {
	return hex.EncodeToString(d.sha1.Sum(nil))
}

// MD5 returns the lowercase hex MD5 of everything written so far.
func (d *Digester) MD5() string {
	return hex.EncodeToString(d.md5.Sum(nil))
}

// Hex returns the digest matching the sidecar extension.
func (d *Digester) Hex(ext string) string {
	if ext == ExtMD5 {
		return d.MD5()
	}
	return d.SHA1()
}

// Parse extracts the hex digest from sidecar file content. Sidecars in
// the wild carry trailing newlines, "<hex>  <filename>" layouts and
// other junk around the digest, so every whitespace-separated token is
// tried until one decodes as hex.
// e.g. https://repo.maven.apache.org/maven2/aspectj/aspectjrt/1.5.2a/aspectjrt-1.5.2a.jar.sha1
func Parse(content string) (string, error) {
	for _, s := range strings.Fields(strings.TrimSpace(content)) {
		if _, err := hex.DecodeString(s); err == nil && s != "" {
			return strings.ToLower(s), nil
		}
	}
	return "", xerrors.Errorf("no hex digest found in checksum content %q", content)
}

// Matches compares two hex digests, ignoring case and surrounding
// whitespace.
func Matches(expected, actual string) bool {
	expected = strings.TrimSpace(expected)
	actual = strings.TrimSpace(actual)
	return expected != "" && strings.EqualFold(expected, actual)
}

// File computes both digests of a local file in one read.
func File(path string) (*Digester, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	d := NewDigester()
	if _, err = io.Copy(d, f); err != nil {
		return nil, xerrors.Errorf("failed to digest %s: %w", path, err)
	}
	return d, nil
}
