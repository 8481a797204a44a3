// Package hasher computes content digests for local files and decides
// whether a remote integrity tag can be compared against one.
//
// S3 ETags are plain MD5 digests only for single-part uploads; multipart
// objects carry a composite tag ("<digest>-<parts>") that is not a digest
// of the object's bytes and must never be equality-compared.
package hasher

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/fs"

	"github.com/bestend/s3lync/errors"
)

// Verifier computes streaming digests through the filesystem abstraction.
type Verifier struct {
	filesystem fs.Filesystem
}

// New creates a Verifier backed by the given filesystem.
func New(filesystem fs.Filesystem) *Verifier {
	return &Verifier{filesystem: filesystem}
}

// Digest streams the file at path and returns its hex-encoded MD5 digest.
// The file is never loaded into memory as a whole.
func (v *Verifier) Digest(path string) (string, error) {
	file, err := v.filesystem.Open(path)
	if err != nil {
		return "", errors.NewError("digest", err).WithKey(path)
	}
	defer file.Close()

	h := md5.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", errors.NewError("digest", err).WithKey(path)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestReader computes the hex-encoded MD5 digest of everything readable
// from r. Used to verify downloaded bytes without re-reading the file.
func DigestReader(r io.Reader) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsComparable reports whether a remote integrity tag is a plain content
// digest. Composite multipart tags contain a "-" separator and are not
// comparable; an empty tag is not comparable either.
func IsComparable(tag string) bool {
	tag = Normalize(tag)
	return tag != "" && !strings.Contains(tag, "-")
}

// Matches compares a local digest against a remote tag. Both are
// normalized first; the caller must have checked IsComparable.
func Matches(localDigest, remoteTag string) bool {
	return Normalize(localDigest) == Normalize(remoteTag)
}

// Normalize strips the surrounding quotes S3 puts on ETag values and
// lowercases the hex.
func Normalize(tag string) string {
	return strings.ToLower(strings.Trim(tag, `"`))
}
