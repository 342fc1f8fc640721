package sync

import (
	"crypto/md5"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/KasumiKitsune/odyssey-sync/internal/utils"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// tempFilePattern names the scratch files copies stream into. The pattern
// is on the default ignore list so a crashed run's leftovers never sync.
const tempFilePattern = ".odyssey-tmp-*"

// copyFile copies src over dst without ever exposing a half-written
// destination: the bytes stream into a temp file in dst's directory, the
// source mod time is stamped onto it, then it is renamed into place. The
// stamped mod time is what makes an immediate re-run classify the pair as
// unchanged.
//
// When digests is non-nil the written stream is hashed and compared against
// the source digest; a mismatch fails the copy and removes the temp file.
func copyFile(src, dst string, digests *expirable.LRU[string, string]) (int64, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return 0, err
	}

	var wantDigest string
	if digests != nil {
		wantDigest, err = sourceDigest(src, srcInfo, digests)
		if err != nil {
			return 0, err
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), tempFilePattern)
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()

	var ok bool
	defer func() {
		if !ok {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	var out io.Writer = tmp
	var hasher hash.Hash
	if digests != nil {
		hasher = md5.New()
		out = io.MultiWriter(tmp, hasher)
	}

	written, err := io.Copy(out, in)
	if err != nil {
		return 0, err
	}

	if hasher != nil {
		gotDigest := fmt.Sprintf("%x", hasher.Sum(nil))
		if gotDigest != wantDigest {
			return 0, fmt.Errorf("%w: want %s got %s", ErrDigestMismatch, wantDigest, gotDigest)
		}
	}

	if err := tmp.Chmod(srcInfo.Mode().Perm()); err != nil {
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}

	mtime := srcInfo.ModTime()
	if err := os.Chtimes(tmpPath, mtime, mtime); err != nil {
		return 0, err
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		return 0, err
	}
	ok = true

	return written, nil
}

// sourceDigest returns the md5 of the source file, memoized by
// path+size+mtime so repeated verify runs do not re-read unchanged
// sources.
func sourceDigest(path string, info os.FileInfo, digests *expirable.LRU[string, string]) (string, error) {
	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	if digest, found := digests.Get(key); found {
		return digest, nil
	}

	digest, err := utils.FileHash(path)
	if err != nil {
		return "", err
	}
	digests.Add(key, digest)
	return digest, nil
}
