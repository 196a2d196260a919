// Package feedlib holds the pure feed intelligence of the pipeline: content
// hashing, text shortening, HTML processing, image URL scanning and
// rewriting, host matchers and the freshness heuristics. Nothing in this
// package performs I/O.
package feedlib

import (
	"crypto/sha1"
	"encoding/base64"
)

// ContentHashBase64 returns the base64 SHA-1 digest of the concatenated
// inputs. Input order is significant and fixed by the callers: a story is
// always hashed as (content, summary, title), a feed as its raw body.
func ContentHashBase64(parts ...[]byte) string {
	h := sha1.New()
	for _, p := range parts {
		h.Write(p)
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// ContentHashBase64String is ContentHashBase64 over string inputs.
func ContentHashBase64String(parts ...string) string {
	h := sha1.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
