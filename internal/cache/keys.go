package cache

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"

	"imgopt-gateway/internal/transform"
)

const (
	RequestPrefix = "img_opt"
	ContentPrefix = "img_hash"

	// DefaultClearPattern matches every key this service writes.
	DefaultClearPattern = "img_*"
)

// RequestKey fingerprints a URL plus its resolved, canonically serialised options:
//
//	img_opt:<md5hex(url + ":" + canonical)>
func RequestKey(url, canonicalOptions string) string {
	sum := md5.Sum([]byte(url + ":" + canonicalOptions))
	return RequestPrefix + ":" + hex.EncodeToString(sum[:])
}

// ContentKey addresses an output by source content:
//
//	img_hash:<hash>:<CODEC>:<quality>
func ContentKey(hash string, codec transform.Codec, quality int) string {
	return ContentPrefix + ":" + hash + ":" + string(codec) + ":" + strconv.Itoa(quality)
}

// namespace labels a key for logs and metrics: request | content | other.
func namespace(key string) string {
	prefix, _, _ := strings.Cut(key, ":")
	switch prefix {
	case RequestPrefix:
		return "request"
	case ContentPrefix:
		return "content"
	}
	return "other"
}
