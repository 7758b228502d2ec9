package kilnlib

import (
	"net/url"
	"path"
	"strings"
)

func removeDuplicates[T comparable](sliceList []T) []T {
	allKeys := make(map[T]bool)
	list := []T{}
	for _, item := range sliceList {
		if _, value := allKeys[item]; !value {
			allKeys[item] = true
			list = append(list, item)
		}
	}
	return list
}

// cacheFileName derives the cache entry name for a source URL from the
// final path element, ignoring any query string.
func cacheFileName(sourceURL string) string {
	if parsed, err := url.Parse(sourceURL); err == nil && parsed.Path != "" {
		return path.Base(parsed.Path)
	}
	trimmed := sourceURL
	if i := strings.IndexByte(trimmed, '?'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return path.Base(trimmed)
}
