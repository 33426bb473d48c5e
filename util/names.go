package util

import (
	"regexp"
	"strings"
)

var unsafeRegex = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// SanitizeName makes a channel or thread name safe to use as part of a file
// name on common filesystems.
func SanitizeName(name string) string {
	if name == "" {
		return "unknown"
	}
	return unsafeRegex.ReplaceAllString(name, "_")
}

// FileExt returns the extension of a remote file name without the dot, or
// "file" when the name carries none.
func FileExt(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i == -1 || i == len(name)-1 {
		return "file"
	}
	return name[i+1:]
}
