package gitrepo

import (
	"path/filepath"
	"strings"
)

const analyzableFileSizeLimitConstant = 1 << 20

var skippedExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".pdf": true, ".zip": true, ".tar": true, ".gz": true, ".jar": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".bin": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true, ".mp4": true,
	".lock": true, ".sum": true, ".min.js": true, ".map": true,
}

var skippedDirectories = map[string]bool{
	"node_modules": true, "vendor": true, ".git": true, "dist": true, "build": true,
}

// isAnalyzableFile filters out binary assets, lockfiles, and vendored trees
// that carry no review value.
func isAnalyzableFile(relativePath string) bool {
	for _, segment := range strings.Split(filepath.ToSlash(relativePath), "/") {
		if skippedDirectories[segment] {
			return false
		}
	}

	lowerPath := strings.ToLower(relativePath)
	if strings.HasSuffix(lowerPath, ".min.js") {
		return false
	}
	return !skippedExtensions[filepath.Ext(lowerPath)]
}
