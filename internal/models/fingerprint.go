package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	fingerprintSnippetPrefixLengthConstant = 100
	fingerprintHexLengthConstant           = 16
	fingerprintInputTemplateConstant       = "%s|%d-%d|%s|%s"
)

// ComputeFingerprint derives a finding's stable identity from its location,
// title, and the first characters of its code excerpt. Identical inputs always
// yield the same digest, which keeps finding identity stable across independent
// re-analysis of unchanged code and makes dedup independent of row identifiers.
func ComputeFingerprint(filePath string, lineStart int, lineEnd int, title string, codeSnippet string) string {
	snippetRunes := []rune(codeSnippet)
	if len(snippetRunes) > fingerprintSnippetPrefixLengthConstant {
		snippetRunes = snippetRunes[:fingerprintSnippetPrefixLengthConstant]
	}

	digestInput := fmt.Sprintf(fingerprintInputTemplateConstant, filePath, lineStart, lineEnd, title, string(snippetRunes))
	digest := sha256.Sum256([]byte(digestInput))
	return hex.EncodeToString(digest[:])[:fingerprintHexLengthConstant]
}
