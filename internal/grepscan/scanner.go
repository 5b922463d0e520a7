// Package grepscan ranks repository files by local security-relevant signal
// using pattern matching over file contents. It performs no network calls; its
// output seeds the ranking context handed to the inference service.
package grepscan

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/temirov/codesentry/internal/models"
)

const (
	sampleLinesPerFileLimitConstant = 3
	sampleLineMaximumLengthConstant = 200
)

// signalPattern pairs a compiled pattern with the concern it indicates.
type signalPattern struct {
	concern string
	pattern *regexp.Regexp
}

var signalPatterns = []signalPattern{
	{concern: "command execution", pattern: regexp.MustCompile(`(?i)\b(exec\.Command|os\.system|subprocess|popen|shell_exec|eval\()`)},
	{concern: "sql", pattern: regexp.MustCompile(`(?i)\b(select\s.+\sfrom|insert\s+into|db\.query|executeQuery|raw\s*\()`)},
	{concern: "secrets", pattern: regexp.MustCompile(`(?i)(api[_-]?key|secret|passw(or)?d|private[_-]?key|token)\s*[:=]`)},
	{concern: "crypto", pattern: regexp.MustCompile(`(?i)\b(md5|sha1|des|ecb|rand\.Read|math/rand|createCipher)\b`)},
	{concern: "deserialization", pattern: regexp.MustCompile(`(?i)\b(pickle\.loads|yaml\.load|unserialize|ObjectInputStream|json\.Unmarshal)\b`)},
	{concern: "path handling", pattern: regexp.MustCompile(`(?i)(\.\./|filepath\.Join|path\.join|sendFile|readFile)`)},
	{concern: "auth", pattern: regexp.MustCompile(`(?i)\b(authenticate|authoriz|session|cookie|jwt|oauth|login)`)},
	{concern: "network input", pattern: regexp.MustCompile(`(?i)\b(http\.HandleFunc|req\.body|request\.form|ParseForm|FormValue|query\.get)`)},
	{concern: "templates", pattern: regexp.MustCompile(`(?i)(innerHTML|dangerouslySetInnerHTML|template\.HTML|render_template_string)`)},
}

// FileSignal reports the security signal found in one file.
type FileSignal struct {
	Repository  string
	Path        string
	HitCount    int
	Concerns    []string
	SampleLines []string
}

// FileContentReader loads file contents for scanning.
type FileContentReader interface {
	ReadFile(executionContext context.Context, repository string, path string, maxLines int) (string, error)
}

// Scanner matches the signal pattern table against file contents.
type Scanner struct {
	reader FileContentReader
}

// NewScanner constructs a Scanner over the provided content reader.
func NewScanner(reader FileContentReader) *Scanner {
	return &Scanner{reader: reader}
}

// Scan evaluates every scanned file and returns the files with at least one
// hit, ordered by descending hit count. Unreadable files are skipped rather
// than failing the audit; grep signal is advisory input, not coverage.
func (scanner *Scanner) Scan(executionContext context.Context, files []models.ScannedFile) ([]FileSignal, error) {
	signals := make([]FileSignal, 0, len(files))

	for _, file := range files {
		if contextError := executionContext.Err(); contextError != nil {
			return nil, contextError
		}

		content, readError := scanner.reader.ReadFile(executionContext, file.Repository, file.Path, 0)
		if readError != nil {
			continue
		}

		signal := scanContent(file, content)
		if signal.HitCount > 0 {
			signals = append(signals, signal)
		}
	}

	sort.SliceStable(signals, func(first int, second int) bool {
		return signals[first].HitCount > signals[second].HitCount
	})

	return signals, nil
}

func scanContent(file models.ScannedFile, content string) FileSignal {
	signal := FileSignal{Repository: file.Repository, Path: file.Path}
	seenConcerns := map[string]bool{}

	for _, line := range strings.Split(content, "\n") {
		for _, candidate := range signalPatterns {
			if !candidate.pattern.MatchString(line) {
				continue
			}
			signal.HitCount++
			if !seenConcerns[candidate.concern] {
				seenConcerns[candidate.concern] = true
				signal.Concerns = append(signal.Concerns, candidate.concern)
			}
			if len(signal.SampleLines) < sampleLinesPerFileLimitConstant {
				signal.SampleLines = append(signal.SampleLines, truncateLine(strings.TrimSpace(line)))
			}
		}
	}

	return signal
}

func truncateLine(line string) string {
	if len(line) <= sampleLineMaximumLengthConstant {
		return line
	}
	return line[:sampleLineMaximumLengthConstant]
}
