// Package media rewrites local file references in generated text into
// backend-issued media identifiers.
//
// The model is instructed to reference generated images by local path; before
// the final card push those references must be uploaded and replaced, since
// the chat surface cannot read the connector's filesystem. Two incompatible
// reference syntaxes appear in practice: markdown-image occurrences
// (![alt](path), possibly scheme-prefixed) and bare absolute paths. Each pass
// produces non-overlapping replacement spans over immutable input, applied in
// descending offset order so earlier rewrites never shift later matches.
package media

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/zhuxian89/dingtalk-moltbot-connector/logger"
)

// localRoots are the directory prefixes treated as local filesystem paths.
var localRoots = []string{"/tmp/", "/var/", "/home/", "/root/", "/data/", "/app/"}

// schemePrefixes are stripped from markdown-image targets before upload.
var schemePrefixes = []string{"file://", "local_media:", "attachment://"}

var (
	// markdownImageRe matches ![alt](target) occurrences.
	markdownImageRe = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)\)`)

	// barePathRe matches absolute paths with a known image extension,
	// optionally backtick-wrapped.
	barePathRe = regexp.MustCompile("`?(/(?:tmp|var|home|root|data|app)/[^\\s`\"')\\]]+\\.(?:png|jpe?g|gif|webp|bmp))`?")
)

// Uploader sends one local file to the backend and returns its media id.
type Uploader interface {
	Upload(ctx context.Context, path, token string) (mediaID string, err error)
}

// Resolver scans text for local references and rewrites them.
type Resolver struct {
	uploader Uploader
}

// NewResolver creates a resolver backed by the given uploader.
func NewResolver(uploader Uploader) *Resolver {
	return &Resolver{uploader: uploader}
}

// span is one pending replacement.
type span struct {
	start, end  int
	replacement string
}

// Process rewrites every resolvable local reference in text. With an empty
// token it returns text unchanged; a missing or failed upload leaves that
// occurrence untouched. Each distinct path uploads at most once per call.
func (r *Resolver) Process(ctx context.Context, text, token string) string {
	if token == "" {
		logger.Debug("media upload credential unavailable, leaving references in place")
		return text
	}

	uploaded := make(map[string]string)

	text = r.rewriteMarkdownImages(ctx, text, token, uploaded)
	text = r.rewriteBarePaths(ctx, text, token, uploaded)
	return text
}

// rewriteMarkdownImages is the markup pass: every markdown-image occurrence
// whose target is a local form is re-pointed at an uploaded media id, keeping
// the alt text.
func (r *Resolver) rewriteMarkdownImages(ctx context.Context, text, token string, uploaded map[string]string) string {
	matches := markdownImageRe.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return text
	}

	var spans []span
	for _, m := range matches {
		alt := text[m[2]:m[3]]
		target := text[m[4]:m[5]]

		path, ok := resolveLocalPath(target)
		if !ok {
			continue
		}

		mediaID, err := r.uploadOnce(ctx, path, token, uploaded)
		if err != nil {
			logger.Warn("media upload failed, keeping original reference", "path", path, "error", err)
			continue
		}

		spans = append(spans, span{
			start:       m[0],
			end:         m[1],
			replacement: fmt.Sprintf("![%s](%s)", alt, mediaID),
		})
	}

	return applySpans(text, spans)
}

// rewriteBarePaths is the second pass over the already-rewritten text: bare
// absolute image paths not already inside a markdown image become minimal
// markdown-image occurrences.
func (r *Resolver) rewriteBarePaths(ctx context.Context, text, token string, uploaded map[string]string) string {
	matches := barePathRe.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return text
	}

	var spans []span
	for _, m := range matches {
		if insideMarkdownImage(text, m[0]) {
			continue
		}
		path := text[m[2]:m[3]]

		mediaID, err := r.uploadOnce(ctx, path, token, uploaded)
		if err != nil {
			logger.Warn("media upload failed, keeping original path", "path", path, "error", err)
			continue
		}

		// The matched span includes any wrapping backticks.
		spans = append(spans, span{
			start:       m[0],
			end:         m[1],
			replacement: fmt.Sprintf("![](%s)", mediaID),
		})
	}

	return applySpans(text, spans)
}

// uploadOnce uploads path unless this Process call already did, verifying
// local existence first. A missing file is skipped without surfacing an error.
func (r *Resolver) uploadOnce(ctx context.Context, path, token string, uploaded map[string]string) (string, error) {
	if id, ok := uploaded[path]; ok {
		return id, nil
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("local file not found: %s", path)
	}
	id, err := r.uploader.Upload(ctx, path, token)
	if err != nil {
		return "", err
	}
	uploaded[path] = id
	return id, nil
}

// resolveLocalPath reports whether target is a local reference, returning the
// filesystem path with any scheme stripped and URL escapes decoded.
func resolveLocalPath(target string) (string, bool) {
	for _, scheme := range schemePrefixes {
		if strings.HasPrefix(target, scheme) {
			return decodePath(strings.TrimPrefix(target, scheme)), true
		}
	}
	for _, root := range localRoots {
		if strings.HasPrefix(target, root) {
			return decodePath(target), true
		}
	}
	return "", false
}

func decodePath(p string) string {
	if decoded, err := url.PathUnescape(p); err == nil {
		return decoded
	}
	return p
}

// insideMarkdownImage reports whether the text just before offset contains the
// image-opener sequence, meaning the match is a markdown-image target and was
// handled (or deliberately left) by the markup pass.
func insideMarkdownImage(text string, offset int) bool {
	windowStart := offset - 64
	if windowStart < 0 {
		windowStart = 0
	}
	window := text[windowStart:offset]
	openIdx := strings.LastIndex(window, "](")
	if openIdx == -1 {
		return false
	}
	// No closing paren between the opener and the match.
	return !strings.Contains(window[openIdx:], ")")
}

// applySpans rewrites text with the given non-overlapping spans, rightmost
// first so offsets of pending spans stay valid.
func applySpans(text string, spans []span) string {
	if len(spans) == 0 {
		return text
	}
	sort.Slice(spans, func(i, j int) bool {
		return spans[i].start > spans[j].start
	})
	for _, s := range spans {
		text = text[:s.start] + s.replacement + text[s.end:]
	}
	return text
}
