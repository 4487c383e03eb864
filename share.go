package harbor

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// osName reports the operating system name used in the built-in error
// pages' address line.
func osName() string {
	return runtime.GOOS
}

// forbiddenPage and notFoundPage are the built-in HTML error pages the
// share handler serves, per spec §4.K and §6. They carry the server
// identifier and OS name, matching the teacher's own error-page style.
const sharePageTemplate = `<!DOCTYPE html>
<html>
<head><title>%d %s</title></head>
<body>
<h1>%s</h1>
<p>%s</p>
<hr>
<address>harbor/%s (%s)</address>
</body>
</html>
`

// ServerIdentifier is the token reported in the built-in error pages'
// address line.
var ServerIdentifier = "0"

// renderSharePage renders the built-in 403/404 HTML page for status/title.
func renderSharePage(status int, title, body string) string {
	return fmt.Sprintf(sharePageTemplate, status, title, title, body, ServerIdentifier, osName())
}

// ServeShare resolves path against the share mapping m and writes the
// result to resp, per spec §4.K:
//
//  1. Extract the sub-path; if empty, use the configured index file.
//  2. Canonicalize root+sub-path; if it escapes root, respond 403.
//  3. If the file does not exist, respond 404.
//  4. Otherwise detect content type, fire ShareFileLoadedEvent, and stream
//     the (possibly listener-replaced) file to resp.
func (h *Harbor) ServeShare(m *ShareMapping, urlPath, method string, resp *Response) error {
	sub := strings.TrimPrefix(urlPath, m.Prefix)
	sub = strings.TrimPrefix(sub, "/")

	index := m.Index
	if index == "" {
		index = h.Config.ShareIndexFile
	}

	if sub == "" {
		sub = index
	}

	root, err := filepath.Abs(m.Root)
	if err != nil {
		return fmt.Errorf("harbor: failed to resolve share root: %w", err)
	}

	target := filepath.Join(root, filepath.FromSlash(sub))
	target, err = filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("harbor: failed to resolve share target: %w", err)
	}

	if !isWithinRoot(target, root) {
		_ = resp.SetStatus(403)
		_ = resp.SetHeader("Content-Type", "text/html; charset=utf-8")
		_, _ = resp.PrintBytes([]byte(renderSharePage(403, "403 Forbidden", "You don't have permission to access this resource.")))

		return &ForbiddenError{Path: urlPath}
	}

	info, statErr := os.Stat(target)
	if statErr != nil || info.IsDir() {
		_ = resp.SetStatus(404)
		_ = resp.SetHeader("Content-Type", "text/html; charset=utf-8")
		_, _ = resp.PrintBytes([]byte(renderSharePage(404, "404 Not Found", "The requested resource could not be found.")))

		return &NotFoundError{Path: urlPath, Method: method}
	}

	var (
		data        []byte
		contentType string
	)

	if h.Config.ShareCacheEnabled {
		data, contentType, err = h.Coffer.load(target, h.MIME)
		if err != nil {
			return err
		}
	} else {
		data, err = os.ReadFile(target)
		if err != nil {
			return fmt.Errorf("harbor: failed to read share file: %w", err)
		}
		contentType = h.MIME.DetectMIME(target, data)
	}

	loadedData := &ShareFileLoadedEventData{
		Path:        target,
		ContentType: contentType,
		Data:        data,
	}
	h.EventBus.Fire(EventShareFileLoaded, loadedData)

	_ = resp.SetHeader("Content-Type", loadedData.ContentType)
	_ = resp.SetHeader("Content-Length", strconv.Itoa(len(loadedData.Data)))

	_, err = resp.PrintBytes(loadedData.Data)

	return err
}

// isWithinRoot reports whether target is root itself or lies strictly
// beneath it, per spec §4.K's traversal check.
func isWithinRoot(target, root string) bool {
	if target == root {
		return true
	}

	return strings.HasPrefix(target, root+string(filepath.Separator))
}
