package harbor

import (
	"path/filepath"

	"github.com/aofei/mimesniffer"
)

// MIMEDetector resolves the content type of a file's bytes, given its name
// (so extension-based hints can take priority over content sniffing). See
// spec §4.K ("detect content type via MIME oracle (caller-supplied)").
type MIMEDetector interface {
	DetectMIME(name string, content []byte) string
}

// mimesnifferDetector is the default MIMEDetector, backed by
// github.com/aofei/mimesniffer.
type mimesnifferDetector struct{}

// DetectMIME implements MIMEDetector.
func (mimesnifferDetector) DetectMIME(name string, content []byte) string {
	if ext := filepath.Ext(name); ext != "" {
		if mt := mimesniffer.Sniff(content); mt != "" {
			return mt
		}
	}

	return mimesniffer.Sniff(content)
}

// DefaultMIMEDetector is the MIMEDetector a Harbor uses unless overridden.
var DefaultMIMEDetector MIMEDetector = mimesnifferDetector{}
