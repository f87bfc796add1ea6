package attachment

import (
	"path"
	"strings"
)

const (
	// MIMEOctetStream is the generic binary type.
	MIMEOctetStream = "application/octet-stream"
	// MIMEWord is the canonical legacy Word (.doc) type.
	MIMEWord = "application/msword"
	// MIMEWordOOXML is the canonical OOXML Word (.docx) type.
	MIMEWordOOXML = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var extensionTypes = map[string]string{
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".doc":  MIMEWord,
	".docx": MIMEWordOOXML,
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
}

// Spellings seen in the wild for the two Word formats.
var wordVariants = map[string]string{
	"application/msword":                  MIMEWord,
	"application/doc":                     MIMEWord,
	"application/ms-doc":                  MIMEWord,
	"application/x-msword":                MIMEWord,
	"application/vnd.ms-word":             MIMEWord,
	"application/vnd.msword":              MIMEWord,
	"application/word":                    MIMEWord,
	"application/x-doc":                   MIMEWord,
	MIMEWordOOXML:                         MIMEWordOOXML,
	"application/docx":                    MIMEWordOOXML,
	"application/x-docx":                  MIMEWordOOXML,
	"application/vnd.ms-word.document":    MIMEWordOOXML,
	"application/vnd.ms-word.document.12": MIMEWordOOXML,
	"application/vnd.openxmlformats":      MIMEWordOOXML,
}

// NormalizeMIME returns the type to send for a file called name whose declared
// type is mime. A specific declared type is kept as given. Empty or generic
// types fall back to the extension table; Word variants map to one of the two
// canonical strings, picked by extension when the name has one.
func NormalizeMIME(mime, name string) string {
	declared := strings.TrimSpace(mime)

	// Matching ignores case and parameters.
	m := strings.ToLower(declared)
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}

	ext := strings.ToLower(path.Ext(name))

	if canonical, ok := wordVariants[m]; ok {
		switch ext {
		case ".doc":
			return MIMEWord
		case ".docx":
			return MIMEWordOOXML
		}
		return canonical
	}
	if m != "" && m != MIMEOctetStream {
		return declared
	}

	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	return MIMEOctetStream
}
