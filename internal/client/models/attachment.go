package models

import "strings"

// Attachment references an encrypted file stored in object storage or in the
// local attachments directory.
type Attachment struct {
	Key      string `json:"key"`
	URL      string `json:"url,omitempty"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// Local reports whether the attachment lives on this machine.
func (a *Attachment) Local() bool {
	return strings.HasPrefix(a.URL, "file://")
}
