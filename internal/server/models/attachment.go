package models

// AttachmentUpload is the server answer to an upload request. When storage
// is disabled, Key and URL are empty and the client keeps the file locally.
type AttachmentUpload struct {
	StorageEnabled bool
	Key            string
	URL            string
}
