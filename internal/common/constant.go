// Package common contains shared constants and sentinel errors used across
// AgroLink components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// MaxAttachmentSize caps a single attachment upload (10 MiB).
const MaxAttachmentSize int64 = 10 << 20

// DecryptFailedPlaceholder is rendered in place of a message body that could
// not be decrypted with the locally available key.
const DecryptFailedPlaceholder = "[unable to decrypt message]"
