package reel

import "errors"

// Failure kinds of the upload pipeline. Factory failures (missing credentials,
// login rejection) are not listed here: they pass through Upload unchanged so
// callers can match them against the instagram package's errors.
var (
	// ErrNotAVideo means the replied-to message carries neither a native video
	// nor a document with a video mime type. No I/O has happened.
	ErrNotAVideo = errors.New("replied message does not carry a playable video")

	// ErrDownloadFailed wraps any failure while materializing the attachment
	// into the scratch file.
	ErrDownloadFailed = errors.New("attachment download failed")

	// ErrUploadFailed wraps a rejection from the remote upload call, carrying
	// its message verbatim.
	ErrUploadFailed = errors.New("clip upload failed")
)
