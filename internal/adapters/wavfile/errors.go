package wavfile

import "errors"

// Sentinel kinds for WAV decoding errors.
var (
	ErrInvalidFile = errors.New("not a valid wav file")
	ErrUnsupported = errors.New("unsupported wav format")
)
