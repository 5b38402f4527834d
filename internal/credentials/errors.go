package credentials

import "errors"

var (
	// ErrMalformedToken indicates the access token could not be decoded. It is recoverable.
	ErrMalformedToken = errors.New("credentials.malformed_token")

	errEmptyDatabaseURL = errors.New("credentials.empty_database_url")
	errEmptySlot        = errors.New("credentials.empty_slot")
	errEmptyBoltPath    = errors.New("credentials.bolt.empty_path")
)
