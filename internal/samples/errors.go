package samples

import (
	"errors"
	"fmt"
)

var (
	ErrAssetFetch        = errors.New("asset fetch failed")
	ErrAssetDecode       = errors.New("asset decode failed")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrInvalidPath       = errors.New("invalid asset path")
)

// AssetFetchError reports that the bytes for Path could not be retrieved.
type AssetFetchError struct {
	Path string
	Err  error
}

func (e *AssetFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Path, e.Err)
}

func (e *AssetFetchError) Unwrap() []error { return []error{ErrAssetFetch, e.Err} }

// AssetDecodeError reports that the bytes for Path are not decodable audio.
type AssetDecodeError struct {
	Path string
	Err  error
}

func (e *AssetDecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *AssetDecodeError) Unwrap() []error { return []error{ErrAssetDecode, e.Err} }
