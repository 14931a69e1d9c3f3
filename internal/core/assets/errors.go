package assets

import "errors"

var (
	ErrBundleNotFound = errors.New("assets: bundle not found")
	ErrAssetNotFound  = errors.New("assets: asset not found")
	ErrNotStarted     = errors.New("assets: provider not started")
)
