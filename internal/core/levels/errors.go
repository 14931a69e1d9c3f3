package levels

import (
	"errors"
	"fmt"

	"github.com/zeusync/levelhost/internal/core/assets"
)

var (
	ErrNotStarted      = errors.New("levels: loader not started")
	ErrStopped         = errors.New("levels: loader stopped")
	ErrQueueFull       = errors.New("levels: load queue full")
	ErrLoadSuperseded  = errors.New("levels: load superseded")
	ErrNotALevel       = errors.New("levels: asset is not a level")
	ErrNoAssetProvider = errors.New("levels: no asset provider")
	ErrInvalidState    = errors.New("levels: invalid level state")
)

// AssetLoadError reports a level whose content could not be fetched. It is
// recoverable: the loader keeps serving further requests.
type AssetLoadError struct {
	Request assets.BundleRequest
	Err     error
}

func (e *AssetLoadError) Error() string {
	return fmt.Sprintf("levels: load %s: %v", e.Request, e.Err)
}

func (e *AssetLoadError) Unwrap() error {
	return e.Err
}
