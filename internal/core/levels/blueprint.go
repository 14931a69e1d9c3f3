package levels

import (
	"fmt"

	"github.com/zeusync/levelhost/internal/core/assets"
	"github.com/zeusync/levelhost/internal/core/audio"
)

// Category is the asset category levels are stored under.
const Category = "levels"

// Blueprint is the fetched content a Level is instantiated from.
type Blueprint struct {
	Name  string
	Music audio.Handle
	Logic Logic
}

// DecodeBlueprint is the asset decoder for the levels category. Recognised
// params: "name" (display name, defaults to the asset key) and "music" (tone
// frequency in Hz).
func DecodeBlueprint(spec assets.AssetSpec) (any, error) {
	name := spec.Params["name"]
	if name == "" {
		name = spec.Key
	}
	bp := &Blueprint{Name: name}

	track, err := audio.ParseTrack(spec.Key+"-theme", spec.Params["music"])
	if err != nil {
		return nil, fmt.Errorf("level %s: music: %w", spec.Key, err)
	}
	if track != nil {
		bp.Music = track
	}
	return bp, nil
}
