// Package levels loads and unloads levels: content units fetched from the
// asset provider, attached to the world and tracked as the current level.
package levels

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/zeusync/levelhost/internal/core/audio"
	"github.com/zeusync/levelhost/internal/core/observability/log"
)

type State uint8

const (
	Loaded State = iota
	Started
	InProgress
	Completed
)

func (s State) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Started:
		return "started"
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Logic are the game rule hooks of a level. Both are optional.
type Logic struct {
	OnStart  func(l *Level)
	OnUnload func(l *Level)
}

// Level is one live instance of a level blueprint.
type Level struct {
	id       uuid.UUID
	name     string
	assetKey string
	music    audio.Handle
	logic    Logic
	player   AudioPlayer
	logger   log.Log

	mu       sync.Mutex
	state    State
	playing  bool
	unloaded bool
}

func newLevel(name, assetKey string, bp *Blueprint, logic Logic, player AudioPlayer, logger log.Log) *Level {
	if logger == nil {
		logger = log.Nop()
	}
	l := &Level{
		id:       uuid.New(),
		name:     name,
		assetKey: assetKey,
		logic:    logic,
		player:   player,
		state:    Loaded,
	}
	if bp != nil && bp.Music != nil && bp.Music.Valid() {
		l.music = bp.Music
	}
	l.logger = logger.With(log.String("level", name), log.String("level_id", l.id.String()))
	l.logger.Debug("level loaded")
	return l
}

func (l *Level) ID() uuid.UUID       { return l.id }
func (l *Level) Name() string        { return l.name }
func (l *Level) AssetKey() string    { return l.assetKey }
func (l *Level) Music() audio.Handle { return l.music }
func (l *Level) ObjectID() string    { return "level:" + l.id.String() }

func (l *Level) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// MusicPlaying reports whether the level asked the audio player to play its
// background track and has not stopped it since.
func (l *Level) MusicPlaying() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.playing
}

// Attach runs when the level enters the world: Loaded -> Started ->
// InProgress, background music on, OnStart hook.
func (l *Level) Attach() error {
	l.mu.Lock()
	if l.state != Loaded {
		l.mu.Unlock()
		return fmt.Errorf("level %s: %w: attach in state %s", l.name, ErrInvalidState, l.state)
	}
	l.state = Started
	l.logger.Debug("level started")

	if l.player != nil && l.music != nil {
		if err := l.player.PlayMusic(l.music); err != nil {
			l.logger.Warn("background music failed", log.Error(err))
		} else {
			l.playing = true
		}
	}
	l.state = InProgress
	onStart := l.logic.OnStart
	l.mu.Unlock()

	if onStart != nil {
		onStart(l)
	}
	return nil
}

// Detach runs when the world drops the level.
func (l *Level) Detach() {
	l.Destroy()
}

// Unload stops the background track and runs the OnUnload hook once.
func (l *Level) Unload() {
	l.release()
}

// Destroy is Unload for a level being removed from the world.
func (l *Level) Destroy() {
	l.release()
}

// Complete is asserted by game logic once the level's goal is reached.
func (l *Level) Complete() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != InProgress {
		return fmt.Errorf("level %s: %w: complete in state %s", l.name, ErrInvalidState, l.state)
	}
	l.state = Completed
	l.logger.Info("level completed")
	return nil
}

func (l *Level) release() {
	l.mu.Lock()
	if l.playing {
		l.player.StopClip(l.music)
		l.playing = false
	}
	first := !l.unloaded
	l.unloaded = true
	onUnload := l.logic.OnUnload
	l.mu.Unlock()

	if first && onUnload != nil {
		onUnload(l)
	}
}

func (l *Level) String() string {
	return fmt.Sprintf("%s(%s)", l.name, l.State())
}
