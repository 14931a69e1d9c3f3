package levels

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/zeusync/levelhost/internal/core/assets"
	"github.com/zeusync/levelhost/internal/core/audio"
	"github.com/zeusync/levelhost/internal/core/events"
	"github.com/zeusync/levelhost/internal/core/lifecycle"
	"github.com/zeusync/levelhost/internal/core/metrics"
	"github.com/zeusync/levelhost/internal/core/observability/log"
	"github.com/zeusync/levelhost/internal/core/services"
	"github.com/zeusync/levelhost/internal/core/ui"
	"github.com/zeusync/levelhost/internal/core/world"
	"github.com/zeusync/levelhost/pkg/async"
)

// AssetProvider fetches and releases level content.
type AssetProvider interface {
	Fetch(ctx context.Context, req assets.BundleRequest) (any, error)
	Release(assetKey string, forced bool)
	DropUnused() int
}

type Screens interface {
	Open(name string) ui.Window
}

type AudioPlayer interface {
	PlayMusic(h audio.Handle) error
	StopClip(h audio.Handle)
}

type World interface {
	Instantiate(obj world.Object) error
	Destroy(obj world.Object)
}

// Collaborators are the services the loader drives. Any of them may be nil
// except Assets; a nil World is replaced by a private container.
type Collaborators struct {
	Assets  AssetProvider
	Screens Screens
	Audio   AudioPlayer
	World   World
}

type Config struct {
	Levels []string `yaml:"levels"`
	// Autoload loads Levels[0] once the game has started.
	Autoload      bool   `yaml:"autoload"`
	LoadingScreen string `yaml:"loading_screen"`
	QueueSize     int    `yaml:"queue_size"`
}

func DefaultConfig() *Config {
	return &Config{Autoload: true, LoadingScreen: "loading", QueueSize: 16}
}

func Kind() services.Kind {
	return services.Kind{
		New: func(_ context.Context, env services.Env) (services.Service, error) {
			return NewLoader(env), nil
		},
		Settings: func() any { return DefaultConfig() },
	}
}

type request struct {
	ctx    context.Context
	name   string
	result *async.Future[*Level]
}

// Loader owns the current level. Loads run one at a time, in call order,
// on a single worker goroutine.
type Loader struct {
	lifecycle.Base

	cfg     Config
	metrics *metrics.Collector

	mu          sync.Mutex
	collab      Collaborators
	logic       map[string]Logic
	current     *Level
	generation  uint64
	cancelFetch context.CancelFunc
	closed      bool

	queue      chan *request
	stopWorker context.CancelFunc
	wg         sync.WaitGroup
}

func NewLoader(env services.Env) *Loader {
	l := &Loader{
		cfg:     *DefaultConfig(),
		metrics: env.Metrics,
		collab:  Collaborators{World: world.NewContainer()},
		logic:   make(map[string]Logic),
	}
	l.Init(env.Name, env.Bus, env.Logger, l)
	return l
}

func (l *Loader) Configure(config any) error {
	cfg, err := lifecycle.Settings[*Config](config)
	if err != nil {
		return err
	}
	if err = l.MarkConfigured(); err != nil {
		return err
	}
	l.cfg = *cfg
	if l.cfg.QueueSize <= 0 {
		l.cfg.QueueSize = DefaultConfig().QueueSize
	}
	return nil
}

// Start launches the worker and defers the first load until the registry
// reports the game started.
func (l *Loader) Start(_ context.Context, r *services.Registry) error {
	if err := l.MarkStarted(); err != nil {
		return err
	}

	queue := make(chan *request, l.cfg.QueueSize)
	workerCtx, cancel := context.WithCancel(context.Background())
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		cancel()
		return nil
	}
	l.queue = queue
	l.stopWorker = cancel
	l.wg.Add(1)
	l.mu.Unlock()
	go l.run(workerCtx, queue)

	if r != nil {
		l.Defer(r.GameStarted().OnComplete(func(reg *services.Registry, err error) {
			if err != nil {
				return
			}
			l.onGameStart(reg)
		}))
	}
	return nil
}

// Stop discards queued and in-flight loads and unloads the current level
// before the loader reports itself stopped.
func (l *Loader) Stop(context.Context, *services.Registry) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.MarkStopped()
		return nil
	}
	l.closed = true
	l.supersedeLocked()
	cur := l.current
	l.current = nil
	stopWorker, queue := l.stopWorker, l.queue
	l.mu.Unlock()

	if stopWorker != nil {
		stopWorker()
	}
	l.wg.Wait()

drain:
	for {
		select {
		case req := <-queue:
			req.result.Reject(ErrStopped)
		default:
			break drain
		}
	}

	if cur != nil {
		l.teardown(cur)
	}
	l.MarkStopped()
	return nil
}

// Bind sets the collaborators explicitly. The game started hook calls it
// with whatever the registry provides.
func (l *Loader) Bind(c Collaborators) {
	if c.World == nil {
		c.World = world.NewContainer()
	}
	l.mu.Lock()
	l.collab = c
	l.mu.Unlock()
}

// RegisterLogic attaches game rule hooks to every future instance of the
// named level.
func (l *Loader) RegisterLogic(name string, logic Logic) {
	l.mu.Lock()
	l.logic[strings.ToLower(name)] = logic
	l.mu.Unlock()
}

func (l *Loader) onGameStart(r *services.Registry) {
	c := Collaborators{}
	c.Assets, _ = services.Lookup[AssetProvider](r)
	c.Screens, _ = services.Lookup[Screens](r)
	c.Audio, _ = services.Lookup[AudioPlayer](r)
	c.World, _ = services.Lookup[World](r)
	l.Bind(c)

	if c.Assets == nil {
		l.Logger().Error("no asset provider registered")
	}
	if !l.cfg.Autoload {
		return
	}
	if len(l.cfg.Levels) == 0 {
		l.Logger().Error("no levels configured")
		return
	}
	first := l.cfg.Levels[0]
	l.LoadLevel(context.Background(), first).OnComplete(func(_ *Level, err error) {
		if err != nil {
			l.Logger().Error("initial level failed to load", log.String("level", first), log.Error(err))
		}
	})
}

// CurrentLevel is the level currently live, or nil.
func (l *Loader) CurrentLevel() *Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// LoadLevelID loads one of the predefined levels.
func (l *Loader) LoadLevelID(ctx context.Context, id ID) *async.Future[*Level] {
	return l.LoadLevel(ctx, id.String())
}

// LoadLevel queues a load of the named level. The current level is unloaded
// before the new content is fetched. The future fails with *AssetLoadError
// when the content cannot be fetched and with ErrLoadSuperseded when an
// unload or Stop overtook the load.
func (l *Loader) LoadLevel(ctx context.Context, name string) *async.Future[*Level] {
	switch l.State() {
	case lifecycle.Started:
	case lifecycle.Stopped:
		return async.Rejected[*Level](ErrStopped)
	default:
		return async.Rejected[*Level](ErrNotStarted)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req := &request{ctx: ctx, name: name, result: async.New[*Level]()}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return async.Rejected[*Level](ErrStopped)
	}
	if l.queue == nil {
		return async.Rejected[*Level](ErrNotStarted)
	}
	select {
	case l.queue <- req:
		return req.result
	default:
		return async.Rejected[*Level](ErrQueueFull)
	}
}

// UnloadLevel unloads level if it is the current one and does nothing
// otherwise. Loads in flight are left alone; see CancelLoad. The future
// always resolves with nil.
func (l *Loader) UnloadLevel(level *Level) *async.Future[*Level] {
	l.mu.Lock()
	live := level != nil && level == l.current
	if live {
		l.current = nil
	}
	l.mu.Unlock()

	if live {
		l.teardown(level)
	}
	return async.Resolved[*Level](nil)
}

// CancelLoad supersedes the load in flight, if any. Its future fails with
// ErrLoadSuperseded and its content is released. Queued loads still run.
func (l *Loader) CancelLoad() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.supersedeLocked()
}

func (l *Loader) supersedeLocked() bool {
	if l.cancelFetch == nil {
		return false
	}
	l.generation++
	l.cancelFetch()
	return true
}

func (l *Loader) run(ctx context.Context, queue <-chan *request) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-queue:
			l.process(ctx, req)
		}
	}
}

func (l *Loader) process(workerCtx context.Context, req *request) {
	begin := time.Now()
	name := strings.ToLower(req.name)
	breq := assets.Request(Category, name)
	logger := l.Logger().With(log.String("level", name))

	if err := req.ctx.Err(); err != nil {
		req.result.Reject(err)
		return
	}

	fetchCtx, cancel := context.WithCancel(req.ctx)
	defer cancel()
	stopAfter := context.AfterFunc(workerCtx, cancel)
	defer stopAfter()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		req.result.Reject(ErrStopped)
		return
	}
	gen := l.generation
	l.cancelFetch = cancel
	prev := l.current
	l.current = nil
	c := l.collab
	logic := l.logic[name]
	l.mu.Unlock()

	if prev != nil {
		l.teardown(prev)
	}

	var screen ui.Window
	if c.Screens != nil && l.cfg.LoadingScreen != "" {
		screen = c.Screens.Open(l.cfg.LoadingScreen)
		defer screen.Close()
	}

	fail := func(err error) {
		l.clearInflight()
		l.metrics.LevelLoadFailed(metrics.ResultFailed, time.Since(begin))
		logger.Error("level load failed", log.Error(err))
		if perr := events.Emit(l.Bus(), events.LevelLoadFailed, l.Name(), events.LoadFailure{Name: name, Err: err}); perr != nil {
			logger.Warn("load failure handler failed", log.Error(perr))
		}
		req.result.Reject(err)
	}
	superseded := func() {
		l.clearInflight()
		l.metrics.LevelLoadFailed(metrics.ResultSuperseded, time.Since(begin))
		logger.Info("level load superseded")
		req.result.Reject(ErrLoadSuperseded)
	}

	if c.Assets == nil {
		fail(&AssetLoadError{Request: breq, Err: ErrNoAssetProvider})
		return
	}

	logger.Info("loading level")
	content, err := c.Assets.Fetch(fetchCtx, breq)

	if l.stale(gen) {
		if err == nil {
			c.Assets.Release(breq.Key(), true)
		}
		superseded()
		return
	}
	if err != nil {
		fail(&AssetLoadError{Request: breq, Err: err})
		return
	}

	bp, ok := content.(*Blueprint)
	if !ok {
		c.Assets.Release(breq.Key(), true)
		fail(&AssetLoadError{Request: breq, Err: ErrNotALevel})
		return
	}
	if logic.OnStart == nil && logic.OnUnload == nil {
		logic = bp.Logic
	}

	level := newLevel(name, breq.Key(), bp, logic, c.Audio, l.Logger())
	if err = c.World.Instantiate(level); err != nil {
		c.Assets.Release(breq.Key(), true)
		fail(err)
		return
	}

	c.Assets.DropUnused()
	if screen != nil {
		screen.Close()
	}

	l.mu.Lock()
	if l.generation != gen || l.closed {
		l.mu.Unlock()
		c.World.Destroy(level)
		c.Assets.Release(breq.Key(), true)
		superseded()
		return
	}
	l.current = level
	l.cancelFetch = nil
	l.mu.Unlock()

	l.metrics.LevelLoaded(name, time.Since(begin))
	logger.Info("level loaded", log.Duration("took", time.Since(begin)))
	if err = events.Emit(l.Bus(), events.LevelLoaded, l.Name(), level); err != nil {
		logger.Warn("level loaded handler failed", log.Error(err))
	}
	req.result.Resolve(level)
}

func (l *Loader) clearInflight() {
	l.mu.Lock()
	l.cancelFetch = nil
	l.mu.Unlock()
}

func (l *Loader) stale(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generation != gen
}

// teardown removes a level that is no longer current from the world and
// forces its content out of the asset provider.
func (l *Loader) teardown(level *Level) {
	l.mu.Lock()
	c := l.collab
	l.mu.Unlock()

	l.Logger().Info("unloading level", log.String("level", level.Name()))

	level.Unload()
	if c.World != nil {
		c.World.Destroy(level)
	}
	level.Destroy()
	if c.Assets != nil {
		c.Assets.Release(level.AssetKey(), true)
		c.Assets.DropUnused()
	}

	l.metrics.LevelUnloaded(level.Name())
	if err := events.Emit(l.Bus(), events.LevelUnloaded, l.Name(), (*Level)(nil)); err != nil {
		l.Logger().Warn("level unloaded handler failed", log.Error(err))
	}
}

// IsLive reports whether level is the current level.
func (l *Loader) IsLive(level *Level) bool {
	if level == nil {
		return false
	}
	return l.CurrentLevel() == level
}
