package handlers

import (
	"context"
	"time"

	"media-downloader/internal/database"
	"media-downloader/internal/fileserver"
	"media-downloader/internal/filesystem"
	"media-downloader/internal/mediatypes"
	"media-downloader/internal/reclaim"
	"media-downloader/internal/registry"
	"media-downloader/internal/startup"
	"media-downloader/internal/streaming"
	"media-downloader/internal/transcoder"
	"media-downloader/internal/youtube"
)

// Producer fetches artifacts into the managed directory.
type Producer interface {
	Info(ctx context.Context, url string) (*youtube.VideoInfo, error)
	Download(ctx context.Context, req youtube.Request) (*youtube.Artifact, error)
	Discard(art *youtube.Artifact)
}

// Registry is the part of the registry store the handlers use.
type Registry interface {
	Register(filename, originalName string, kind mediatypes.Kind) (registry.Record, error)
	Snapshot() []registry.Record
	Dir() string
	TTL() time.Duration
}

// Resolver maps identifiers to servable files.
type Resolver interface {
	Resolve(id string) (*fileserver.ServableFile, error)
}

// Reclaimer accepts sweep requests.
type Reclaimer interface {
	Trigger()
	Stats() reclaim.Stats
}

// Thumbnailer renders artifact previews.
type Thumbnailer interface {
	IsEnabled() bool
	Generate(ctx context.Context, path string, kind mediatypes.Kind) ([]byte, error)
}

// History reads the download audit log.
type History interface {
	Recent(ctx context.Context, limit int) ([]database.Artifact, error)
	Stats(ctx context.Context) (database.Stats, error)
}

// Prober inspects media files.
type Prober interface {
	Probe(ctx context.Context, path string) (*transcoder.VideoInfo, error)
}

// Deps bundles the collaborators. Thumbnails, History and Prober may be nil.
type Deps struct {
	Registry   Registry
	Producer   Producer
	Files      Resolver
	Reclaimer  Reclaimer
	Thumbnails Thumbnailer
	History    History
	Prober     Prober
}

type Handlers struct {
	registry   Registry
	producer   Producer
	files      Resolver
	reclaimer  Reclaimer
	thumbnails Thumbnailer
	history    History
	prober     Prober

	projectName string
	apiPrefix   string
	downloadDir string
	startTime   time.Time
	retry       filesystem.RetryConfig
	stream      streaming.Config
}

func New(deps Deps, config *startup.Config) *Handlers {
	stream := streaming.DefaultConfig()
	if config.StreamWriteTimeout > 0 {
		stream.WriteTimeout = config.StreamWriteTimeout
	}

	return &Handlers{
		registry:    deps.Registry,
		producer:    deps.Producer,
		files:       deps.Files,
		reclaimer:   deps.Reclaimer,
		thumbnails:  deps.Thumbnails,
		history:     deps.History,
		prober:      deps.Prober,
		projectName: config.ProjectName,
		apiPrefix:   config.APIV1Str,
		downloadDir: deps.Registry.Dir(),
		startTime:   time.Now(),
		retry:       filesystem.DefaultRetryConfig(),
		stream:      stream,
	}
}

func (h *Handlers) triggerReclaim() {
	if h.reclaimer != nil {
		h.reclaimer.Trigger()
	}
}
