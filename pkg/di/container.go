// Package di wires the survey targeting stack: database, cache service, key
// serializer, repositories, domain services, and the eligibility pipeline.
package di

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/mattn/go-sqlite3"

	"github.com/goliatone/go-survey-targeting/cache"
	"github.com/goliatone/go-survey-targeting/eligibility"
	"github.com/goliatone/go-survey-targeting/store"
	"github.com/goliatone/go-survey-targeting/storecache"
	"github.com/goliatone/go-survey-targeting/tagging"
)

// Config collects the tunables of a container.
type Config struct {
	// Cache configures the shared cache backend.
	Cache cache.Config
	// DefaultRecontactDays applies to surveys without their own window. Nil
	// disables the default.
	DefaultRecontactDays *int
	// ResultTTL bounds cached reads and eligibility results. Zero means the
	// cache backend default.
	ResultTTL time.Duration
	Logger    *slog.Logger
}

// DefaultConfig returns a config suitable for development.
func DefaultConfig() Config {
	return Config{
		Cache:     cache.DefaultConfig(),
		ResultTTL: store.DefaultReadTTL,
	}
}

// Container holds singleton instances of every component. Build one per
// process; the cache tag index only invalidates entries it saw populated.
type Container struct {
	db     *bun.DB
	ownsDB bool

	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	config        Config
	logger        *slog.Logger

	surveys       *store.SurveyService
	segments      *store.SegmentService
	displays      *store.DisplayService
	people        *store.PersonService
	actionClasses *store.ActionClassService
	pipeline      *eligibility.Pipeline
}

// New builds a container over an existing database handle. The caller keeps
// ownership of db; Close will not touch it.
func New(db *bun.DB, cfg Config) (*Container, error) {
	cacheService, err := cache.NewCacheService(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("di: cache service: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	keySerializer := cache.NewDefaultKeySerializer()

	c := &Container{
		db:            db,
		cacheService:  cacheService,
		keySerializer: keySerializer,
		config:        cfg,
		logger:        logger,
	}

	c.surveys = store.NewSurveyService(db, cacheService, keySerializer, logger)
	c.segments = store.NewSegmentService(db, cacheService, keySerializer, logger)
	c.displays = store.NewDisplayService(db, cacheService, keySerializer, logger)
	c.people = store.NewPersonService(db, cacheService, keySerializer, logger)
	c.actionClasses = store.NewActionClassService(db, cacheService, keySerializer, logger)

	c.pipeline = eligibility.NewPipeline(c.surveys, c.displays, c.people, cacheService, keySerializer, eligibility.Options{
		DefaultRecontactDays: cfg.DefaultRecontactDays,
		ResultTTL:            cfg.ResultTTL,
		Logger:               logger,
	})

	return c, nil
}

// Open builds a container over a fresh SQLite database at dsn. Close tears
// the connection down.
func Open(dsn string, cfg Config) (*Container, error) {
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("di: open database: %w", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())

	c, err := New(db, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	c.ownsDB = true
	return c, nil
}

// Close releases the database handle if the container opened it.
func (c *Container) Close() error {
	if c.ownsDB && c.db != nil {
		return c.db.Close()
	}
	return nil
}

// DB returns the underlying database handle.
func (c *Container) DB() *bun.DB { return c.db }

// CacheService returns the shared cache service.
func (c *Container) CacheService() cache.CacheService { return c.cacheService }

// KeySerializer returns the shared key serializer.
func (c *Container) KeySerializer() cache.KeySerializer { return c.keySerializer }

// Config returns a copy of the container configuration.
func (c *Container) Config() Config { return c.config }

// Surveys returns the survey service.
func (c *Container) Surveys() *store.SurveyService { return c.surveys }

// Segments returns the segment service.
func (c *Container) Segments() *store.SegmentService { return c.segments }

// Displays returns the display service.
func (c *Container) Displays() *store.DisplayService { return c.displays }

// People returns the person service.
func (c *Container) People() *store.PersonService { return c.people }

// ActionClasses returns the action class service.
func (c *Container) ActionClasses() *store.ActionClassService { return c.actionClasses }

// Pipeline returns the eligibility pipeline.
func (c *Container) Pipeline() *eligibility.Pipeline { return c.pipeline }

// NewCachedRepository wraps base with the container's cache service and key
// serializer. Since Go methods cannot have type parameters, this is a
// package-level function.
func NewCachedRepository[T any](c *Container, base repository.Repository[T], kind tagging.Kind, tagger storecache.TaggerFunc[T]) *storecache.CachedRepository[T] {
	return storecache.New(base, c.cacheService, c.keySerializer, kind, tagger, c.config.ResultTTL)
}
