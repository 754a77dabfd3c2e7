// Package pagecache caches rendered listing pages on disk so repeated
// runs inside a short window do not re-contact the remote service.
// Time-sensitive pages (anything behind authentication) must not go
// through this cache.
package pagecache

import (
	"bytes"
	"context"
	"encoding/gob"
	"net/url"
	"time"

	"github.com/PuerkitoBio/purell"
	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("scholar-seeker.lib.pagecache")

var ErrNotFound = badger.ErrKeyNotFound

type entry struct {
	Contents  []byte
	ExpiresAt int64
}

type Cache struct {
	db *badger.DB
}

func New(db *badger.DB) Cache {
	return Cache{db: db}
}

// Open creates a badger-backed cache at dir. Pass ":memory:" to keep
// the cache in memory (used by tests).
func Open(dir string) (Cache, error) {
	var opts badger.Options
	if dir == ":memory:" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return Cache{}, err
	}
	return New(db), nil
}

func (c Cache) Close() error {
	return c.db.Close()
}

func cacheKey(link string) (string, error) {
	full, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	normalized := purell.NormalizeURL(
		full,
		purell.FlagsSafe|
			purell.FlagsUsuallySafeNonGreedy|
			purell.FlagRemoveDirectoryIndex|
			purell.FlagRemoveFragment|
			purell.FlagSortQuery,
	)
	return normalized, nil
}

func (c Cache) Get(ctx context.Context, link string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "get")
	defer span.End()

	key, err := cacheKey(link)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create cache key")
		return nil, err
	}
	span.SetAttributes(attribute.String("cache_key", key))

	tx := c.db.NewTransaction(false)
	defer tx.Discard()

	item, err := tx.Get([]byte(key))
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read item from badger")
		return nil, err
	}
	serialized, err := item.ValueCopy(nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to copy cached item")
		return nil, err
	}

	var cached entry
	err = gob.NewDecoder(bytes.NewBuffer(serialized)).Decode(&cached)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to deserialize cached item")
		return nil, err
	}

	if time.Now().Unix() >= cached.ExpiresAt {
		span.AddEvent("delete expired cache key", trace.WithAttributes(
			attribute.String("key", key),
		))

		wtx := c.db.NewTransaction(true)
		defer wtx.Commit()

		err = wtx.Delete([]byte(key))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to delete expired key")
		}

		span.SetStatus(codes.Ok, "CACHE EXPIRED")
		return nil, ErrNotFound
	}

	span.AddEvent("cache hit", trace.WithAttributes(
		attribute.Int("contentlength", len(cached.Contents)),
	))
	return cached.Contents, nil
}

func (c Cache) Set(ctx context.Context, link string, contents []byte, lifetime time.Duration) error {
	ctx, span := tracer.Start(ctx, "set")
	defer span.End()

	key, err := cacheKey(link)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create cache key")
		return err
	}
	span.SetAttributes(attribute.String("cache_key", key))

	serialized := bytes.NewBuffer(nil)
	err = gob.NewEncoder(serialized).Encode(entry{
		Contents:  contents,
		ExpiresAt: time.Now().Add(lifetime).Unix(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to serialize page")
		return err
	}

	tx := c.db.NewTransaction(true)
	defer tx.Commit()

	err = tx.Set([]byte(key), serialized.Bytes())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to set badger item")
		return err
	}

	return nil
}
