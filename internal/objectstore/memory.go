package objectstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements ObjectStore over an in-process map. It stands in
// for S3Store in tests and single-node deployments, so its Put enforces the
// same configured size cap and its ETag is a real content hash rather than
// a key-derived placeholder, keeping the two implementations' observable
// behavior close enough that a test written against one transfers to the
// other.
type MemoryStore struct {
	mu        sync.RWMutex
	objects   map[string]*memObject
	maxObject int64
}

type memObject struct {
	data     []byte
	attrs    ObjectAttrs
	metadata map[string]string
}

// NewMemoryStore creates an in-memory ObjectStore with no size cap. Use
// NewMemoryStoreWithLimit to exercise the same ErrPayloadTooLarge path
// S3Store enforces.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]*memObject)}
}

// NewMemoryStoreWithLimit creates an in-memory ObjectStore that rejects
// puts larger than maxObjectBytes, mirroring S3Store's S3_MAX_OBJECT_MB
// enforcement for tests that need to exercise the limit without a real
// S3-compatible backend.
func NewMemoryStoreWithLimit(maxObjectBytes int64) *MemoryStore {
	return &MemoryStore{objects: make(map[string]*memObject), maxObject: maxObjectBytes}
}

func contentETag(data []byte) string {
	sum := sha256.Sum256(data)
	return "\"" + hex.EncodeToString(sum[:]) + "\""
}

// Get retrieves an object by key.
func (m *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, ObjectAttrs, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ObjectAttrs{}, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.attrs, nil
}

// Put stores an object with the given key, returning ErrPayloadTooLarge
// if a limit was configured and the payload exceeds it.
func (m *MemoryStore) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}

	var data []byte
	var err error
	if m.maxObject > 0 {
		data, err = io.ReadAll(io.LimitReader(r, m.maxObject+1))
		if err == nil && int64(len(data)) > m.maxObject {
			return "", ErrPayloadTooLarge
		}
	} else {
		data, err = io.ReadAll(r)
	}
	if err != nil {
		return "", err
	}

	etag := contentETag(data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = &memObject{
		data: data,
		attrs: ObjectAttrs{
			Key:          key,
			Size:         int64(len(data)),
			ETag:         etag,
			LastModified: time.Now().UTC(),
			ContentType:  opts.ContentType,
		},
		metadata: opts.Metadata,
	}
	return etag, nil
}

// Delete removes an object by key.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// List returns objects matching the given options.
func (m *MemoryStore) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var objects []ObjectAttrs
	prefixSet := make(map[string]bool)

	for key, obj := range m.objects {
		if opts.Prefix != "" && !strings.HasPrefix(key, opts.Prefix) {
			continue
		}
		if opts.Delimiter != "" {
			suffix := strings.TrimPrefix(key, opts.Prefix)
			if idx := strings.Index(suffix, opts.Delimiter); idx >= 0 {
				prefixSet[opts.Prefix+suffix[:idx+1]] = true
				continue
			}
		}
		objects = append(objects, obj.attrs)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })

	var prefixes []string
	for p := range prefixSet {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	if opts.MaxKeys > 0 && len(objects) > opts.MaxKeys {
		return ListResult{
			Objects:               objects[:opts.MaxKeys],
			CommonPrefixes:        prefixes,
			IsTruncated:           true,
			NextContinuationToken: objects[opts.MaxKeys].Key,
		}, nil
	}
	return ListResult{Objects: objects, CommonPrefixes: prefixes}, nil
}

// Head returns object metadata without the content.
func (m *MemoryStore) Head(ctx context.Context, key string) (ObjectAttrs, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return ObjectAttrs{}, ErrNotFound
	}
	return obj.attrs, nil
}

// Copy duplicates an object to a new key, keeping the source's ETag since
// the key itself is not part of the hash.
func (m *MemoryStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.objects[srcKey]
	if !ok {
		return ErrNotFound
	}
	data := make([]byte, len(src.data))
	copy(data, src.data)
	m.objects[dstKey] = &memObject{
		data: data,
		attrs: ObjectAttrs{
			Key:          dstKey,
			Size:         src.attrs.Size,
			ETag:         src.attrs.ETag,
			LastModified: time.Now().UTC(),
			ContentType:  src.attrs.ContentType,
		},
		metadata: src.metadata,
	}
	return nil
}

// Exists checks if an object exists at the given key.
func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

// Ping always succeeds for the in-memory store.
func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

var _ ObjectStore = (*MemoryStore)(nil)
