package document

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/loansight/assistant/internal/observability"
)

// ErrUploaderClosed is returned by Submit after Close
var ErrUploaderClosed = errors.New("uploader is closed")

// Upload is a file received from the user, held in memory until ingested
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

type job struct {
	id     string
	upload Upload
}

// Uploader registers uploads in the store and ingests them one at a time,
// in submission order
type Uploader struct {
	store     *Store
	extractor Extractor
	logger    zerolog.Logger

	queue  chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewUploader starts the ingestion worker
func NewUploader(store *Store, extractor Extractor, queueSize int) *Uploader {
	if queueSize <= 0 {
		queueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	u := &Uploader{
		store:     store,
		extractor: extractor,
		logger:    observability.WithComponent("uploader"),
		queue:     make(chan job, queueSize),
		ctx:       ctx,
		cancel:    cancel,
	}

	u.wg.Add(1)
	go u.run()
	return u
}

// Submit creates uploading entries for every file and queues them for extraction.
// The returned documents are in the same order as uploads.
func (u *Uploader) Submit(uploads ...Upload) ([]Document, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.closed {
		return nil, ErrUploaderClosed
	}

	files := make([]NewFile, len(uploads))
	for i, up := range uploads {
		files[i] = NewFile{Name: up.Name, Size: int64(len(up.Data)), ContentType: up.ContentType}
	}
	docs := u.store.Add(files...)

	for i, d := range docs {
		select {
		case u.queue <- job{id: d.ID, upload: uploads[i]}:
		case <-u.ctx.Done():
			return docs, ErrUploaderClosed
		}
	}
	return docs, nil
}

func (u *Uploader) run() {
	defer u.wg.Done()
	for {
		select {
		case <-u.ctx.Done():
			return
		case j := <-u.queue:
			u.process(j)
		}
	}
}

func (u *Uploader) process(j job) {
	logger := u.logger.With().Str("document_id", j.id).Str("file", j.upload.Name).Logger()

	// Removed while queued
	if err := u.store.MarkProcessing(j.id); err != nil {
		logger.Debug().Msg("Skipping removed document")
		return
	}

	res, err := u.extractor.Extract(u.ctx, j.upload.Name, j.upload.ContentType, j.upload.Data)
	if err != nil {
		logger.Error().Err(err).Msg("Document ingestion failed")
		_ = u.store.Fail(j.id, err)
		return
	}
	if err := u.store.Complete(j.id, res.Content, res.Accuracy); err != nil {
		logger.Debug().Msg("Document removed during ingestion")
	}
}

// Close stops the worker. Queued uploads that have not started are left in
// uploading state; an upload in flight is cancelled and marked failed.
func (u *Uploader) Close() {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return
	}
	u.closed = true
	u.mu.Unlock()

	u.cancel()
	u.wg.Wait()
}
