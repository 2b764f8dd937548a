// Package state holds the client-authoritative list of uploaded assets and
// keeps it in step with the service's storage.
package state

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/bhtools/podbulk/internal/api"
	"github.com/bhtools/podbulk/internal/constants"
	"github.com/bhtools/podbulk/internal/events"
	"github.com/bhtools/podbulk/internal/logging"
	"github.com/bhtools/podbulk/internal/models"
	"github.com/bhtools/podbulk/internal/validation"
)

// ErrNoUpload is returned by WaitUpload before any selection was made.
var ErrNoUpload = errors.New("no upload has been started")

// Storage is the part of the service client that stores assets.
type Storage interface {
	UploadFiles(ctx context.Context, paths []string, progress api.UploadProgress) (*models.UploadResponse, error)
	DeleteFile(ctx context.Context, name string) error
}

// Rejection names a selected file that was not accepted into the set.
type Rejection struct {
	Path   string
	Reason string
}

// UploadResult is the outcome of the upload started by one selection.
type UploadResult struct {
	Requested []string
	Uploaded  []string
	Err       error
}

// Options configures a FileSet.
type Options struct {
	// PruneSuperseded deletes, on the service, assets that left the
	// selection when it is replaced.
	PruneSuperseded bool

	// Progress, if set, wraps every streamed file.
	Progress api.UploadProgress
}

// FileSet is the observable list of uploaded assets.
// Thread-safe for concurrent access.
type FileSet struct {
	storage  Storage
	eventBus *events.EventBus
	log      *logging.Logger
	opts     Options

	mu        sync.RWMutex
	assets    []models.Asset
	gen       uint64
	upload    *UploadResult
	uploadGen uint64
	done      chan struct{}
	lastError error
}

// NewFileSet creates an empty file set.
func NewFileSet(storage Storage, eventBus *events.EventBus, logger *logging.Logger, opts Options) *FileSet {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &FileSet{
		storage:  storage,
		eventBus: eventBus,
		log:      logger.Component("files"),
		opts:     opts,
		assets:   make([]models.Asset, 0),
	}
}

// SetProgress sets the upload progress tracker for later uploads.
func (s *FileSet) SetProgress(p api.UploadProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Progress = p
}

// ReplaceSelection discards the current list and rebuilds it from files,
// then uploads the whole new set in one request in the background. Files
// with a disallowed extension or a duplicate name are left out and
// returned as rejections. WaitUpload observes the upload.
func (s *FileSet) ReplaceSelection(ctx context.Context, files []string) []Rejection {
	accepted, rejected := screen(files)
	names := lo.Map(accepted, func(p string, _ int) string { return filepath.Base(p) })

	s.mu.Lock()
	previous := lo.Filter(s.assets, func(a models.Asset, _ int) bool { return a.RemotePresent })
	s.gen++
	gen := s.gen
	s.assets = lo.Map(names, func(n string, _ int) models.Asset { return models.Asset{Name: n} })
	s.lastError = nil
	done := make(chan struct{})
	s.done = done
	s.upload = nil
	s.uploadGen = gen
	progress := s.opts.Progress
	s.mu.Unlock()

	s.publishAssets(names)
	for _, r := range rejected {
		s.log.Warn().Str("file", r.Path).Msg(r.Reason)
	}

	superseded := lo.Without(lo.Map(previous, func(a models.Asset, _ int) string { return a.Name }), names...)

	go s.runUpload(ctx, gen, accepted, names, superseded, progress, done)

	return rejected
}

func (s *FileSet) runUpload(ctx context.Context, gen uint64, paths, names, superseded []string, progress api.UploadProgress, done chan struct{}) {
	defer close(done)

	if s.opts.PruneSuperseded {
		for _, name := range superseded {
			if err := s.storage.DeleteFile(ctx, name); err != nil {
				s.log.Warn().Err(err).Str("file", name).Msg("failed to prune superseded asset")
				continue
			}
			s.log.Debug().Str("file", name).Msg("pruned superseded asset")
		}
	} else if len(superseded) > 0 {
		s.log.Debug().Strs("files", superseded).Msg("superseded assets left on the service")
	}

	result := &UploadResult{Requested: names}
	if len(paths) == 0 {
		result.Err = errors.New("no valid image files selected")
	} else {
		resp, err := s.storage.UploadFiles(ctx, paths, progress)
		if err != nil {
			result.Err = err
		} else {
			result.Uploaded = resp.Uploaded
		}
	}

	s.mu.Lock()
	current := s.gen == gen
	if current {
		s.upload = result
		if result.Err == nil {
			acked := lo.KeyBy(result.Uploaded, func(n string) string { return n })
			for i := range s.assets {
				if _, ok := acked[s.assets[i].Name]; ok {
					s.assets[i].RemotePresent = true
				}
			}
		} else {
			s.lastError = result.Err
		}
	}
	s.mu.Unlock()

	if !current {
		s.log.Debug().Msg("upload finished after a newer selection, result ignored")
		return
	}

	if result.Err != nil {
		s.log.Error().Err(result.Err).Msg("upload failed")
	} else {
		s.log.Info().Int("files", len(result.Uploaded)).Msg("upload acknowledged")
		if missing := lo.Without(names, result.Uploaded...); len(missing) > 0 {
			s.log.Warn().Strs("files", missing).Msg("service did not store every file")
		}
	}

	if s.eventBus != nil {
		s.eventBus.Publish(&events.UploadFinishedEvent{
			BaseEvent: events.BaseEvent{EventType: events.EventUploadFinished, Time: time.Now()},
			Requested: result.Requested,
			Uploaded:  result.Uploaded,
			Error:     result.Err,
		})
	}
}

// Restore seeds the list with names already stored on the service, such
// as the selection recorded by an earlier run. It publishes but uploads
// nothing.
func (s *FileSet) Restore(names []string) {
	s.mu.Lock()
	s.gen++
	s.assets = lo.Map(lo.Uniq(names), func(n string, _ int) models.Asset {
		return models.Asset{Name: n, RemotePresent: true}
	})
	current := s.namesLocked()
	s.mu.Unlock()

	s.publishAssets(current)
}

// WaitUpload blocks until the upload of the latest selection has finished
// and returns its result. A newer selection made while waiting is not
// waited for.
func (s *FileSet) WaitUpload(ctx context.Context) (UploadResult, error) {
	s.mu.RLock()
	done := s.done
	gen := s.uploadGen
	s.mu.RUnlock()

	if done == nil {
		return UploadResult{}, ErrNoUpload
	}

	select {
	case <-done:
	case <-ctx.Done():
		return UploadResult{}, ctx.Err()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.uploadGen != gen || s.upload == nil {
		return UploadResult{}, fmt.Errorf("selection replaced during upload")
	}
	return *s.upload, nil
}

// DeleteAsset deletes name on the service. On success exactly that asset
// leaves the list; on failure the list is unchanged and the service's
// error text is returned.
func (s *FileSet) DeleteAsset(ctx context.Context, name string) error {
	if err := validation.AssetName(name); err != nil {
		return err
	}
	if err := s.storage.DeleteFile(ctx, name); err != nil {
		s.mu.Lock()
		s.lastError = err
		s.mu.Unlock()

		s.log.Warn().Err(err).Str("file", name).Msg("delete failed")
		if s.eventBus != nil {
			s.eventBus.Publish(&events.AssetErrorEvent{
				BaseEvent: events.BaseEvent{EventType: events.EventAssetError, Time: time.Now()},
				Name:      name,
				Error:     err,
			})
		}
		return err
	}

	s.mu.Lock()
	idx := lo.IndexOf(s.namesLocked(), name)
	if idx >= 0 {
		s.assets = append(s.assets[:idx:idx], s.assets[idx+1:]...)
	}
	names := s.namesLocked()
	s.mu.Unlock()

	s.log.Info().Str("file", name).Msg("asset deleted")
	if idx >= 0 {
		s.publishAssets(names)
	}
	return nil
}

// Assets returns a copy of the current assets.
func (s *FileSet) Assets() []models.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Asset, len(s.assets))
	copy(result, s.assets)
	return result
}

// Names returns the current asset names in selection order.
func (s *FileSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.namesLocked()
}

func (s *FileSet) namesLocked() []string {
	return lo.Map(s.assets, func(a models.Asset, _ int) string { return a.Name })
}

// Count returns the number of assets.
func (s *FileSet) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.assets)
}

// LastError returns the error of the latest failed operation.
func (s *FileSet) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

func (s *FileSet) publishAssets(names []string) {
	if s.eventBus != nil {
		s.eventBus.PublishAssets(names)
	}
}

// screen splits files into accepted paths and rejections.
func screen(files []string) ([]string, []Rejection) {
	var accepted []string
	var rejected []Rejection
	seen := make(map[string]bool, len(files))

	for _, f := range files {
		name := filepath.Base(f)
		if !AllowedImage(name) {
			rejected = append(rejected, Rejection{Path: f, Reason: "unsupported file type, allowed: " + strings.Join(constants.AllowedImageExtensions, ", ")})
			continue
		}
		if seen[name] {
			rejected = append(rejected, Rejection{Path: f, Reason: "duplicate file name " + name})
			continue
		}
		seen[name] = true
		accepted = append(accepted, f)
	}
	return accepted, rejected
}

// AllowedImage reports whether name has an extension the service accepts.
func AllowedImage(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	return lo.Contains(constants.AllowedImageExtensions, ext)
}
