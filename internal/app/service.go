// Package app wires the ingestion side to the processing side: closed
// session records are queued for extraction, results are persisted and
// published. Raw telemetry is never discarded, even when extraction
// fails.
package app

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtcpulse/internal/app/demux"
	"github.com/dkeye/rtcpulse/internal/app/extract"
	"github.com/dkeye/rtcpulse/internal/app/pool"
	"github.com/dkeye/rtcpulse/internal/core"
	"github.com/dkeye/rtcpulse/internal/domain"
	"github.com/dkeye/rtcpulse/internal/metrics"
)

// Service owns the record lifecycle after the demultiplexer releases a
// record: extraction, metadata save, blob upload, feature publishing.
type Service struct {
	pool      *pool.Pool
	objects   core.ObjectStore
	metadata  core.MetadataStore
	publisher core.FeaturesPublisher
	folder    string
}

type ServiceOptions struct {
	Pool     *pool.Pool
	Objects  core.ObjectStore
	Metadata core.MetadataStore
	// Publisher is optional; without it extraction results are only
	// persisted, not announced.
	Publisher core.FeaturesPublisher
	Folder    string
}

func NewService(opts ServiceOptions) *Service {
	return &Service{
		pool:      opts.Pool,
		objects:   opts.Objects,
		metadata:  opts.Metadata,
		publisher: opts.Publisher,
		folder:    opts.Folder,
	}
}

// OnRecordClosed queues a flushed session record for extraction. Runs
// on the connection goroutine, so it must not block.
func (s *Service) OnRecordClosed(info demux.RecordInfo, connInfo domain.ConnectionInfo) {
	if fi, err := os.Stat(info.Path); err == nil {
		metrics.DumpSizeBytes.Observe(float64(fi.Size()))
	}

	log.Info().Str("module", "app").
		Str("clientId", info.Key).
		Str("clientType", string(connInfo.ClientType)).
		Msg("record closed, queueing for extraction")

	s.pool.Submit(extract.DumpInfo{ClientID: info.Key, DumpPath: info.Path})
	metrics.QueueDepth.Set(float64(s.pool.QueueDepth()))
}

// Run consumes extraction results until the pool's results channel
// closes. Call after pool.Stop returns to drain the tail.
func (s *Service) Run(ctx context.Context) {
	for res := range s.pool.Results() {
		metrics.QueueDepth.Set(float64(s.pool.QueueDepth()))
		if res.Err != nil {
			s.handleFailure(ctx, res)
			continue
		}
		s.handleSuccess(ctx, res)
	}
}

func (s *Service) handleSuccess(ctx context.Context, res pool.Result) {
	metrics.ProcessedDumps.Inc()
	out := res.Output
	if out.Features.Metrics.SessionDurationMs > 0 {
		metrics.SessionDurationSeconds.Observe(float64(out.Features.Metrics.SessionDurationMs) / 1000)
	}

	meta := core.DumpMeta{
		App:           out.Metadata.App,
		ClientID:      out.Metadata.ClientID,
		ClientType:    out.Metadata.ClientType,
		ConferenceID:  out.Metadata.ConferenceID,
		ConferenceURL: out.Metadata.ConferenceURL,
		DumpPath:      out.Metadata.DumpPath,
		EndpointID:    out.Metadata.EndpointID,
		SessionID:     out.Metadata.SessionID,
		UserID:        out.Metadata.UserID,
		StatsFormat:   out.Metadata.StatsFormat,
		StartDate:     out.Features.SessionStartTime,
		EndDate:       out.Features.SessionEndTime,
	}

	log.Info().Str("module", "app").
		Interface("meta", meta.Obfuscate()).
		Msg("dump processed")

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, out); err != nil {
			log.Error().Str("module", "app").Str("clientId", meta.ClientID).Err(err).Msg("features publish failed")
		} else {
			metrics.PublishedFeatures.Inc()
		}
	}

	s.persistDump(ctx, meta)
}

// handleFailure still persists the raw dump under minimal metadata so
// a processing bug never loses telemetry.
func (s *Service) handleFailure(ctx context.Context, res pool.Result) {
	metrics.ProcessErrors.Inc()
	log.Error().Str("module", "app").
		Str("clientId", res.Task.ClientID).
		Err(res.Err).
		Msg("dump extraction failed, persisting raw")

	s.persistDump(ctx, core.DumpMeta{
		ClientID: res.Task.ClientID,
		DumpPath: res.Task.DumpPath,
	})
}

// persistDump saves the metadata entry first so the blob key reflects
// any collision disambiguation, then uploads the record and removes
// the local file. The local file stays on any failure, to be retried
// by the next startup sweep.
func (s *Service) persistDump(ctx context.Context, meta core.DumpMeta) {
	if s.metadata == nil || s.objects == nil {
		return
	}

	key, err := s.metadata.SaveUnique(ctx, meta)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("metadata").Inc()
		log.Error().Str("module", "app").Str("clientId", meta.ClientID).Err(err).Msg("metadata save failed")
		return
	}

	if err := s.objects.Put(ctx, key, meta.DumpPath); err != nil {
		metrics.StorageErrors.WithLabelValues("objects").Inc()
		log.Error().Str("module", "app").Str("key", key).Err(err).Msg("record upload failed")
		return
	}

	if err := os.Remove(meta.DumpPath); err != nil {
		log.Warn().Str("module", "app").Str("path", meta.DumpPath).Err(err).Msg("local record cleanup failed")
	}
}

// Sweep re-queues record files left in the work folder by a previous
// run that died before persisting them.
func (s *Service) Sweep() error {
	entries, err := os.ReadDir(s.folder)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(s.folder, e.Name())
		log.Info().Str("module", "app").Str("path", path).Msg("re-queueing leftover record")
		s.pool.Submit(extract.DumpInfo{ClientID: e.Name(), DumpPath: path})
	}
	return nil
}
