// Package demux splits one inbound telemetry stream into independent
// per-session append-only record files. One Demux instance serves one
// physical connection; a connection may multiplex several sessions.
package demux

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtcpulse/internal/domain"
)

var ErrNoSession = errors.New("event without session id")

// RecordInfo is the completion signal emitted once per session record,
// when the record is flushed and released.
type RecordInfo struct {
	SessionID domain.SessionID
	// Key is the storage key the record was written under. Differs
	// from SessionID when the id collided with an existing record.
	Key       string
	Path      string
	Meta      map[string]any
	StartDate int64
	EndDate   int64
}

// Options configures a Demux for one connection.
type Options struct {
	Folder         string
	ConnInfo       domain.ConnectionInfo
	OnRecordClosed func(RecordInfo)
}

type record struct {
	id        domain.SessionID
	key       string
	path      string
	file      *os.File
	meta      map[string]any
	startDate int64
}

// Demux routes raw events by kind: identity events merge into an
// in-memory side table, data events append to the session record,
// close events flush and release the record. Not safe for concurrent
// use; the owning connection goroutine is the single writer.
type Demux struct {
	folder   string
	connInfo domain.ConnectionInfo
	onClosed func(RecordInfo)
	records  map[domain.SessionID]*record
}

func New(opts Options) *Demux {
	return &Demux{
		folder:   opts.Folder,
		connInfo: opts.ConnInfo,
		onClosed: opts.OnRecordClosed,
		records:  make(map[domain.SessionID]*record),
	}
}

// HandleEvent routes one inbound event. A returned error is fatal to
// the whole stream: the caller must terminate the connection and call
// CloseAll, failing every session multiplexed on it together.
func (d *Demux) HandleEvent(ev *domain.RawEvent) error {
	if ev.SessionID == "" {
		return ErrNoSession
	}

	rec, err := d.record(ev.SessionID)
	if err != nil {
		return err
	}

	switch ev.Kind() {
	case domain.EventIdentity:
		d.mergeMeta(rec, ev.Data)
		return nil
	case domain.EventStatsEntry:
		return d.append(rec, ev.Data)
	case domain.EventClose:
		d.closeRecord(rec)
		return nil
	case domain.EventConnectionInfo, domain.EventUnknown:
		// Connection info is captured server-side at accept time;
		// anything else is ignored rather than mis-routed.
		return nil
	default:
		return nil
	}
}

// CloseAll flushes and releases every record still open on this
// stream, as if a close event had been received for each. Called on
// remote disconnect, protocol violation, idle timeout and upstream
// errors; no event is silently dropped.
func (d *Demux) CloseAll(reason string) {
	if len(d.records) > 0 {
		log.Info().Str("module", "demux").Str("reason", reason).Int("open", len(d.records)).Msg("closing all records")
	}
	for _, rec := range d.records {
		d.closeRecord(rec)
	}
}

// Open reports the number of records currently open on this stream.
func (d *Demux) Open() int {
	return len(d.records)
}

func (d *Demux) record(id domain.SessionID) (*record, error) {
	if rec, ok := d.records[id]; ok {
		return rec, nil
	}

	rec, err := d.createRecord(id)
	if err != nil {
		return nil, fmt.Errorf("create record %s: %w", id, err)
	}
	d.records[id] = rec

	return rec, nil
}

// createRecord opens the record file under the first free key. A key
// collision means the id is being reused while a prior record is still
// around (a known client retry behavior): the record gets the next
// disambiguated key for its entire lifetime, never overwriting.
func (d *Demux) createRecord(id domain.SessionID) (*record, error) {
	key := string(id)
	for i := 1; ; i++ {
		path := filepath.Join(d.folder, key)
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			log.Info().Str("module", "demux").Str("sid", string(id)).Str("key", key).Msg("open record")
			rec := &record{
				id:        id,
				key:       key,
				path:      path,
				file:      file,
				meta:      make(map[string]any),
				startDate: time.Now().UnixMilli(),
			}
			if err := d.writeHeader(rec); err != nil {
				d.discardRecord(rec)
				return nil, err
			}
			return rec, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
		key = fmt.Sprintf("%s_%d", id, i)
	}
}

// discardRecord releases a record that never became usable: the file is
// closed and removed so the key stays free for a later attempt.
func (d *Demux) discardRecord(rec *record) {
	_ = rec.file.Close()
	if err := os.Remove(rec.path); err != nil {
		log.Error().Str("module", "demux").Str("key", rec.key).Err(err).Msg("removing discarded record file")
	}
}

// writeHeader writes the connection info entry as the record's first
// line so extraction is self-contained.
func (d *Demux) writeHeader(rec *record) error {
	payload, err := json.Marshal(d.connInfo)
	if err != nil {
		return err
	}
	entry := domain.Entry{
		Type:      "connectionInfo",
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return d.writeLine(rec, line)
}

func (d *Demux) append(rec *record, data json.RawMessage) error {
	if len(data) == 0 {
		return nil
	}
	return d.writeLine(rec, data)
}

func (d *Demux) writeLine(rec *record, line []byte) error {
	if _, err := rec.file.Write(line); err != nil {
		return err
	}
	_, err := rec.file.Write([]byte{'\n'})
	return err
}

func (d *Demux) mergeMeta(rec *record, data json.RawMessage) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		log.Warn().Str("module", "demux").Str("sid", string(rec.id)).Err(err).Msg("unparseable identity event")
		return
	}
	for k, v := range fields {
		rec.meta[k] = v
	}
}

func (d *Demux) closeRecord(rec *record) {
	log.Info().Str("module", "demux").Str("sid", string(rec.id)).Str("key", rec.key).Msg("close record")

	if err := rec.file.Close(); err != nil {
		log.Error().Str("module", "demux").Str("key", rec.key).Err(err).Msg("closing record file")
	}
	delete(d.records, rec.id)

	if d.onClosed != nil {
		d.onClosed(RecordInfo{
			SessionID: rec.id,
			Key:       rec.key,
			Path:      rec.path,
			Meta:      rec.meta,
			StartDate: rec.startDate,
			EndDate:   time.Now().UnixMilli(),
		})
	}
}
