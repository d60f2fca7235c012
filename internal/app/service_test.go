package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/rtcpulse/internal/app/demux"
	"github.com/dkeye/rtcpulse/internal/app/extract"
	"github.com/dkeye/rtcpulse/internal/app/pool"
	"github.com/dkeye/rtcpulse/internal/core"
	"github.com/dkeye/rtcpulse/internal/domain"
)

type fakeObjectStore struct {
	mu   sync.Mutex
	puts map[string]string
	fail bool
}

func (f *fakeObjectStore) Put(ctx context.Context, key, localPath string) error {
	if f.fail {
		return errors.New("upload refused")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.puts == nil {
		f.puts = make(map[string]string)
	}
	f.puts[key] = localPath
	return nil
}

func (f *fakeObjectStore) SignedURL(ctx context.Context, key string) (string, error) {
	return "", core.ErrNotSupported
}

type fakeMetadataStore struct {
	mu    sync.Mutex
	saved []core.DumpMeta
	key   string
}

func (f *fakeMetadataStore) SaveUnique(ctx context.Context, meta core.DumpMeta) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, meta)
	if f.key != "" {
		return f.key, nil
	}
	return meta.ClientID, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	payloads []any
}

func (f *fakePublisher) Publish(ctx context.Context, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return nil
}

func writeRecord(t *testing.T, dir, name string, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const browserHeader = `["connectionInfo", null, {"clientType": "RTCSTATS_CLIENT", "statsFormat": "chrome_standard"}, 1000]
["identity", null, {"endpointId": "ep1"}, 1500]
["getstats", "PC_0", {}, 2000]
["getstats", "PC_0", {}, 7000]`

func runService(t *testing.T, objects *fakeObjectStore, metadata *fakeMetadataStore, publisher *fakePublisher, folder string) (*Service, *pool.Pool, func()) {
	t.Helper()
	p := pool.New(1, extract.ProcessRecord)
	var pub core.FeaturesPublisher
	if publisher != nil {
		pub = publisher
	}
	s := NewService(ServiceOptions{
		Pool:      p,
		Objects:   objects,
		Metadata:  metadata,
		Publisher: pub,
		Folder:    folder,
	})

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()
	return s, p, func() {
		p.Stop()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("service did not drain")
		}
	}
}

func TestRecordFlowsThroughExtractionAndPersistence(t *testing.T) {
	dir := t.TempDir()
	path := writeRecord(t, dir, "abc", browserHeader)

	objects := &fakeObjectStore{}
	metadata := &fakeMetadataStore{}
	publisher := &fakePublisher{}
	s, _, drain := runService(t, objects, metadata, publisher, dir)

	s.OnRecordClosed(demux.RecordInfo{Key: "abc", Path: path}, domain.ConnectionInfo{ClientType: domain.ClientRTCStats})
	drain()

	require.Len(t, metadata.saved, 1)
	assert.Equal(t, "abc", metadata.saved[0].ClientID)
	assert.Equal(t, int64(2000), metadata.saved[0].StartDate)
	assert.Equal(t, int64(7000), metadata.saved[0].EndDate)

	assert.Contains(t, objects.puts, "abc")
	assert.Len(t, publisher.payloads, 1)

	// The local record is removed once persisted.
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFailedExtractionStillPersistsRawDump(t *testing.T) {
	dir := t.TempDir()
	// No connection info header, so extraction fails.
	path := writeRecord(t, dir, "broken", `["identity", null, {}, 1000]`)

	objects := &fakeObjectStore{}
	metadata := &fakeMetadataStore{}
	s, _, drain := runService(t, objects, metadata, nil, dir)

	s.OnRecordClosed(demux.RecordInfo{Key: "broken", Path: path}, domain.ConnectionInfo{})
	drain()

	require.Len(t, metadata.saved, 1)
	assert.Equal(t, "broken", metadata.saved[0].ClientID)
	assert.Contains(t, objects.puts, "broken")
}

func TestUploadFailureKeepsLocalRecord(t *testing.T) {
	dir := t.TempDir()
	path := writeRecord(t, dir, "abc", browserHeader)

	objects := &fakeObjectStore{fail: true}
	metadata := &fakeMetadataStore{}
	s, _, drain := runService(t, objects, metadata, nil, dir)

	s.OnRecordClosed(demux.RecordInfo{Key: "abc", Path: path}, domain.ConnectionInfo{})
	drain()

	// Left for the next startup sweep to retry.
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestBlobKeyFollowsMetadataDisambiguation(t *testing.T) {
	dir := t.TempDir()
	path := writeRecord(t, dir, "abc", browserHeader)

	objects := &fakeObjectStore{}
	metadata := &fakeMetadataStore{key: "abc_1"}
	s, _, drain := runService(t, objects, metadata, nil, dir)

	s.OnRecordClosed(demux.RecordInfo{Key: "abc", Path: path}, domain.ConnectionInfo{})
	drain()

	assert.Contains(t, objects.puts, "abc_1")
	assert.NotContains(t, objects.puts, "abc")
}

func TestSweepRequeuesLeftoverRecords(t *testing.T) {
	dir := t.TempDir()
	writeRecord(t, dir, "left1", browserHeader)
	writeRecord(t, dir, "left2", browserHeader)

	objects := &fakeObjectStore{}
	metadata := &fakeMetadataStore{}
	s, _, drain := runService(t, objects, metadata, nil, dir)

	require.NoError(t, s.Sweep())
	drain()

	assert.Len(t, metadata.saved, 2)
}
