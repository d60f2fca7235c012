package demux

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/rtcpulse/internal/domain"
)

func testConnInfo() domain.ConnectionInfo {
	return domain.ConnectionInfo{
		Origin:         "https://meet.example.com",
		UserAgent:      "Mozilla/5.0 Firefox/118.0",
		ClientProtocol: "3.1_STANDARD",
		StatsFormat:    domain.FormatFirefox,
		ClientType:     domain.ClientRTCStats,
	}
}

func newTestDemux(t *testing.T) (*Demux, string, *[]RecordInfo) {
	t.Helper()
	dir := t.TempDir()
	closed := &[]RecordInfo{}
	d := New(Options{
		Folder:   dir,
		ConnInfo: testConnInfo(),
		OnRecordClosed: func(info RecordInfo) {
			*closed = append(*closed, info)
		},
	})
	return d, dir, closed
}

func statsEvent(sid, line string) *domain.RawEvent {
	return &domain.RawEvent{
		Type:      "stats-entry",
		SessionID: domain.SessionID(sid),
		Data:      json.RawMessage(line),
	}
}

func recordLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestFanOutPerSession(t *testing.T) {
	d, _, closed := newTestDemux(t)

	// Interleaved events across three sessions, each ending with a
	// close event.
	sessions := []string{"a", "b", "c"}
	for i := 0; i < 4; i++ {
		for _, sid := range sessions {
			line := fmt.Sprintf(`["getstats","PC_0",{"seq":%d,"sid":%q},%d]`, i, sid, 1000+i)
			require.NoError(t, d.HandleEvent(statsEvent(sid, line)))
		}
	}
	for _, sid := range sessions {
		require.NoError(t, d.HandleEvent(&domain.RawEvent{Type: "close", SessionID: domain.SessionID(sid)}))
	}

	require.Len(t, *closed, 3)
	assert.Equal(t, 0, d.Open())

	for _, info := range *closed {
		lines := recordLines(t, info.Path)
		// Header plus the session's own four events, in original
		// relative order.
		require.Len(t, lines, 5)

		var header domain.Entry
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &header))
		assert.Equal(t, domain.EntryConnectionInfo, header.Kind)

		for i, line := range lines[1:] {
			var payload struct {
				Seq int    `json:"seq"`
				SID string `json:"sid"`
			}
			var entry domain.Entry
			require.NoError(t, json.Unmarshal([]byte(line), &entry))
			require.NoError(t, json.Unmarshal(entry.Payload, &payload))
			assert.Equal(t, string(info.SessionID), payload.SID)
			assert.Equal(t, i, payload.Seq)
		}
	}
}

func TestIdentityMergesIntoSideTableNotRecord(t *testing.T) {
	d, _, closed := newTestDemux(t)

	require.NoError(t, d.HandleEvent(&domain.RawEvent{
		Type:      "identity",
		SessionID: "s1",
		Data:      json.RawMessage(`{"displayName":"alice","confName":"standup"}`),
	}))
	require.NoError(t, d.HandleEvent(&domain.RawEvent{
		Type:      "identity",
		SessionID: "s1",
		Data:      json.RawMessage(`{"endpointId":"ep-1"}`),
	}))
	require.NoError(t, d.HandleEvent(&domain.RawEvent{Type: "close", SessionID: "s1"}))

	require.Len(t, *closed, 1)
	info := (*closed)[0]
	assert.Equal(t, "alice", info.Meta["displayName"])
	assert.Equal(t, "standup", info.Meta["confName"])
	assert.Equal(t, "ep-1", info.Meta["endpointId"])

	// The record holds only the header; identity stays in memory.
	assert.Len(t, recordLines(t, info.Path), 1)
}

func TestKeyCollisionAllocatesDisambiguatedKey(t *testing.T) {
	d, dir, closed := newTestDemux(t)

	require.NoError(t, d.HandleEvent(statsEvent("dup", `["getstats",null,{"n":1},1]`)))
	require.NoError(t, d.HandleEvent(&domain.RawEvent{Type: "close", SessionID: "dup"}))

	// Same id reused while the prior record still exists on disk.
	require.NoError(t, d.HandleEvent(statsEvent("dup", `["getstats",null,{"n":2},2]`)))
	require.NoError(t, d.HandleEvent(&domain.RawEvent{Type: "close", SessionID: "dup"}))

	require.Len(t, *closed, 2)
	first, second := (*closed)[0], (*closed)[1]
	assert.Equal(t, "dup", first.Key)
	assert.Equal(t, "dup_1", second.Key)
	assert.Equal(t, filepath.Join(dir, "dup_1"), second.Path)

	// Both records remain intact and independently readable.
	assert.Len(t, recordLines(t, first.Path), 2)
	assert.Len(t, recordLines(t, second.Path), 2)
}

func TestCloseAllFlushesOpenRecords(t *testing.T) {
	d, _, closed := newTestDemux(t)

	require.NoError(t, d.HandleEvent(statsEvent("x", `["getstats",null,{},1]`)))
	require.NoError(t, d.HandleEvent(statsEvent("y", `["getstats",null,{},1]`)))
	require.Len(t, *closed, 0)

	d.CloseAll("remote disconnect")

	assert.Len(t, *closed, 2)
	assert.Equal(t, 0, d.Open())
}

func TestDiscardedRecordFreesKey(t *testing.T) {
	d, dir, _ := newTestDemux(t)

	rec, err := d.createRecord("s1")
	require.NoError(t, err)
	d.discardRecord(rec)

	_, err = os.Stat(rec.path)
	assert.True(t, os.IsNotExist(err))

	// The base key is reusable; no orphan forces disambiguation.
	rec, err = d.createRecord("s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", rec.key)
	assert.Equal(t, filepath.Join(dir, "s1"), rec.path)
	d.discardRecord(rec)
}

func TestHeaderWriteFailureClosesFile(t *testing.T) {
	d, _, _ := newTestDemux(t)

	rec, err := d.createRecord("s1")
	require.NoError(t, err)
	require.NoError(t, rec.file.Close())

	// Writing through a closed file must surface, not be swallowed.
	assert.Error(t, d.writeHeader(rec))
	d.discardRecord(rec)
}

func TestEventWithoutSessionIDFailsStream(t *testing.T) {
	d, _, _ := newTestDemux(t)

	err := d.HandleEvent(&domain.RawEvent{Type: "stats-entry"})
	assert.ErrorIs(t, err, ErrNoSession)
}
