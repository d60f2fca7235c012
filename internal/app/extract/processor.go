package extract

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtcpulse/internal/domain"
)

// Dump lines can carry multi-megabyte stats snapshots.
const maxLineBytes = 16 * 1024 * 1024

var ErrMissingHeader = errors.New("extract: record does not start with a connection info entry")

// ProcessRecord replays a session record from disk and returns the
// extracted feature set. Records are line-delimited JSON entry arrays
// with a server-written connection info entry on the first line.
func ProcessRecord(info DumpInfo) (*Output, error) {
	f, err := os.Open(info.DumpPath)
	if err != nil {
		return nil, fmt.Errorf("open dump %s: %w", info.DumpPath, err)
	}
	defer f.Close()
	return processStream(info, f)
}

func processStream(info DumpInfo, r io.Reader) (*Output, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	extractor, header, err := extractorForHeader(info, sc)
	if err != nil {
		return nil, err
	}
	if err := extractor.HandleEntry(header, 0); err != nil {
		return nil, fmt.Errorf("header of %s: %w", info.DumpPath, err)
	}

	lineNo := 1
	for sc.Scan() {
		lineNo++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry domain.Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			// A torn final line means the session was cut mid-write;
			// anything earlier is corruption.
			if !sc.Scan() {
				log.Debug().Str("module", "extract").Str("clientId", info.ClientID).Int("line", lineNo).Msg("dropping partial trailing line")
				break
			}
			return nil, fmt.Errorf("malformed entry at %s:%d: %w", info.DumpPath, lineNo, err)
		}
		if err := extractor.HandleEntry(&entry, len(line)); err != nil {
			return nil, fmt.Errorf("entry at %s:%d: %w", info.DumpPath, lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dump %s: %w", info.DumpPath, err)
	}

	return extractor.Extract()
}

// extractorForHeader reads the mandatory first line and picks the
// extraction variant for the recorded client type.
func extractorForHeader(info DumpInfo, sc *bufio.Scanner) (Extractor, *domain.Entry, error) {
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, nil, fmt.Errorf("read dump %s: %w", info.DumpPath, err)
		}
		return nil, nil, ErrMissingHeader
	}

	var header domain.Entry
	if err := json.Unmarshal(sc.Bytes(), &header); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMissingHeader, err)
	}
	if header.Kind != domain.EntryConnectionInfo {
		return nil, nil, ErrMissingHeader
	}

	var connInfo domain.ConnectionInfo
	if err := json.Unmarshal(header.Payload, &connInfo); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMissingHeader, err)
	}

	if connInfo.SupportsFeatureExtraction() {
		return NewStandardExtractor(info, connInfo), &header, nil
	}
	return NewBackendExtractor(info, connInfo), &header, nil
}
