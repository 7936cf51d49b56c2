package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/alanyoungcy/arenaledger/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// Archiver implements domain.EventArchiver. Each run exports the events after
// the highest archived sequence as one JSONL object named
// <prefix>/<from>-<to>.jsonl, with zero-padded sequence numbers so the
// listing sorts in sequence order.
//
// The archive cursor lives in the object names themselves; nothing is
// deleted from the journal.
type Archiver struct {
	events    domain.EventSource
	store     domain.ObjectStore
	prefix    string
	batchSize int
	logger    *slog.Logger
}

// NewArchiver creates an Archiver. batchSize caps the events per object.
func NewArchiver(
	events domain.EventSource,
	store domain.ObjectStore,
	prefix string,
	batchSize int,
	logger *slog.Logger,
) *Archiver {
	if batchSize <= 0 {
		batchSize = 5000
	}
	return &Archiver{
		events:    events,
		store:     store,
		prefix:    strings.Trim(prefix, "/"),
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveEvents uploads the next batch of events. It returns a zero result
// when there is nothing new.
func (a *Archiver) ArchiveEvents(ctx context.Context) (domain.ArchiveResult, error) {
	last, err := a.LastArchivedSeq(ctx)
	if err != nil {
		return domain.ArchiveResult{}, err
	}

	events, err := a.events.ListEventsAfter(ctx, last, a.batchSize)
	if err != nil {
		return domain.ArchiveResult{}, fmt.Errorf("s3blob: archive query after %d: %w", last, err)
	}
	if len(events) == 0 {
		return domain.ArchiveResult{FromSeq: last + 1, ToSeq: last}, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return domain.ArchiveResult{}, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	from, to := events[0].Seq, events[len(events)-1].Seq
	key := objectKey(a.prefix, from, to)
	if err := a.store.Put(ctx, key, buf, jsonlContentType); err != nil {
		return domain.ArchiveResult{}, fmt.Errorf("s3blob: archive upload %s: %w", key, err)
	}

	a.logger.InfoContext(ctx, "events archived",
		slog.String("path", key),
		slog.Uint64("from_seq", from),
		slog.Uint64("to_seq", to),
		slog.Int("events", len(events)),
		slog.Int("bytes", len(buf)),
	)
	return domain.ArchiveResult{Path: key, FromSeq: from, ToSeq: to, Events: len(events)}, nil
}

// LastArchivedSeq returns the highest sequence already exported, or 0.
func (a *Archiver) LastArchivedSeq(ctx context.Context) (uint64, error) {
	infos, err := a.store.List(ctx, a.prefix+"/")
	if err != nil {
		return 0, fmt.Errorf("s3blob: list archive: %w", err)
	}
	var last uint64
	for _, info := range infos {
		_, to, ok := parseObjectKey(info.Path)
		if !ok {
			continue
		}
		if to > last {
			last = to
		}
	}
	return last, nil
}

// Load reads back one archived object.
func (a *Archiver) Load(ctx context.Context, key string) ([]domain.Event, error) {
	rc, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var events []domain.Event
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var evt domain.Event
		if err := json.Unmarshal(line, &evt); err != nil {
			return nil, fmt.Errorf("s3blob: decode %s line %d: %w", key, len(events)+1, err)
		}
		events = append(events, evt)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("s3blob: read %s: %w", key, err)
	}
	return events, nil
}

// objectKey builds the archive key for a sequence range.
//
//	events/00000000000000000001-00000000000000005000.jsonl
func objectKey(prefix string, from, to uint64) string {
	return fmt.Sprintf("%s/%020d-%020d.jsonl", prefix, from, to)
}

func parseObjectKey(key string) (from, to uint64, ok bool) {
	name := strings.TrimSuffix(path.Base(key), ".jsonl")
	if name == path.Base(key) {
		return 0, 0, false
	}
	lo, hi, found := strings.Cut(name, "-")
	if !found {
		return 0, 0, false
	}
	from, err := strconv.ParseUint(lo, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	to, err = strconv.ParseUint(hi, 10, 64)
	if err != nil || to < from {
		return 0, 0, false
	}
	return from, to, true
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.EventArchiver = (*Archiver)(nil)
