package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/arenaledger/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBucket struct {
	objects      map[string][]byte
	contentTypes map[string]string
}

func newMemBucket() *memBucket {
	return &memBucket{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (b *memBucket) Put(_ context.Context, key string, body []byte, contentType string) error {
	b.objects[key] = bytes.Clone(body)
	b.contentTypes[key] = contentType
	return nil
}

func (b *memBucket) Get(_ context.Context, path string) (io.ReadCloser, error) {
	buf, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

func (b *memBucket) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for k, v := range b.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

type memEvents []domain.Event

func (m memEvents) ListEventsAfter(_ context.Context, seq uint64, limit int) ([]domain.Event, error) {
	var out []domain.Event
	for _, e := range m {
		if e.Seq > seq {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func betEvents(n int) memEvents {
	bettor := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make(memEvents, n)
	for i := range out {
		out[i] = domain.Event{
			Seq:      uint64(i + 1),
			Type:     domain.EventBetPlaced,
			MarketID: 0,
			At:       at.Add(time.Duration(i) * time.Second),
			Bet: &domain.BetPlaced{
				Bettor:     bettor,
				Amount:     domain.NewAmount(uint64(i + 1)),
				StakeTotal: domain.NewAmount(uint64(i + 1)),
				TotalPool:  domain.NewAmount(uint64(i + 1)),
			},
		}
	}
	return out
}

func TestArchiveEventsBatchesAndResumes(t *testing.T) {
	ctx := context.Background()
	bucket := newMemBucket()
	a := NewArchiver(betEvents(5), bucket, "events/", 2, slog.New(slog.DiscardHandler))

	var got []domain.ArchiveResult
	for range 4 {
		res, err := a.ArchiveEvents(ctx)
		require.NoError(t, err)
		got = append(got, res)
	}

	assert.Equal(t, objectKey("events", 1, 2), got[0].Path)
	assert.Equal(t, objectKey("events", 3, 4), got[1].Path)
	assert.Equal(t, objectKey("events", 5, 5), got[2].Path)
	assert.Equal(t, 1, got[2].Events)
	assert.Empty(t, got[3].Path, "nothing new")
	assert.Zero(t, got[3].Events)
	assert.Len(t, bucket.objects, 3)
	assert.Equal(t, jsonlContentType, bucket.contentTypes[got[0].Path])

	last, err := a.LastArchivedSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), last)
}

func TestArchiveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	bucket := newMemBucket()
	src := betEvents(3)
	a := NewArchiver(src, bucket, "events", 10, slog.New(slog.DiscardHandler))

	res, err := a.ArchiveEvents(ctx)
	require.NoError(t, err)

	loaded, err := a.Load(ctx, res.Path)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	for i, evt := range loaded {
		assert.Equal(t, src[i].Seq, evt.Seq)
		require.NotNil(t, evt.Bet)
		assert.Equal(t, src[i].Bet.Amount.String(), evt.Bet.Amount.String())
	}
}

func TestLastArchivedSeqIgnoresForeignObjects(t *testing.T) {
	bucket := newMemBucket()
	bucket.objects["events/README.txt"] = []byte("x")
	bucket.objects["events/notes.jsonl"] = []byte("x")
	bucket.objects[objectKey("events", 1, 40)] = []byte("x")
	bucket.objects[objectKey("events", 41, 41)] = []byte("x")
	a := NewArchiver(memEvents{}, bucket, "events", 10, slog.New(slog.DiscardHandler))

	last, err := a.LastArchivedSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(41), last)
}

func TestParseObjectKey(t *testing.T) {
	tests := []struct {
		key      string
		from, to uint64
		ok       bool
	}{
		{objectKey("events", 7, 9), 7, 9, true},
		{"a/b/1-2.jsonl", 1, 2, true},
		{"events/9-7.jsonl", 0, 0, false},
		{"events/1-2.json", 0, 0, false},
		{"events/x-2.jsonl", 0, 0, false},
		{"events/12.jsonl", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			from, to, ok := parseObjectKey(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.from, from)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestObjectKeysSortBySequence(t *testing.T) {
	keys := []string{objectKey("e", 100, 200), objectKey("e", 9, 99), objectKey("e", 1, 8)}
	sort.Strings(keys)
	assert.Equal(t, fmt.Sprintf("e/%020d-%020d.jsonl", 1, 8), keys[0])
	assert.Equal(t, objectKey("e", 100, 200), keys[2])
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "http://minio.internal", normaliseEndpoint("minio.internal", false))
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("s3.example.com", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("http://minio:9000", true))
}
