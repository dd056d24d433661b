package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/klauspost/compress/zstd"

	"audience/internal/core/apperror"
	"audience/internal/core/id"
	"audience/internal/domain/segment"
)

// CompressionAlgo specifies how a snapshot payload is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultSnapshotThreshold is the payload size above which snapshots are compressed.
const DefaultSnapshotThreshold = 8 * 1024

// SnapshotStore keeps segment membership snapshots in segment_snapshots.
// Member lists are JSON arrays of IDs, zstd-compressed above the threshold.
type SnapshotStore struct {
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

var _ segment.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore creates the store. threshold <= 0 means DefaultSnapshotThreshold.
func NewSnapshotStore(threshold int) (*SnapshotStore, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if threshold <= 0 {
		threshold = DefaultSnapshotThreshold
	}
	return &SnapshotStore{encoder: encoder, decoder: decoder, compressThreshold: threshold}, nil
}

// Close releases the decoder goroutines.
func (s *SnapshotStore) Close() {
	s.decoder.Close()
}

func (s *SnapshotStore) encode(members []id.ID) ([]byte, CompressionAlgo, error) {
	if members == nil {
		members = []id.ID{}
	}
	raw, err := json.Marshal(members)
	if err != nil {
		return nil, "", fmt.Errorf("marshal members: %w", err)
	}
	if len(raw) <= s.compressThreshold {
		return raw, CompressionNone, nil
	}
	return s.encoder.EncodeAll(raw, nil), CompressionZstd, nil
}

func (s *SnapshotStore) decode(payload []byte, algo CompressionAlgo) ([]id.ID, error) {
	switch algo {
	case CompressionZstd:
		raw, err := s.decoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress members: %w", err)
		}
		payload = raw
	case CompressionNone, "":
	default:
		return nil, fmt.Errorf("unknown compression %q", algo)
	}

	var members []id.ID
	if err := json.Unmarshal(payload, &members); err != nil {
		return nil, fmt.Errorf("unmarshal members: %w", err)
	}
	return members, nil
}

const upsertSnapshotSQL = `
	INSERT INTO segment_snapshots (segment_id, member_count, members, compression_algo, computed_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (segment_id) DO UPDATE SET
		member_count = EXCLUDED.member_count,
		members = EXCLUDED.members,
		compression_algo = EXCLUDED.compression_algo,
		computed_at = EXCLUDED.computed_at
`

// Save replaces the snapshot of snap.SegmentID.
func (s *SnapshotStore) Save(ctx context.Context, snap *segment.Snapshot) error {
	payload, algo, err := s.encode(snap.MemberIDs)
	if err != nil {
		return err
	}
	_, err = QuerierFrom(ctx).Exec(ctx, upsertSnapshotSQL,
		snap.SegmentID, len(snap.MemberIDs), payload, algo, snap.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the last snapshot of segmentID.
func (s *SnapshotStore) Load(ctx context.Context, segmentID id.ID) (*segment.Snapshot, error) {
	const sql = `
		SELECT members, compression_algo, computed_at
		FROM segment_snapshots
		WHERE segment_id = $1
	`
	var (
		payload    []byte
		algo       CompressionAlgo
		computedAt time.Time
	)
	err := QuerierFrom(ctx).QueryRow(ctx, sql, segmentID).Scan(&payload, &algo, &computedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NewNotFound("segment_snapshots", segmentID.String())
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	members, err := s.decode(payload, algo)
	if err != nil {
		return nil, err
	}
	return &segment.Snapshot{SegmentID: segmentID, MemberIDs: members, ComputedAt: computedAt.UTC()}, nil
}
