package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kozaktomas/face-id/internal/database"
	"github.com/pgvector/pgvector-go"
)

// SignatureRepository archives enrolled signatures in PostgreSQL using pgvector
type SignatureRepository struct {
	pool *Pool
}

// NewSignatureRepository creates a new PostgreSQL signature repository
func NewSignatureRepository(pool *Pool) *SignatureRepository {
	return &SignatureRepository{pool: pool}
}

// SaveSignature stores or replaces the signature of an identity
func (r *SignatureRepository) SaveSignature(ctx context.Context, sig database.StoredSignature) error {
	md := sig.Metadata
	if md == nil {
		md = database.Metadata{}
	}
	metaJSON, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal signature metadata: %w", err)
	}

	query := `
		INSERT INTO signatures (identity_id, signature, dim, metadata, photo_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity_id) DO UPDATE SET
			signature = EXCLUDED.signature,
			dim = EXCLUDED.dim,
			metadata = EXCLUDED.metadata,
			photo_count = EXCLUDED.photo_count,
			updated_at = NOW()
	`

	_, err = r.pool.Exec(ctx, query,
		sig.IdentityID, pgvector.NewVector(sig.Signature), len(sig.Signature), metaJSON, sig.PhotoCount)
	if err != nil {
		return fmt.Errorf("save signature: %w", err)
	}
	return nil
}

// DeleteSignature removes an identity's signature
func (r *SignatureRepository) DeleteSignature(ctx context.Context, identityID string) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM signatures WHERE identity_id = $1", identityID)
	if err != nil {
		return fmt.Errorf("delete signature: %w", err)
	}
	return nil
}

// ListSignatures returns every archived signature ordered by creation time
func (r *SignatureRepository) ListSignatures(ctx context.Context) ([]database.StoredSignature, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT identity_id, signature, metadata, photo_count, created_at, updated_at
		FROM signatures
		ORDER BY created_at, identity_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	defer rows.Close()

	var out []database.StoredSignature
	for rows.Next() {
		var sig database.StoredSignature
		var vec pgvector.Vector
		var metaJSON []byte
		if err := rows.Scan(&sig.IdentityID, &vec, &metaJSON, &sig.PhotoCount, &sig.CreatedAt, &sig.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &sig.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata of %s: %w", sig.IdentityID, err)
		}
		sig.Signature = vec.Slice()
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signatures: %w", err)
	}
	return out, nil
}

// CountSignatures returns the number of archived identities
func (r *SignatureRepository) CountSignatures(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM signatures").Scan(&n); err != nil {
		return 0, fmt.Errorf("count signatures: %w", err)
	}
	return n, nil
}

var _ database.SignatureArchive = (*SignatureRepository)(nil)
