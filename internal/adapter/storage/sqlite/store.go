// Package sqlite provides the SQLite-backed persistent cache tier.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nft-metadata-resolver/internal/adapter/storage/sqlite/migrations"
	"nft-metadata-resolver/internal/domain/entity"
	domainRepo "nft-metadata-resolver/internal/domain/repository"
	"nft-metadata-resolver/internal/pkg/sqlitemigrate"

	_ "modernc.org/sqlite"
)

// Compile-time check
var _ domainRepo.PersistentRepository = (*Store)(nil)

// Page size bounds for ListCollectionTokens.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// Store persists token and collection records in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store, creating its directory, and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

const metadataColumns = `chain, contract_address, token_id, name, description, image, image_url,
	animation_url, external_url, attributes_json, token_uri, raw_metadata, updated_at`

// GetMetadata returns one token record.
func (s *Store) GetMetadata(ctx context.Context, id entity.TokenIdentity) (entity.Metadata, bool, error) {
	if err := s.ready(ctx); err != nil {
		return entity.Metadata{}, false, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+metadataColumns+` FROM nft_metadata
		 WHERE chain = ? AND contract_address = ? AND token_id = ?`,
		id.Chain, id.ContractAddress, id.TokenID,
	)
	m, err := scanMetadata(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Metadata{}, false, nil
	}
	if err != nil {
		return entity.Metadata{}, false, fmt.Errorf("get metadata %s: %w", id, err)
	}
	return m, true, nil
}

// UpsertMetadata inserts or replaces one token record. created_at survives replacement.
func (s *Store) UpsertMetadata(ctx context.Context, m entity.Metadata) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := m.Identity().Validate(); err != nil {
		return err
	}

	attributes, err := encodeAttributes(m.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	updatedAt := m.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO nft_metadata (
		   chain, contract_address, token_id, name, description, image, image_url,
		   animation_url, external_url, attributes_json, token_uri, raw_metadata,
		   created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (chain, contract_address, token_id) DO UPDATE SET
		   name = excluded.name,
		   description = excluded.description,
		   image = excluded.image,
		   image_url = excluded.image_url,
		   animation_url = excluded.animation_url,
		   external_url = excluded.external_url,
		   attributes_json = excluded.attributes_json,
		   token_uri = excluded.token_uri,
		   raw_metadata = excluded.raw_metadata,
		   updated_at = excluded.updated_at`,
		m.Chain, m.ContractAddress, m.TokenID,
		nullString(m.Name), nullString(m.Description), nullString(m.Image), nullString(m.ImageURL),
		nullString(m.AnimationURL), nullString(m.ExternalURL), attributes, nullString(m.TokenURI),
		rawDocument(m.RawMetadata),
		toMillis(updatedAt), toMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert metadata %s: %w", m.Identity(), err)
	}
	return nil
}

// DeleteMetadata removes one token record and reports whether a row was deleted.
func (s *Store) DeleteMetadata(ctx context.Context, id entity.TokenIdentity) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM nft_metadata WHERE chain = ? AND contract_address = ? AND token_id = ?`,
		id.Chain, id.ContractAddress, id.TokenID,
	)
	if err != nil {
		return false, fmt.Errorf("delete metadata %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete metadata %s: %w", id, err)
	}
	return n > 0, nil
}

// GetCollection returns one collection record.
func (s *Store) GetCollection(ctx context.Context, id entity.CollectionIdentity) (entity.Collection, bool, error) {
	if err := s.ready(ctx); err != nil {
		return entity.Collection{}, false, err
	}
	var (
		c                         entity.Collection
		name, symbol, totalSupply sql.NullString
		contractType              string
		updatedAt                 int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT chain, contract_address, name, symbol, total_supply, contract_type, updated_at
		 FROM nft_collection WHERE chain = ? AND contract_address = ?`,
		id.Chain, id.ContractAddress,
	).Scan(&c.Chain, &c.ContractAddress, &name, &symbol, &totalSupply, &contractType, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Collection{}, false, nil
	}
	if err != nil {
		return entity.Collection{}, false, fmt.Errorf("get collection %s: %w", id.Key(), err)
	}
	c.Name = stringPtr(name)
	c.Symbol = stringPtr(symbol)
	c.TotalSupply = stringPtr(totalSupply)
	c.ContractType = entity.ContractType(contractType)
	c.UpdatedAt = fromMillis(updatedAt)
	return c, true, nil
}

// UpsertCollection inserts or replaces one collection record.
func (s *Store) UpsertCollection(ctx context.Context, c entity.Collection) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := c.Identity().Validate(); err != nil {
		return err
	}
	contractType := c.ContractType
	if contractType == "" {
		contractType = entity.ContractTypeUnknown
	}
	updatedAt := c.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO nft_collection (
		   chain, contract_address, name, symbol, total_supply, contract_type, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (chain, contract_address) DO UPDATE SET
		   name = excluded.name,
		   symbol = excluded.symbol,
		   total_supply = excluded.total_supply,
		   contract_type = excluded.contract_type,
		   updated_at = excluded.updated_at`,
		c.Chain, c.ContractAddress, nullString(c.Name), nullString(c.Symbol), nullString(c.TotalSupply),
		string(contractType), toMillis(updatedAt), toMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert collection %s: %w", c.Identity().Key(), err)
	}
	return nil
}

// ListCollectionTokens pages through cached tokens of a collection, newest first.
// limit is clamped to [1, MaxPageLimit] with DefaultPageLimit for zero; negative offsets become zero.
func (s *Store) ListCollectionTokens(
	ctx context.Context,
	id entity.CollectionIdentity,
	limit, offset int,
) (entity.MetadataPage, error) {
	if err := s.ready(ctx); err != nil {
		return entity.MetadataPage{}, err
	}
	limit, offset = ClampPage(limit, offset)
	page := entity.MetadataPage{Limit: limit, Offset: offset}

	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM nft_metadata WHERE chain = ? AND contract_address = ?`,
		id.Chain, id.ContractAddress,
	).Scan(&page.Total); err != nil {
		return entity.MetadataPage{}, fmt.Errorf("count collection tokens %s: %w", id.Key(), err)
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+metadataColumns+` FROM nft_metadata
		 WHERE chain = ? AND contract_address = ?
		 ORDER BY created_at DESC, token_id DESC
		 LIMIT ? OFFSET ?`,
		id.Chain, id.ContractAddress, limit, offset,
	)
	if err != nil {
		return entity.MetadataPage{}, fmt.Errorf("list collection tokens %s: %w", id.Key(), err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			return entity.MetadataPage{}, fmt.Errorf("scan collection token: %w", err)
		}
		page.Items = append(page.Items, m)
	}
	if err := rows.Err(); err != nil {
		return entity.MetadataPage{}, fmt.Errorf("iterate collection tokens: %w", err)
	}
	return page, nil
}

// ClampPage applies the paging bounds used by ListCollectionTokens.
func ClampPage(limit, offset int) (int, int) {
	switch {
	case limit == 0:
		limit = DefaultPageLimit
	case limit < 1:
		limit = 1
	case limit > MaxPageLimit:
		limit = MaxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// DeleteCollection removes a collection record and all of its token records in one transaction.
func (s *Store) DeleteCollection(ctx context.Context, id entity.CollectionIdentity) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete collection: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM nft_metadata WHERE chain = ? AND contract_address = ?`,
		id.Chain, id.ContractAddress,
	)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("delete collection tokens %s: %w", id.Key(), err)
	}
	removed, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM nft_collection WHERE chain = ? AND contract_address = ?`,
		id.Chain, id.ContractAddress,
	); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("delete collection %s: %w", id.Key(), err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete collection %s: %w", id.Key(), err)
	}
	return int(removed), nil
}

// Stats counts records overall and per chain.
func (s *Store) Stats(ctx context.Context) (entity.StoreStats, error) {
	if err := s.ready(ctx); err != nil {
		return entity.StoreStats{}, err
	}
	stats := entity.StoreStats{PerChainCounts: map[string]int64{}}

	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM nft_metadata`).Scan(&stats.TotalRecords); err != nil {
		return entity.StoreStats{}, fmt.Errorf("count metadata: %w", err)
	}
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM nft_collection`).Scan(&stats.TotalCollections); err != nil {
		return entity.StoreStats{}, fmt.Errorf("count collections: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT chain, COUNT(*) FROM nft_metadata GROUP BY chain`)
	if err != nil {
		return entity.StoreStats{}, fmt.Errorf("count metadata per chain: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			chain string
			count int64
		)
		if err := rows.Scan(&chain, &count); err != nil {
			return entity.StoreStats{}, fmt.Errorf("scan chain count: %w", err)
		}
		stats.PerChainCounts[chain] = count
	}
	if err := rows.Err(); err != nil {
		return entity.StoreStats{}, fmt.Errorf("iterate chain counts: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMetadata(row rowScanner) (entity.Metadata, error) {
	var (
		m                                        entity.Metadata
		name, description, image, imageURL       sql.NullString
		animationURL, externalURL, attributesRaw sql.NullString
		tokenURI, rawMetadata                    sql.NullString
		updatedAt                                int64
	)
	if err := row.Scan(
		&m.Chain, &m.ContractAddress, &m.TokenID, &name, &description, &image, &imageURL,
		&animationURL, &externalURL, &attributesRaw, &tokenURI, &rawMetadata, &updatedAt,
	); err != nil {
		return entity.Metadata{}, err
	}

	m.Name = stringPtr(name)
	m.Description = stringPtr(description)
	m.Image = stringPtr(image)
	m.ImageURL = stringPtr(imageURL)
	m.AnimationURL = stringPtr(animationURL)
	m.ExternalURL = stringPtr(externalURL)
	m.TokenURI = stringPtr(tokenURI)
	m.UpdatedAt = fromMillis(updatedAt)

	if attributesRaw.Valid {
		if err := json.Unmarshal([]byte(attributesRaw.String), &m.Attributes); err != nil {
			return entity.Metadata{}, fmt.Errorf("decode attributes: %w", err)
		}
	}
	if rawMetadata.Valid {
		doc, err := entity.NewRawDocument([]byte(rawMetadata.String))
		if err != nil {
			return entity.Metadata{}, fmt.Errorf("decode raw metadata: %w", err)
		}
		m.RawMetadata = doc
	}
	return m, nil
}

func encodeAttributes(attrs []entity.Attribute) (sql.NullString, error) {
	if attrs == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func rawDocument(doc entity.RawDocument) sql.NullString {
	if doc.IsEmpty() {
		return sql.NullString{}
	}
	return sql.NullString{String: string(doc), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
