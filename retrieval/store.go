package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BaSui01/consultflow/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxCandidates bounds the rows loaded for in-process ranking.
const maxCandidates = 200

// Store is a gorm-backed document store. It implements Retriever by
// pre-filtering with LIKE and ranking candidates in process.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore creates a store over db.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger.With(zap.String("component", "retrieval_store"))}
}

// AutoMigrate creates the documents table. Production deployments use the
// SQL migrations instead.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Document{})
}

// Upsert inserts documents, replacing existing ones with the same id.
func (s *Store) Upsert(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	for _, d := range docs {
		if d.ID == "" || strings.TrimSpace(d.Content) == "" {
			return types.NewError(types.ErrInvalidRequest, "document id and content are required")
		}
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "content", "source", "updated_at"}),
	}).Create(&docs).Error
	if err != nil {
		return fmt.Errorf("upsert documents: %w", err)
	}
	return nil
}

// Get returns a document by id.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrNotFound, "document not found: "+id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// List returns documents ordered by id.
func (s *Store) List(ctx context.Context, limit int) ([]Document, error) {
	var docs []Document
	q := s.db.WithContext(ctx).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Document{})
	if res.Error != nil {
		return fmt.Errorf("delete document: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrNotFound, "document not found: "+id)
	}
	return nil
}

// Search implements Retriever.
func (s *Store) Search(ctx context.Context, query string, k int) ([]types.ContextDocument, error) {
	qterms := terms(query)
	if len(qterms) == 0 {
		return nil, nil
	}

	q := s.db.WithContext(ctx).Model(&Document{})
	conds := make([]string, 0, len(qterms))
	args := make([]any, 0, 2*len(qterms))
	for _, t := range qterms {
		conds = append(conds, "(LOWER(title) LIKE ? OR LOWER(content) LIKE ?)")
		like := "%" + t + "%"
		args = append(args, like, like)
	}
	var docs []Document
	err := q.Where(strings.Join(conds, " OR "), args...).
		Order("id ASC").
		Limit(maxCandidates).
		Find(&docs).Error
	if err != nil {
		s.logger.Warn("document search failed", zap.Error(err))
		return nil, types.NewError(types.ErrRetrievalFailed, "document search failed").WithCause(err)
	}
	return rank(docs, query, k), nil
}
