package gigs

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/pullstream-backend/pkg/db/models"
	"github.com/angelmondragon/pullstream-backend/pkg/enums"
	"github.com/angelmondragon/pullstream-backend/pkg/pagination"
)

// Repository is the gig store.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, gig *models.Gig) error
	FindByID(ctx context.Context, id uint64) (*models.Gig, error)
	FindByIDForUpdate(ctx context.Context, id uint64) (*models.Gig, error)
	SaveProgress(ctx context.Context, gig *models.Gig) error
	ListByParty(ctx context.Context, identity string, role enums.GigRole, cursor *pagination.Cursor, limit int) ([]models.Gig, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a gig repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, gig *models.Gig) error {
	return r.db.WithContext(ctx).Create(gig).Error
}

func (r *repository) FindByID(ctx context.Context, id uint64) (*models.Gig, error) {
	var gig models.Gig
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&gig).Error; err != nil {
		return nil, err
	}
	return &gig, nil
}

// FindByIDForUpdate row-locks the gig on Postgres. sqlite serializes writers
// on its own.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uint64) (*models.Gig, error) {
	q := r.db.WithContext(ctx)
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var gig models.Gig
	if err := q.Where("id = ?", id).First(&gig).Error; err != nil {
		return nil, err
	}
	return &gig, nil
}

// SaveProgress writes the mutable columns only. The immutable terms of a
// gig are never part of the update.
func (r *repository) SaveProgress(ctx context.Context, gig *models.Gig) error {
	return r.db.WithContext(ctx).
		Model(&models.Gig{}).
		Where("id = ?", gig.ID).
		Updates(map[string]any{
			"amount_paid":    gig.AmountPaid,
			"paused":         gig.Paused,
			"pause_time":     gig.PauseTime,
			"total_pause_ms": gig.TotalPauseMS,
			"settled_at":     gig.SettledAt,
		}).Error
}

func (r *repository) ListByParty(ctx context.Context, identity string, role enums.GigRole, cursor *pagination.Cursor, limit int) ([]models.Gig, error) {
	q := r.db.WithContext(ctx).Model(&models.Gig{})
	switch role {
	case enums.GigRoleClient:
		q = q.Where("lower(client) = lower(?)", identity)
	case enums.GigRoleFreelancer:
		q = q.Where("lower(freelancer) = lower(?)", identity)
	default:
		q = q.Where("lower(client) = lower(?) OR lower(freelancer) = lower(?)", identity, identity)
	}
	if cursor != nil {
		q = q.Where("id < ?", cursor.AfterID)
	}
	var gigs []models.Gig
	if err := q.Order("id DESC").Limit(limit).Find(&gigs).Error; err != nil {
		return nil, err
	}
	return gigs, nil
}
