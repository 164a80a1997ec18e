package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/models"
)

// ContactRepository abstracts contact persistence so the service layer can
// be exercised against fakes in tests.
type ContactRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Contact, error)
	FindAll(ctx context.Context) ([]models.Contact, error)
	Insert(ctx context.Context, contact *models.Contact) error
	Update(ctx context.Context, contact *models.Contact) error
	Delete(ctx context.Context, id uint) error
}

// ErrContactNotFound indicates the requested contact row does not exist.
var ErrContactNotFound = errors.New("contact repository: not found")

type gormContactRepository struct {
	db *gorm.DB
}

// NewContactRepository wraps a gorm handle as a ContactRepository.
func NewContactRepository(db *gorm.DB) ContactRepository {
	return &gormContactRepository{db: db}
}

func (r *gormContactRepository) FindByID(ctx context.Context, id uint) (*models.Contact, error) {
	var contact models.Contact
	err := r.db.WithContext(ctx).First(&contact, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("contact repository: find by id: %w", err)
	}
	return &contact, nil
}

func (r *gormContactRepository) FindAll(ctx context.Context) ([]models.Contact, error) {
	var contacts []models.Contact
	if err := r.db.WithContext(ctx).Order("name ASC, id ASC").Find(&contacts).Error; err != nil {
		return nil, fmt.Errorf("contact repository: find all: %w", err)
	}
	return contacts, nil
}

func (r *gormContactRepository) Insert(ctx context.Context, contact *models.Contact) error {
	if err := r.db.WithContext(ctx).Create(contact).Error; err != nil {
		return fmt.Errorf("contact repository: insert: %w", err)
	}
	return nil
}

func (r *gormContactRepository) Update(ctx context.Context, contact *models.Contact) error {
	result := r.db.WithContext(ctx).
		Model(&models.Contact{}).
		Where("id = ?", contact.ID).
		Updates(map[string]any{
			"name":    contact.Name,
			"email":   contact.Email,
			"phone":   contact.Phone,
			"address": contact.Address,
		})
	if result.Error != nil {
		return fmt.Errorf("contact repository: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrContactNotFound
	}
	return nil
}

func (r *gormContactRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Contact{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("contact repository: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrContactNotFound
	}
	return nil
}
