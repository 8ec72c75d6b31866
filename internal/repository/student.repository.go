package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/nimasrn/school-payment/internal/model"
	"github.com/nimasrn/school-payment/pkg/pg"
	"gorm.io/gorm"
)

var ErrStudentNotFound = fmt.Errorf("student %w", model.ErrNotFound)

// StudentRepository is read-mostly; students are managed elsewhere.
type StudentRepository struct {
	*pg.DB
}

func NewStudentRepository(db *pg.DB) *StudentRepository {
	return &StudentRepository{
		db,
	}
}

func (r *StudentRepository) Create(ctx context.Context, s *model.Student) (*model.Student, error) {
	entity := toStudentEntity(s)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toStudentModel(entity), nil
}

func (r *StudentRepository) Get(ctx context.Context, id int64) (*model.Student, error) {
	var entity StudentEntity
	if err := r.Read(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return toStudentModel(&entity), nil
}
