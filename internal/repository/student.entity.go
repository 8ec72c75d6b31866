package repository

import "github.com/nimasrn/school-payment/internal/model"

type StudentEntity struct {
	ID          int64  `db:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	NIS         string `db:"nis"          gorm:"column:nis;not null;uniqueIndex"`
	Name        string `db:"name"         gorm:"column:name;not null"`
	ClassName   string `db:"class_name"   gorm:"column:class_name"`
	ParentID    *int64 `db:"parent_id"    gorm:"column:parent_id;index"`
	ParentEmail string `db:"parent_email" gorm:"column:parent_email"`
}

func (StudentEntity) TableName() string {
	return "students"
}

func toStudentEntity(m *model.Student) *StudentEntity {
	if m == nil {
		return nil
	}
	return &StudentEntity{
		ID:          m.ID,
		NIS:         m.NIS,
		Name:        m.Name,
		ClassName:   m.ClassName,
		ParentID:    m.ParentID,
		ParentEmail: m.ParentEmail,
	}
}

func toStudentModel(e *StudentEntity) *model.Student {
	if e == nil {
		return nil
	}
	return &model.Student{
		ID:          e.ID,
		NIS:         e.NIS,
		Name:        e.Name,
		ClassName:   e.ClassName,
		ParentID:    e.ParentID,
		ParentEmail: e.ParentEmail,
	}
}
