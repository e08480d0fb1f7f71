package orm

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel is embedded by models keyed by an auto incremented id
type BaseModel struct {
	ID        uint           `json:"id" serialize:"id" fake:"-"`
	CreatedAt time.Time      `json:"created_at,omitempty" serialize:"created_at" fake:"-"`
	UpdatedAt time.Time      `json:"updated_at,omitempty" serialize:"updated_at" fake:"-"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" serialize:"-" fake:"-"`
}

// BaseModelUUID is a UUID version of BaseModel
type BaseModelUUID struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id" serialize:"id" fake:"-"`
	CreatedAt time.Time      `json:"created_at" serialize:"created_at" fake:"-"`
	UpdatedAt time.Time      `json:"updated_at" serialize:"updated_at" fake:"-"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" serialize:"-" fake:"-"`
}

func (base *BaseModelUUID) BeforeCreate(tx *gorm.DB) error {
	if base.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return err
		}
		base.ID = id
	}
	return nil
}

// NewBaseModelUUID returns a base model with its id already set, handy
// when a model has to be referenced before it is saved
func NewBaseModelUUID() BaseModelUUID {
	return BaseModelUUID{ID: uuid.New()}
}

// ConnectionNamer is implemented by models living on another connection
// than the primary one
type ConnectionNamer interface {
	ConnectionName() string
}
