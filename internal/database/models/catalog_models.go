package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Money columns are stored as strings the same way order totals are, and are
// decoded into decimals at the catalog snapshot boundary.

type MenuItem struct {
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	OrganizationID  uuid.UUID `gorm:"type:uuid;index;not null"`
	Name            string    `gorm:"type:varchar(128);not null"`
	Price           string    `gorm:"type:varchar(32);not null"`
	DiscountedPrice *string   `gorm:"type:varchar(32)"`
	IsAvailable     bool      `gorm:"not null;default:true"`
	IsActive        bool      `gorm:"not null;default:true"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Sizes []MenuItemSize `gorm:"foreignKey:MenuItemID"`
}

type SizeVariant struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null"`
	Name           string    `gorm:"type:varchar(64);not null"`
	Multiplier     string    `gorm:"type:varchar(32);not null;default:'1.0'"`
	IsActive       bool      `gorm:"not null;default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MenuItemSize assigns a size variant to a menu item. An absolute price
// override, when set, replaces the multiplier computation entirely.
type MenuItemSize struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null"`
	MenuItemID     int64     `gorm:"index;not null"`
	SizeID         int64     `gorm:"not null"`
	PriceOverride  *string   `gorm:"type:varchar(32)"`
	IsDefault      bool      `gorm:"not null;default:false"`
	CreatedAt      time.Time

	Size *SizeVariant `gorm:"foreignKey:SizeID"`
}

type Ingredient struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null"`
	Name           string    `gorm:"type:varchar(128);not null"`
	UnitPrice      string    `gorm:"type:varchar(32);not null"`
	IsActive       bool      `gorm:"not null;default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time

	SizePrices []IngredientSizePrice `gorm:"foreignKey:IngredientID"`
}

// IngredientSizePrice lets an ingredient charge a different unit price
// depending on the size selected for the line.
type IngredientSizePrice struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null"`
	IngredientID   int64     `gorm:"index;not null"`
	SizeID         int64     `gorm:"not null"`
	Price          string    `gorm:"type:varchar(32);not null"`
	CreatedAt      time.Time
}

type RecommendedIngredient struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null"`
	MenuItemID     int64     `gorm:"index;not null"`
	IngredientID   int64     `gorm:"not null"`
	Rank           int32     `gorm:"not null;default:0"`
	CreatedAt      time.Time
}

func MigrateCatalogDB(db *gorm.DB) error {
	db.AutoMigrate(&MenuItem{})
	db.AutoMigrate(&SizeVariant{})
	db.AutoMigrate(&MenuItemSize{})
	db.AutoMigrate(&Ingredient{})
	db.AutoMigrate(&IngredientSizePrice{})
	db.AutoMigrate(&RecommendedIngredient{})
	return nil
}
