package catalog

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"vittoria-system/internal/database/models"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Source is the read-only catalog collaborator. Every fetch is scoped to one
// tenant; a zero tenant id fails closed with empty results instead of
// querying without a filter.
type Source interface {
	FetchMenuItems(ctx context.Context, orgID uuid.UUID, ids []int64) ([]MenuItem, error)
	FetchSizeAssignments(ctx context.Context, orgID uuid.UUID, productID int64) ([]SizeAssignment, error)
	FetchIngredients(ctx context.Context, orgID uuid.UUID, ids []int64) ([]Ingredient, error)
	FetchRecommendedIngredients(ctx context.Context, orgID uuid.UUID, productID int64) ([]int64, error)
}

type gormSource struct {
	db *gorm.DB
}

func NewSource(db *gorm.DB) Source {
	return &gormSource{db: db}
}

func (s *gormSource) FetchMenuItems(ctx context.Context, orgID uuid.UUID, ids []int64) ([]MenuItem, error) {
	if orgID == uuid.Nil {
		logger.Warn().Msg("menu item fetch without tenant, returning empty catalog")
		return nil, nil
	}

	query := s.db.WithContext(ctx).Model(&models.MenuItem{}).Where("organization_id = ?", orgID)
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}

	var rows []models.MenuItem
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find menu items: %w", err)
	}

	items := make([]MenuItem, 0, len(rows))
	for _, row := range rows {
		item, err := menuItemFromRow(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *gormSource) FetchSizeAssignments(ctx context.Context, orgID uuid.UUID, productID int64) ([]SizeAssignment, error) {
	if orgID == uuid.Nil {
		return nil, nil
	}

	var rows []models.MenuItemSize
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND menu_item_id = ?", orgID, productID).
		Preload("Size").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find size assignments: %w", err)
	}

	assignments := make([]SizeAssignment, 0, len(rows))
	for _, row := range rows {
		if row.Size == nil || !row.Size.IsActive {
			continue
		}

		multiplier, err := decimal.NewFromString(row.Size.Multiplier)
		if err != nil {
			return nil, fmt.Errorf("size %d multiplier %q: %w", row.SizeID, row.Size.Multiplier, err)
		}

		a := SizeAssignment{
			SizeID:     row.SizeID,
			SizeName:   row.Size.Name,
			Multiplier: multiplier,
			IsDefault:  row.IsDefault,
		}
		if row.PriceOverride != nil {
			override, err := decimal.NewFromString(*row.PriceOverride)
			if err != nil {
				return nil, fmt.Errorf("size %d price override %q: %w", row.SizeID, *row.PriceOverride, err)
			}
			a.PriceOverride = &override
		}
		assignments = append(assignments, a)
	}
	return assignments, nil
}

func (s *gormSource) FetchIngredients(ctx context.Context, orgID uuid.UUID, ids []int64) ([]Ingredient, error) {
	if orgID == uuid.Nil {
		return nil, nil
	}

	query := s.db.WithContext(ctx).Model(&models.Ingredient{}).Where("organization_id = ?", orgID)
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}

	var rows []models.Ingredient
	if err := query.Preload("SizePrices").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find ingredients: %w", err)
	}

	ingredients := make([]Ingredient, 0, len(rows))
	for _, row := range rows {
		unitPrice, err := decimal.NewFromString(row.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("ingredient %d unit price %q: %w", row.ID, row.UnitPrice, err)
		}

		sizePrices := make(map[int64]decimal.Decimal, len(row.SizePrices))
		for _, sp := range row.SizePrices {
			price, err := decimal.NewFromString(sp.Price)
			if err != nil {
				return nil, fmt.Errorf("ingredient %d size price %q: %w", row.ID, sp.Price, err)
			}
			sizePrices[sp.SizeID] = price
		}

		ingredients = append(ingredients, Ingredient{
			ID:         row.ID,
			Name:       row.Name,
			UnitPrice:  unitPrice,
			SizePrices: sizePrices,
			Active:     row.IsActive,
		})
	}
	return ingredients, nil
}

func (s *gormSource) FetchRecommendedIngredients(ctx context.Context, orgID uuid.UUID, productID int64) ([]int64, error) {
	if orgID == uuid.Nil {
		return nil, nil
	}

	var rows []models.RecommendedIngredient
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND menu_item_id = ?", orgID, productID).
		Order("rank ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find recommended ingredients: %w", err)
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.IngredientID)
	}
	return ids, nil
}

func menuItemFromRow(row models.MenuItem) (MenuItem, error) {
	price, err := decimal.NewFromString(row.Price)
	if err != nil {
		return MenuItem{}, fmt.Errorf("menu item %d price %q: %w", row.ID, row.Price, err)
	}

	item := MenuItem{
		ID:        row.ID,
		Name:      row.Name,
		Price:     price,
		Available: row.IsAvailable,
		Active:    row.IsActive,
	}
	if row.DiscountedPrice != nil {
		discounted, err := decimal.NewFromString(*row.DiscountedPrice)
		if err != nil {
			return MenuItem{}, fmt.Errorf("menu item %d discounted price %q: %w", row.ID, *row.DiscountedPrice, err)
		}
		item.DiscountedPrice = &discounted
	}
	return item, nil
}
