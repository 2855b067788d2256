package service

import (
	"context"
	"errors"
	"fmt"

	"mining-bot-market/internal/core/domain"
	"mining-bot-market/internal/core/ports"
	"mining-bot-market/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// catalogService exposes the read-only product catalog.
type catalogService struct {
	products ports.ProductRepository
	log      zerolog.Logger
}

// NewCatalogService creates the catalog read service.
func NewCatalogService(products ports.ProductRepository, log zerolog.Logger) ports.CatalogService {
	return &catalogService{
		products: products,
		log:      log.With().Str("component", "catalog_service").Logger(),
	}
}

func (s *catalogService) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperror.ErrProductNotFound()
		}
		return nil, apperror.InternalError(fmt.Errorf("product lookup: %w", err))
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("product list: %w", err))
	}
	return products, nil
}
