package wishlist

import (
	"context"
	"strings"

	"github.com/angelmondragon/betza-storefront/internal/cart"
	"github.com/angelmondragon/betza-storefront/internal/products"
	"github.com/angelmondragon/betza-storefront/pkg/db"
	pkgerrors "github.com/angelmondragon/betza-storefront/pkg/errors"
)

// CartAdder is the cart operation MoveToCart goes through; *cart.Store satisfies it.
type CartAdder interface {
	AddOrIncrement(ctx context.Context, product cart.Product, delta int) error
}

// ServiceParams groups dependencies for the wishlist service.
type ServiceParams struct {
	WishlistRepo *Repository
	ProductRepo  *products.Repository
}

// Service exposes business rules for wishlist management.
type Service interface {
	GetWishlist(ctx context.Context, userID, cursor string, limit int) (WishlistItemsPageDTO, error)
	AddItem(ctx context.Context, userID, productID string) error
	RemoveItem(ctx context.Context, userID, productID string) error
	MoveToCart(ctx context.Context, userID, productID string, dest CartAdder) error
}

type service struct {
	wishlistRepo *Repository
	productRepo  *products.Repository
}

// NewService builds a wishlist service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.WishlistRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wishlist repo is required")
	}
	if params.ProductRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product repo is required")
	}
	return &service{
		wishlistRepo: params.WishlistRepo,
		productRepo:  params.ProductRepo,
	}, nil
}

// GetWishlist returns the paginated wishlist for a user.
func (s *service) GetWishlist(ctx context.Context, userID, cursor string, limit int) (WishlistItemsPageDTO, error) {
	if err := requireUser(userID); err != nil {
		return WishlistItemsPageDTO{}, err
	}
	page, err := s.wishlistRepo.ListItems(ctx, userID, cursor, limit)
	if err != nil {
		return WishlistItemsPageDTO{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "list wishlist")
	}
	return page, nil
}

// AddItem ensures the product exists and adds it to the wishlist.
func (s *service) AddItem(ctx context.Context, userID, productID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if _, err := s.loadProduct(ctx, productID); err != nil {
		return err
	}
	if err := s.wishlistRepo.AddItem(ctx, userID, productID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add wishlist item")
	}
	return nil
}

// RemoveItem drops the wishlist entry regardless of prior state.
func (s *service) RemoveItem(ctx context.Context, userID, productID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if err := s.wishlistRepo.RemoveItem(ctx, userID, productID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove wishlist item")
	}
	return nil
}

// MoveToCart adds one unit of a liked product to dest and then unlikes it.
// The wishlist entry stays when the cart write fails.
func (s *service) MoveToCart(ctx context.Context, userID, productID string, dest CartAdder) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if dest == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is required")
	}
	liked, err := s.wishlistRepo.Contains(ctx, userID, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wishlist item")
	}
	if !liked {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product is not in the wishlist")
	}
	product, err := s.loadProduct(ctx, productID)
	if err != nil {
		return err
	}
	if err := dest.AddOrIncrement(ctx, cart.Product{
		ID:       product.ID,
		Name:     product.Name,
		Price:    product.Price,
		ImageRef: product.ImageURL,
	}, 1); err != nil && !cart.IsStaleView(err) {
		return err
	}
	return s.RemoveItem(ctx, userID, productID)
}

func (s *service) loadProduct(ctx context.Context, productID string) (*products.ProductDTO, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	row, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	dto := products.FromModel(*row)
	return &dto, nil
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}
	return nil
}
