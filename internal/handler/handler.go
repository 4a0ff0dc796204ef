package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fabianovilela/buymore/internal/domain/category"
	"github.com/fabianovilela/buymore/internal/domain/coupon"
	"github.com/fabianovilela/buymore/internal/domain/image"
	"github.com/fabianovilela/buymore/internal/domain/order"
	"github.com/fabianovilela/buymore/internal/domain/product"
	"github.com/fabianovilela/buymore/internal/domain/user"
	"github.com/fabianovilela/buymore/pkg/pagination"
)

// CouponService is the coupon administration used by the handler.
type CouponService interface {
	Get(ctx context.Context, id int64) (*coupon.Coupon, error)
	List(ctx context.Context, f coupon.Filter, p pagination.Request) (pagination.Page[coupon.Coupon], error)
	Create(ctx context.Context, c *coupon.Coupon) error
	Update(ctx context.Context, id int64, p coupon.Patch) (*coupon.Coupon, error)
	Delete(ctx context.Context, id int64) error
}

// OrderService is the order administration used by the handler.
type OrderService interface {
	Get(ctx context.Context, id string) (*order.Order, error)
	List(ctx context.Context, f order.Filter, p pagination.Request) (pagination.Page[order.Order], error)
	Create(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	Update(ctx context.Context, id string, req order.UpdateRequest) (*order.Order, error)
	Delete(ctx context.Context, id string) error
}

// DiscountService applies coupons to orders.
type DiscountService interface {
	Apply(ctx context.Context, code, orderID string) (*order.ApplyResult, error)
	Remove(ctx context.Context, orderID string, couponID int64) error
	Preview(ctx context.Context, code, orderID string) (*order.Preview, error)
}

// ProductService is the product administration used by the handler.
type ProductService interface {
	Get(ctx context.Context, id int64) (*product.Product, error)
	List(ctx context.Context, f product.Filter, p pagination.Request) (pagination.Page[product.Product], error)
	Create(ctx context.Context, p *product.Product) error
	Update(ctx context.Context, id int64, patch product.Patch) (*product.Product, error)
	Delete(ctx context.Context, id int64) error
}

// CategoryService is the category administration used by the handler.
type CategoryService interface {
	Get(ctx context.Context, id int64) (*category.Category, error)
	List(ctx context.Context, f category.Filter, p pagination.Request) (pagination.Page[category.Category], error)
	Create(ctx context.Context, c *category.Category) error
	Update(ctx context.Context, id int64, patch category.Patch) (*category.Category, error)
	Delete(ctx context.Context, id int64) error
}

// UserService is the user administration used by the handler.
type UserService interface {
	Get(ctx context.Context, id int64) (*user.User, error)
	List(ctx context.Context, f user.Filter, p pagination.Request) (pagination.Page[user.User], error)
	Create(ctx context.Context, req user.CreateRequest) (*user.User, error)
	Update(ctx context.Context, id int64, patch user.Patch) (*user.User, error)
	Delete(ctx context.Context, id int64) error
}

// ImageService manages uploaded images.
type ImageService interface {
	Get(ctx context.Context, id int64) (*image.Image, error)
	List(ctx context.Context, p pagination.Request) (pagination.Page[image.Image], error)
	Upload(ctx context.Context, uploads []image.Upload) (*image.UploadResult, error)
	Replace(ctx context.Context, id int64, up image.Upload) (*image.Image, error)
	Delete(ctx context.Context, id int64) error
}

// Services groups the domain dependencies of the Handler.
type Services struct {
	Coupons    CouponService
	Orders     OrderService
	Discounts  DiscountService
	Products   ProductService
	Categories CategoryService
	Users      UserService
	Images     ImageService
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to stored image paths in responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
	// DefaultLimit and MaxLimit bound list page sizes.
	DefaultLimit int
	MaxLimit     int
}

// Handler serves the admin API.
type Handler struct {
	coupons    CouponService
	orders     OrderService
	discounts  DiscountService
	products   ProductService
	categories CategoryService
	users      UserService
	images     ImageService

	validate     *validator.Validate
	imageBaseURL string
	defaultLimit int
	maxLimit     int
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg HandlerConfig, svc Services) *Handler {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = pagination.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = pagination.DefaultMaxLimit
	}
	return &Handler{
		coupons:      svc.Coupons,
		orders:       svc.Orders,
		discounts:    svc.Discounts,
		products:     svc.Products,
		categories:   svc.Categories,
		users:        svc.Users,
		images:       svc.Images,
		validate:     newValidator(),
		imageBaseURL: cfg.ImageBaseURL,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
	}
}

// Routes returns the admin API router. Every route passes through the given
// middlewares first, typically API key authentication.
func (h *Handler) Routes(middlewares ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewares...)
	r.Use(pagination.Middleware(h.defaultLimit, h.maxLimit))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/coupons", func(r chi.Router) {
		r.Get("/", h.ListCoupons)
		r.Post("/", h.CreateCoupon)
		r.Get("/{id}", h.GetCoupon)
		r.Put("/{id}", h.UpdateCoupon)
		r.Delete("/{id}", h.DeleteCoupon)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Post("/", h.CreateOrder)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetOrder)
			r.Put("/", h.UpdateOrder)
			r.Delete("/", h.DeleteOrder)

			r.Post("/discount", h.ApplyDiscount)
			r.Get("/discount/preview", h.PreviewDiscount)
			r.Delete("/discount/{couponID}", h.RemoveDiscount)
		})
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.CreateProduct)
		r.Get("/{id}", h.GetProduct)
		r.Put("/{id}", h.UpdateProduct)
		r.Delete("/{id}", h.DeleteProduct)
	})

	r.Route("/categories", func(r chi.Router) {
		r.Get("/", h.ListCategories)
		r.Post("/", h.CreateCategory)
		r.Get("/{id}", h.GetCategory)
		r.Put("/{id}", h.UpdateCategory)
		r.Delete("/{id}", h.DeleteCategory)
	})

	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.ListUsers)
		r.Post("/", h.CreateUser)
		r.Get("/{id}", h.GetUser)
		r.Put("/{id}", h.UpdateUser)
		r.Delete("/{id}", h.DeleteUser)
	})

	r.Route("/images", func(r chi.Router) {
		r.Get("/", h.ListImages)
		r.Post("/", h.UploadImages)
		r.Get("/{id}", h.GetImage)
		r.Put("/{id}", h.ReplaceImage)
		r.Delete("/{id}", h.DeleteImage)
	})

	return r
}
