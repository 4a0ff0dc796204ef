package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/fabianovilela/buymore/internal/domain/auth"
	"github.com/fabianovilela/buymore/internal/domain/category"
	"github.com/fabianovilela/buymore/internal/domain/coupon"
	"github.com/fabianovilela/buymore/internal/domain/order"
	"github.com/fabianovilela/buymore/internal/domain/product"
	"github.com/fabianovilela/buymore/internal/domain/user"
	"github.com/fabianovilela/buymore/internal/repository"
	"github.com/fabianovilela/buymore/pkg/pagination"
)

type productJSON struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

type options struct {
	databaseURL   string
	productsFile  string
	apiKey        string
	apiKeyPepper  string
	adminPassword string
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed (or BUYMORE_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or BUYMORE_API_KEY_PEPPER env)")
	flag.StringVar(&opts.adminPassword, "admin-password", "secret", "password of the seeded admin user")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("BUYMORE_SEED_API_KEY")
	}
	if opts.apiKey == "" {
		slog.Error("API key is required: set --api-key or BUYMORE_SEED_API_KEY")
		os.Exit(1)
	}
	if opts.apiKeyPepper == "" {
		opts.apiKeyPepper = os.Getenv("BUYMORE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, opts.databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	productRepo := repository.NewProductRepository(pool)

	discounts, err := order.NewDiscountService(repository.NewDiscountStore(pool), couponRepo, orderRepo)
	if err != nil {
		return errors.Wrap(err, "create discount service")
	}

	customers, err := seedUsers(ctx, user.NewService(repository.NewUserRepository(pool)), opts.adminPassword)
	if err != nil {
		return errors.Wrap(err, "seed users")
	}
	if err := seedCategories(ctx, category.NewService(repository.NewCategoryRepository(pool))); err != nil {
		return errors.Wrap(err, "seed categories")
	}
	products, err := seedProducts(ctx, product.NewService(productRepo), opts.productsFile)
	if err != nil {
		return errors.Wrap(err, "seed products")
	}
	if len(products) < 3 {
		return errors.Errorf("products file must list at least 3 products, got %d", len(products))
	}
	if err := seedCoupons(ctx, coupon.NewService(couponRepo), products, customers); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedDemoOrder(ctx, order.NewService(orderRepo, productRepo), discounts, products, customers); err != nil {
		return errors.Wrap(err, "seed demo order")
	}
	if err := seedAPIKey(ctx, repository.NewAPIKeyRepository(pool), opts.apiKey, opts.apiKeyPepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

var firstPage = pagination.Request{Page: 1, Limit: 1}

// seedUsers creates the admin and the demo customers and returns the
// customer ids. Users whose email already exists are looked up instead.
func seedUsers(ctx context.Context, svc *user.Service, adminPassword string) ([]int64, error) {
	slog.Info("seeding users")

	users := []user.CreateRequest{
		{Name: "John", Surname: "Doe", Email: "jhon@buymore.com", Password: adminPassword},
		{Name: "Ann", Surname: "Smith", Email: "ann@example.com", Password: "customer"},
		{Name: "Carlos", Surname: "Silva", Email: "carlos@example.com", Password: "customer"},
		{Name: "Mei", Surname: "Tanaka", Email: "mei@example.com", Password: "customer"},
	}

	var customers []int64
	for i, req := range users {
		id, err := ensureUser(ctx, svc, req)
		if err != nil {
			return nil, errors.Wrapf(err, "user %s", req.Email)
		}
		if i > 0 {
			customers = append(customers, id)
		}
	}
	return customers, nil
}

func ensureUser(ctx context.Context, svc *user.Service, req user.CreateRequest) (int64, error) {
	u, err := svc.Create(ctx, req)
	switch {
	case err == nil:
		slog.Info("created user", slog.Int64("id", u.ID), slog.String("email", u.Email))
		return u.ID, nil
	case errors.Is(err, user.ErrEmailTaken):
		page, err := svc.List(ctx, user.Filter{Name: req.Email}, firstPage)
		if err != nil {
			return 0, err
		}
		if len(page.Data) == 0 {
			return 0, errors.Errorf("email %s taken but not found", req.Email)
		}
		slog.Info("user exists", slog.Int64("id", page.Data[0].ID), slog.String("email", req.Email))
		return page.Data[0].ID, nil
	default:
		return 0, err
	}
}

func seedCategories(ctx context.Context, svc *category.Service) error {
	slog.Info("seeding categories")

	categories := []category.Category{
		{Title: "Keyboards", Description: "Mechanical and membrane keyboards"},
		{Title: "Mice", Description: "Wired and wireless mice"},
		{Title: "Audio", Description: "Headsets and speakers"},
	}

	for i := range categories {
		c := &categories[i]
		page, err := svc.List(ctx, category.Filter{Title: c.Title}, firstPage)
		if err != nil {
			return errors.Wrapf(err, "find category %q", c.Title)
		}
		if len(page.Data) > 0 && page.Data[0].Title == c.Title {
			continue
		}
		if err := svc.Create(ctx, c); err != nil {
			return errors.Wrapf(err, "create category %q", c.Title)
		}
		slog.Info("created category", slog.Int64("id", c.ID), slog.String("title", c.Title))
	}

	return nil
}

func seedProducts(ctx context.Context, svc *product.Service, productsFile string) ([]int64, error) {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return nil, errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}

	slog.Info("seeding products", slog.Int("count", len(products)))

	ids := make([]int64, 0, len(products))
	for _, p := range products {
		page, err := svc.List(ctx, product.Filter{Name: p.Name}, firstPage)
		if err != nil {
			return nil, errors.Wrapf(err, "find product %q", p.Name)
		}
		if len(page.Data) > 0 && page.Data[0].Name == p.Name {
			ids = append(ids, page.Data[0].ID)
			continue
		}

		np := &product.Product{Name: p.Name, Description: p.Description, Price: p.Price}
		if err := svc.Create(ctx, np); err != nil {
			return nil, errors.Wrapf(err, "create product %q", p.Name)
		}
		ids = append(ids, np.ID)

		slog.Info("created product", slog.Int64("id", np.ID), slog.String("name", np.Name))
	}

	return ids, nil
}

func seedCoupons(ctx context.Context, svc *coupon.Service, products, customers []int64) error {
	slog.Info("seeding coupons")

	now := time.Now().UTC().Truncate(24 * time.Hour)
	inMonth := now.AddDate(0, 1, 0)
	lastWeek := now.AddDate(0, 0, -7)

	coupons := []coupon.Coupon{
		{Code: "WELCOME10", Discount: decimal.NewFromInt(10), Type: coupon.TypePercent, ValidFrom: now, Quantity: 100, Recursive: true},
		{Code: "FIVEOFF", Discount: decimal.NewFromInt(5), Type: coupon.TypeCurrency, ValidFrom: now, ValidUntil: &inMonth, Quantity: 50, Recursive: true},
		{Code: "KEYBOARD20", Discount: decimal.NewFromInt(20), Type: coupon.TypePercent, ValidFrom: now, Quantity: 20, ProductIDs: products[1:2]},
		{Code: "VIPFREE", Type: coupon.TypeFull, ValidFrom: now, ValidUntil: &inMonth, Quantity: 1, CustomerIDs: customers[:1]},
		{Code: "SUMMER", Discount: decimal.NewFromInt(15), Type: coupon.TypePercent, ValidFrom: lastWeek.AddDate(0, -3, 0), ValidUntil: &lastWeek, Quantity: 10},
	}

	for i := range coupons {
		c := &coupons[i]
		if err := svc.Create(ctx, c); err != nil {
			if errors.Is(err, coupon.ErrCodeTaken) {
				slog.Info("coupon exists", slog.String("code", c.Code))
				continue
			}
			return errors.Wrapf(err, "create coupon %s", c.Code)
		}

		slog.Info("created coupon",
			slog.String("code", c.Code),
			slog.String("type", string(c.Type)),
			slog.String("can_use_for", string(c.Scope())),
		)
	}

	return nil
}

// seedDemoOrder creates one pending order with WELCOME10 applied, unless
// orders already exist.
func seedDemoOrder(ctx context.Context, orders *order.Service, discounts *order.DiscountService, products, customers []int64) error {
	page, err := orders.List(ctx, order.Filter{}, firstPage)
	if err != nil {
		return errors.Wrap(err, "list orders")
	}
	if page.Total > 0 {
		slog.Info("orders exist, skipping demo order", slog.Int64("count", page.Total))
		return nil
	}

	o, err := orders.Create(ctx, order.CreateRequest{
		UserID: customers[0],
		Status: order.StatusPending,
		Items: []order.ItemInput{
			{ProductID: products[0], Quantity: 2},
			{ProductID: products[2], Quantity: 1},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create order")
	}

	res, err := discounts.Apply(ctx, "WELCOME10", o.ID)
	if err != nil {
		return errors.Wrap(err, "apply coupon")
	}
	if !res.Applied {
		return errors.Errorf("demo coupon rejected: %s", res.Reason)
	}

	slog.Info("created demo order",
		slog.String("id", o.ID),
		slog.String("discount", res.Discount.Amount.StringFixed(2)),
	)
	return nil
}

func seedAPIKey(ctx context.Context, keys *repository.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	info := &auth.APIKeyInfo{
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Default admin key",
		Scopes:  []string{auth.ScopeAdmin},
	}
	if err := keys.Create(ctx, info); err != nil {
		return errors.Wrap(err, "create default API key")
	}

	slog.Info("upserted API key", slog.Int64("id", info.ID), slog.String("name", info.Name))

	return nil
}
