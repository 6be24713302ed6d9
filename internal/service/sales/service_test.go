package sales_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
	"github.com/vladislavdragonenkov/commerce/internal/service/catalog"
	"github.com/vladislavdragonenkov/commerce/internal/service/sales"
	"github.com/vladislavdragonenkov/commerce/internal/storage/memory"
)

type CreateOrderSuite struct {
	suite.Suite

	ctx     context.Context
	store   *memory.Store
	service *sales.Service
}

func TestCreateOrderSuite(t *testing.T) {
	suite.Run(t, new(CreateOrderSuite))
}

func (s *CreateOrderSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewStore()
	s.service = sales.NewService(
		s.store,
		s.store.Products(),
		s.store.History(),
		sales.WithMetrics(metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())),
	)
}

func (s *CreateOrderSuite) product(name, price string, stock int, status domain.ProductStatus) domain.Product {
	product, err := s.store.Products().Create(s.ctx, domain.Product{
		Name:   name,
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Status: status,
	})
	s.Require().NoError(err)
	return product
}

func (s *CreateOrderSuite) stock(id int64) int {
	product, err := s.store.Products().Get(s.ctx, id)
	s.Require().NoError(err)
	return product.Stock
}

func (s *CreateOrderSuite) soldLines() int64 {
	_, total, err := s.store.History().ListLines(s.ctx, domain.LineHistoryFilter{})
	s.Require().NoError(err)
	return total
}

func (s *CreateOrderSuite) TestTotalIsSumOfSnapshots() {
	yerba := s.product("Yerba", "10.00", 5, domain.ProductStatusActive)
	mate := s.product("Mate", "4.55", 10, domain.ProductStatusActive)

	order, err := s.service.CreateOrder(s.ctx, domain.CreateOrderRequest{Lines: []domain.LineRequest{
		{ProductID: yerba.ID, Quantity: 3},
		{ProductID: mate.ID, Quantity: 2},
	}})
	s.Require().NoError(err)

	s.True(order.Total.Equal(decimal.RequireFromString("39.10")), "total %s", order.Total)
	s.Equal(2, s.stock(yerba.ID))
	s.Equal(8, s.stock(mate.ID))
	s.Require().Len(order.Lines, 2)
	s.Equal("Yerba", order.Lines[0].ProductName)
	s.Equal(order.ID, order.Lines[1].OrderID)
	s.Len(s.store.Outbox().AllPending(), 1)
}

func (s *CreateOrderSuite) TestScenarioStockFiveThenOversell() {
	product := s.product("P", "10.0", 5, domain.ProductStatusActive)

	order, err := s.service.CreateOrder(s.ctx, domain.CreateOrderRequest{Lines: []domain.LineRequest{{ProductID: product.ID, Quantity: 3}}})
	s.Require().NoError(err)
	s.True(order.Total.Equal(decimal.NewFromInt(30)))
	s.Equal(2, s.stock(product.ID))

	_, err = s.service.CreateOrder(s.ctx, domain.CreateOrderRequest{Lines: []domain.LineRequest{{ProductID: product.ID, Quantity: 5}}})
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)

	var typed *domain.Error
	s.Require().ErrorAs(err, &typed)
	s.Equal("P", typed.ProductName)
	s.Equal(2, typed.Available)
	s.Equal(2, s.stock(product.ID))
	s.Equal(int64(1), s.soldLines())
}

func (s *CreateOrderSuite) TestInactiveSecondLineLeavesFirstUntouched() {
	first := s.product("Yerba", "10.0", 5, domain.ProductStatusActive)
	second := s.product("Termo", "30.0", 5, domain.ProductStatusInactive)

	_, err := s.service.CreateOrder(s.ctx, domain.CreateOrderRequest{Lines: []domain.LineRequest{
		{ProductID: first.ID, Quantity: 1},
		{ProductID: second.ID, Quantity: 1},
	}})
	s.Require().ErrorIs(err, domain.ErrProductNotActive)
	s.Equal(5, s.stock(first.ID))
	s.Equal(5, s.stock(second.ID))
	s.Zero(s.soldLines())
	s.Empty(s.store.Outbox().AllPending())
}

func (s *CreateOrderSuite) TestDeletedProductIsNotActive() {
	product := s.product("Viejo", "1.0", 5, domain.ProductStatusDeleted)

	_, err := s.service.CreateOrder(s.ctx, domain.CreateOrderRequest{Lines: []domain.LineRequest{{ProductID: product.ID, Quantity: 1}}})
	s.Require().ErrorIs(err, domain.ErrProductNotActive)
	s.Equal(5, s.stock(product.ID))
}

func (s *CreateOrderSuite) TestMissingProductAndValidation() {
	_, err := s.service.CreateOrder(s.ctx, domain.CreateOrderRequest{Lines: []domain.LineRequest{{ProductID: 404, Quantity: 1}}})
	s.Require().ErrorIs(err, domain.ErrProductNotFound)

	_, err = s.service.CreateOrder(s.ctx, domain.CreateOrderRequest{})
	s.Require().ErrorIs(err, domain.ErrInvalidRequest)

	_, err = s.service.CreateOrder(s.ctx, domain.CreateOrderRequest{Lines: []domain.LineRequest{{ProductID: 1, Quantity: 0}}})
	s.Require().ErrorIs(err, domain.ErrInvalidRequest)
}

func (s *CreateOrderSuite) TestUnknownCustomerIsInvalidRequest() {
	product := s.product("Yerba", "10.0", 5, domain.ProductStatusActive)
	missing := int64(77)

	_, err := s.service.CreateOrder(s.ctx, domain.CreateOrderRequest{
		CustomerID: &missing,
		Lines:      []domain.LineRequest{{ProductID: product.ID, Quantity: 1}},
	})
	s.Require().ErrorIs(err, domain.ErrInvalidRequest)
	s.Equal(5, s.stock(product.ID))
}

func (s *CreateOrderSuite) TestInactiveCustomerCanStillBuy() {
	product := s.product("Yerba", "10.0", 5, domain.ProductStatusActive)
	customer, err := s.store.Customers().Create(s.ctx, domain.Customer{
		FirstName: "Ana", LastName: "Gómez", Email: "ana@example.com", Status: domain.CustomerStatusInactive,
	})
	s.Require().NoError(err)

	order, err := s.service.CreateOrder(s.ctx, domain.CreateOrderRequest{
		CustomerID: &customer.ID,
		Lines:      []domain.LineRequest{{ProductID: product.ID, Quantity: 1}},
	})
	s.Require().NoError(err)
	s.Require().NotNil(order.CustomerID)
	s.Equal(customer.ID, *order.CustomerID)
}

func (s *CreateOrderSuite) TestRepeatedProductSeesConsumedStock() {
	product := s.product("Yerba", "10.0", 5, domain.ProductStatusActive)

	_, err := s.service.CreateOrder(s.ctx, domain.CreateOrderRequest{Lines: []domain.LineRequest{
		{ProductID: product.ID, Quantity: 3},
		{ProductID: product.ID, Quantity: 3},
	}})
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)
	s.Equal(5, s.stock(product.ID))

	order, err := s.service.CreateOrder(s.ctx, domain.CreateOrderRequest{Lines: []domain.LineRequest{
		{ProductID: product.ID, Quantity: 3},
		{ProductID: product.ID, Quantity: 2},
	}})
	s.Require().NoError(err)
	s.Len(order.Lines, 2)
	s.Zero(s.stock(product.ID))
}

func (s *CreateOrderSuite) TestConcurrentLastUnit() {
	product := s.product("Último", "10.0", 1, domain.ProductStatusActive)

	const buyers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]error, 0, buyers)
	)
	start := make(chan struct{})
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.service.CreateOrder(s.ctx, domain.CreateOrderRequest{Lines: []domain.LineRequest{{ProductID: product.ID, Quantity: 1}}})
			mu.Lock()
			results = append(results, err)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case domain.KindOf(err) == domain.KindInsufficientStock, domain.IsRetryable(err):
		default:
			s.Failf("unexpected error", "%v", err)
		}
	}
	s.Equal(1, succeeded, "results: %s", spew.Sdump(results))
	s.Zero(s.stock(product.ID))
	s.Equal(int64(1), s.soldLines())
}

type HistorySuite struct {
	suite.Suite

	ctx     context.Context
	now     time.Time
	store   *memory.Store
	service *sales.Service
}

func TestHistorySuite(t *testing.T) {
	suite.Run(t, new(HistorySuite))
}

func (s *HistorySuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s.store = memory.NewStore(memory.WithClock(func() time.Time { return s.now }))
	s.service = sales.NewService(s.store, s.store.Products(), s.store.History())
}

func (s *HistorySuite) TestProductHistoryRejectsDeletedProduct() {
	product, err := s.store.Products().Create(s.ctx, domain.Product{Name: "Yerba", Price: decimal.NewFromInt(10), Stock: 5, Status: domain.ProductStatusActive})
	s.Require().NoError(err)

	_, err = s.service.CreateOrder(s.ctx, domain.CreateOrderRequest{Lines: []domain.LineRequest{{ProductID: product.ID, Quantity: 2}}})
	s.Require().NoError(err)

	rows, err := s.service.ProductHistory(s.ctx, product.ID)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal(3, rows[0].CurrentStock)

	_, err = s.store.Products().SetStatus(s.ctx, product.ID, domain.ProductStatusDeleted)
	s.Require().NoError(err)
	_, err = s.service.ProductHistory(s.ctx, product.ID)
	s.ErrorIs(err, domain.ErrProductNotFound)

	_, err = s.service.ProductHistory(s.ctx, 999)
	s.ErrorIs(err, domain.ErrProductNotFound)
}

func (s *HistorySuite) TestUnitPriceSnapshotSurvivesRepricing() {
	products := catalog.NewService(s.store.Products())
	product, err := products.Create(s.ctx, catalog.ProductInput{Name: "Yerba", Price: decimal.RequireFromString("10.00"), Stock: 8})
	s.Require().NoError(err)

	_, err = s.service.CreateOrder(s.ctx, domain.CreateOrderRequest{Lines: []domain.LineRequest{{ProductID: product.ID, Quantity: 3}}})
	s.Require().NoError(err)

	_, err = products.Update(s.ctx, product.ID, catalog.ProductInput{Name: "Yerba", Price: decimal.RequireFromString("12.50"), Stock: 20})
	s.Require().NoError(err)

	page, err := s.service.ListLineHistory(s.ctx, domain.LineHistoryFilter{})
	s.Require().NoError(err)
	s.Require().Len(page.Content, 1, spew.Sdump(page))
	s.True(page.Content[0].UnitPrice.Equal(decimal.RequireFromString("10.00")), "snapshot price changed: %s", page.Content[0].UnitPrice)
	s.Equal(20, page.Content[0].CurrentStock)

	rows, err := s.service.ProductHistory(s.ctx, product.ID)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.True(rows[0].UnitPrice.Equal(decimal.RequireFromString("10.00")), "snapshot price changed: %s", rows[0].UnitPrice)
	s.Equal(20, rows[0].CurrentStock)

	summaries, err := s.service.OrderHistory(s.ctx, sales.OrderHistoryQuery{})
	s.Require().NoError(err)
	s.Require().Len(summaries, 1)
	s.True(summaries[0].Total.Equal(decimal.RequireFromString("30.00")), "order total changed: %s", summaries[0].Total)
}

func (s *HistorySuite) TestLineHistoryPagination() {
	product, err := s.store.Products().Create(s.ctx, domain.Product{Name: "Yerba", Price: decimal.NewFromInt(10), Stock: 50, Status: domain.ProductStatusActive})
	s.Require().NoError(err)
	for i := 0; i < 12; i++ {
		s.now = s.now.Add(time.Minute)
		_, err := s.service.CreateOrder(s.ctx, domain.CreateOrderRequest{Lines: []domain.LineRequest{{ProductID: product.ID, Quantity: 1}}})
		s.Require().NoError(err)
	}

	first, err := s.service.ListLineHistory(s.ctx, domain.LineHistoryFilter{})
	s.Require().NoError(err)
	s.Equal(domain.DefaultPageSize, first.Size)
	s.Len(first.Content, domain.DefaultPageSize)
	s.Equal(int64(12), first.TotalElements)
	s.Equal(2, first.TotalPages())
	s.Equal(int64(12), first.Content[0].OrderID)

	second, err := s.service.ListLineHistory(s.ctx, domain.LineHistoryFilter{PageRequest: domain.PageRequest{Page: 1}})
	s.Require().NoError(err)
	s.Len(second.Content, 2)

	empty, err := s.service.ListLineHistory(s.ctx, domain.LineHistoryFilter{ProductName: "té"})
	s.Require().NoError(err)
	s.Empty(empty.Content)
	s.NotNil(empty.Content)
}

func (s *HistorySuite) TestOrderHistoryDateValidation() {
	_, err := s.service.OrderHistory(s.ctx, sales.OrderHistoryQuery{Date: "10/03/2025"})
	s.ErrorIs(err, domain.ErrInvalidRequest)

	summaries, err := s.service.OrderHistory(s.ctx, sales.OrderHistoryQuery{Date: "2025-03-10"})
	s.Require().NoError(err)
	s.NotNil(summaries)
	s.Empty(summaries)
}
