package tests

import (
	"time"

	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/domain"
)

func (s *CheckoutSuite) TestListPurchases_NewestFirstWithItems() {
	s.seedUser(1, "ana@ferreteria.cl")
	s.seedUser(2, "beto@ferreteria.cl")
	s.seedProduct(10, "Martillo", "7990", 10)
	s.seedProduct(11, "Serrucho", "9990", 10)

	s.addToCart(1, 10, 1)
	first, err := s.Service.PlaceOrder(s.Ctx, 1)
	s.Require().NoError(err)

	s.addToCart(1, 11, 2)
	second, err := s.Service.PlaceOrder(s.Ctx, 1)
	s.Require().NoError(err)

	s.addToCart(2, 10, 1)
	_, err = s.Service.PlaceOrder(s.Ctx, 2)
	s.Require().NoError(err)

	purchases, err := s.Service.ListPurchases(s.Ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(purchases, 2)
	s.Require().Equal(second.PurchaseID, purchases[0].ID)
	s.Require().Equal(first.PurchaseID, purchases[1].ID)

	s.Require().Len(purchases[0].Items, 1)
	s.Require().Equal("Serrucho", purchases[0].Items[0].Name)
	s.Require().Equal(int32(2), purchases[0].Items[0].Quantity)
	s.Require().Nil(purchases[0].Transaction)
}

func (s *CheckoutSuite) TestListPurchases_EmptyForNewUser() {
	s.seedUser(1, "ana@ferreteria.cl")

	purchases, err := s.Service.ListPurchases(s.Ctx, 1)
	s.Require().NoError(err)
	s.Require().Empty(purchases)
}

func (s *CheckoutSuite) TestListPurchases_IncludesWebpaySummary() {
	s.seedUser(1, "ana@ferreteria.cl")
	s.seedProduct(10, "Martillo", "7990", 5)
	s.addToCart(1, 10, 1)
	s.seedInitialized(1, "orden-9", "tok-9", 7990)
	s.Gateway.commitResp = s.authorizedCommit("orden-9", 7990)

	res, err := s.Service.ConfirmPayment(s.Ctx, 1, "tok-9")
	s.Require().NoError(err)

	purchases, err := s.Service.ListPurchases(s.Ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(purchases, 1)
	s.Require().Equal(res.PurchaseID, purchases[0].ID)
	s.Require().NotNil(purchases[0].Transaction)
	s.Require().Equal(domain.StatusAuthorized, purchases[0].Transaction.Status)
	s.Require().Equal("orden-9", *purchases[0].Transaction.BuyOrder)
	s.Require().Equal("1213", *purchases[0].Transaction.AuthorizationCode)
}

func (s *CheckoutSuite) TestCachedListPurchases_InvalidatedByPlaceOrder() {
	s.seedUser(1, "ana@ferreteria.cl")
	s.seedProduct(10, "Martillo", "7990", 10)

	purchases, err := s.Cached.ListPurchases(s.Ctx, 1)
	s.Require().NoError(err)
	s.Require().Empty(purchases)

	ttl, err := s.Redis.TTL(s.Ctx, "purchases:user:1").Result()
	s.Require().NoError(err)
	s.Require().Greater(ttl, time.Duration(0))

	s.addToCart(1, 10, 1)
	_, err = s.Cached.PlaceOrder(s.Ctx, 1)
	s.Require().NoError(err)

	exists, err := s.Redis.Exists(s.Ctx, "purchases:user:1").Result()
	s.Require().NoError(err)
	s.Require().Zero(exists)

	purchases, err = s.Cached.ListPurchases(s.Ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(purchases, 1)
}

func (s *CheckoutSuite) TestCachedListPurchases_ServesFromCache() {
	s.seedUser(1, "ana@ferreteria.cl")
	s.seedProduct(10, "Martillo", "7990", 10)
	s.addToCart(1, 10, 1)
	_, err := s.Service.PlaceOrder(s.Ctx, 1)
	s.Require().NoError(err)

	warm, err := s.Cached.ListPurchases(s.Ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(warm, 1)

	// Bypassing the decorator leaves the cached entry stale until it expires.
	s.addToCart(1, 10, 1)
	_, err = s.Service.PlaceOrder(s.Ctx, 1)
	s.Require().NoError(err)

	cached, err := s.Cached.ListPurchases(s.Ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(cached, 1)
}
