package tests

import (
	"encoding/json"
	"errors"

	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/service"
	"github.com/shopspring/decimal"
)

func (s *CheckoutSuite) TestPlaceOrder_Success() {
	s.seedUser(1, "ana@ferreteria.cl")
	s.seedProduct(10, "Martillo", "7990.00", 5)
	s.seedProduct(11, "Clavos 1kg", "2490.50", 10)
	s.addToCart(1, 10, 2)
	s.addToCart(1, 11, 1)

	res, err := s.Service.PlaceOrder(s.Ctx, 1)
	s.Require().NoError(err)
	s.Require().True(res.Success)
	s.Require().NotZero(res.PurchaseID)
	s.Require().True(res.Total.Equal(decimal.RequireFromString("18470.50")), res.Total.String())

	s.Require().Equal(int32(3), s.stockOf(10))
	s.Require().Equal(int32(9), s.stockOf(11))
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM cart_items WHERE user_id = 1`))
	s.Require().Equal(2, s.count(`SELECT COUNT(*) FROM purchase_items WHERE purchase_id = $1`, res.PurchaseID))

	var payload []byte
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx,
		`SELECT payload FROM outbox WHERE event_type = 'PurchaseCompleted'`).Scan(&payload))

	var envelope struct {
		Event   string `json:"event"`
		Payload struct {
			PurchaseID int64  `json:"purchase_id"`
			Email      string `json:"email"`
			Total      string `json:"total"`
		} `json:"payload"`
	}
	s.Require().NoError(json.Unmarshal(payload, &envelope))
	s.Require().Equal("PurchaseCompleted", envelope.Event)
	s.Require().Equal(res.PurchaseID, envelope.Payload.PurchaseID)
	s.Require().Equal("ana@ferreteria.cl", envelope.Payload.Email)
	s.Require().Equal("18470.50", envelope.Payload.Total)
}

func (s *CheckoutSuite) TestPlaceOrder_EmptyCart() {
	s.seedUser(1, "ana@ferreteria.cl")

	_, err := s.Service.PlaceOrder(s.Ctx, 1)
	s.Require().Error(err)
	s.Require().True(errors.Is(err, service.ErrEmptyCart))
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM purchases`))
	s.Require().Zero(s.outboxEvents("PurchaseCompleted"))
}

func (s *CheckoutSuite) TestPlaceOrder_InsufficientStockChangesNothing() {
	s.seedUser(1, "ana@ferreteria.cl")
	s.seedProduct(10, "Martillo", "7990", 5)
	s.seedProduct(11, "Taladro", "54990", 1)
	s.addToCart(1, 10, 1)
	s.addToCart(1, 11, 2)

	_, err := s.Service.PlaceOrder(s.Ctx, 1)
	s.Require().Error(err)
	s.Require().True(errors.Is(err, service.ErrInsufficientStock))

	s.Require().Equal(int32(5), s.stockOf(10))
	s.Require().Equal(int32(1), s.stockOf(11))
	s.Require().Equal(2, s.count(`SELECT COUNT(*) FROM cart_items WHERE user_id = 1`))
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM purchases`))
}

func (s *CheckoutSuite) TestRecordFailure() {
	s.seedUser(1, "ana@ferreteria.cl")

	s.Service.RecordFailure(s.Ctx, 1, errors.New("something broke"))

	var (
		status   string
		msg      string
		buyOrder *string
	)
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx,
		`SELECT status, error_message, buy_order FROM webpay_transactions WHERE user_id = 1`,
	).Scan(&status, &msg, &buyOrder))
	s.Require().Equal("FAILED", status)
	s.Require().Equal("something broke", msg)
	s.Require().Nil(buyOrder)
}

func (s *CheckoutSuite) TestRecordFailure_UnknownUserIsSwallowed() {
	s.Require().NotPanics(func() {
		s.Service.RecordFailure(s.Ctx, 999, errors.New("no such user"))
	})
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM webpay_transactions`))
}
