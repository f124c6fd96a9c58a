package tests

import (
	"errors"

	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/gateway/transbank"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/service"
)

func (s *CheckoutSuite) TestInitiatePayment_PersistsInitializedRow() {
	s.seedUser(1, "ana@ferreteria.cl")
	s.seedProduct(10, "Pintura 1gl", "12990.60", 4)
	s.addToCart(1, 10, 1)

	s.Gateway.createResp = &transbank.CreateResponse{
		Token: "01ab23cd",
		URL:   "https://webpay3gint.transbank.cl/webpayserver/initTransaction",
	}

	start, err := s.Service.InitiatePayment(s.Ctx, 1)
	s.Require().NoError(err)
	s.Require().Equal("01ab23cd", start.Token)
	s.Require().Equal("https://webpay3gint.transbank.cl/webpayserver/initTransaction", start.URL)

	s.Require().Len(s.Gateway.createCalls, 1)
	call := s.Gateway.createCalls[0]
	s.Require().Equal("orden-1773500966535", call.buyOrder)
	s.Require().Equal("sess-1773500966535", call.sessionID)
	s.Require().Equal(int64(12991), call.amount)
	s.Require().Equal("http://localhost:5173/webpay/exito", call.returnURL)

	var (
		status   string
		buyOrder string
		amount   int64
	)
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx,
		`SELECT status, buy_order, amount FROM webpay_transactions WHERE token = $1`, "01ab23cd",
	).Scan(&status, &buyOrder, &amount))
	s.Require().Equal("INITIALIZED", status)
	s.Require().Equal(call.buyOrder, buyOrder)
	s.Require().Equal(int64(12991), amount)

	// Nothing is reserved until the payment is confirmed.
	s.Require().Equal(int32(4), s.stockOf(10))
	s.Require().Equal(1, s.count(`SELECT COUNT(*) FROM cart_items WHERE user_id = 1`))
}

func (s *CheckoutSuite) TestInitiatePayment_EmptyCartSkipsGateway() {
	s.seedUser(1, "ana@ferreteria.cl")

	_, err := s.Service.InitiatePayment(s.Ctx, 1)
	s.Require().True(errors.Is(err, service.ErrEmptyCart))
	s.Require().Empty(s.Gateway.createCalls)
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM webpay_transactions`))
}

func (s *CheckoutSuite) TestInitiatePayment_GatewayError() {
	s.seedUser(1, "ana@ferreteria.cl")
	s.seedProduct(10, "Pintura 1gl", "12990", 4)
	s.addToCart(1, 10, 1)

	s.Gateway.createErr = &transbank.APIError{StatusCode: 401, Message: "Not Authorized"}

	_, err := s.Service.InitiatePayment(s.Ctx, 1)
	s.Require().True(errors.Is(err, service.ErrGatewayInit))
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM webpay_transactions`))
}

func (s *CheckoutSuite) authorizedCommit(buyOrder string, amount int64) *transbank.CommitResponse {
	return &transbank.CommitResponse{
		VCI:                "TSY",
		Amount:             amount,
		Status:             "AUTHORIZED",
		BuyOrder:           buyOrder,
		SessionID:          "sess-1",
		CardDetail:         transbank.CardDetail{CardNumber: "6623"},
		AccountingDate:     "0314",
		TransactionDate:    "2026-03-14T15:10:02.511Z",
		AuthorizationCode:  "1213",
		PaymentTypeCode:    "VN",
		ResponseCode:       0,
		InstallmentsNumber: 0,
	}
}

func (s *CheckoutSuite) TestConfirmPayment_AuthorizedCreatesLinkedPurchase() {
	s.seedUser(1, "ana@ferreteria.cl")
	s.seedProduct(10, "Martillo", "7990", 5)
	s.addToCart(1, 10, 2)
	txID := s.seedInitialized(1, "orden-1", "tok-1", 15980)

	s.Gateway.commitResp = s.authorizedCommit("orden-1", 15980)

	res, err := s.Service.ConfirmPayment(s.Ctx, 1, "tok-1")
	s.Require().NoError(err)
	s.Require().True(res.Authorized)
	s.Require().NotZero(res.PurchaseID)
	s.Require().Equal([]string{"tok-1"}, s.Gateway.commitCalls)

	var (
		status    string
		authCode  string
		cardLast  string
		respCode  int
		typeCode  string
		hasTxDate bool
	)
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `
		SELECT status, authorization_code, card_last_digits, response_code, payment_type_code,
		       transaction_date IS NOT NULL
		FROM webpay_transactions WHERE id = $1`, txID,
	).Scan(&status, &authCode, &cardLast, &respCode, &typeCode, &hasTxDate))
	s.Require().Equal("AUTHORIZED", status)
	s.Require().Equal("1213", authCode)
	s.Require().Equal("6623", cardLast)
	s.Require().Zero(respCode)
	s.Require().Equal("VN", typeCode)
	s.Require().True(hasTxDate)

	s.Require().Equal(1, s.count(
		`SELECT COUNT(*) FROM purchase_webpay_transactions WHERE purchase_id = $1 AND transaction_id = $2`,
		res.PurchaseID, txID,
	))
	s.Require().Equal(int32(3), s.stockOf(10))
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM cart_items WHERE user_id = 1`))
	s.Require().Equal(1, s.outboxEvents("PurchaseCompleted"))
	s.Require().Zero(s.outboxEvents("PaymentRejected"))
}

func (s *CheckoutSuite) TestConfirmPayment_RejectedKeepsCart() {
	s.seedUser(1, "ana@ferreteria.cl")
	s.seedProduct(10, "Martillo", "7990", 5)
	s.addToCart(1, 10, 1)
	txID := s.seedInitialized(1, "orden-2", "tok-2", 7990)

	commit := s.authorizedCommit("orden-2", 7990)
	commit.Status = "FAILED"
	commit.ResponseCode = -1
	commit.AuthorizationCode = "000000"
	s.Gateway.commitResp = commit

	res, err := s.Service.ConfirmPayment(s.Ctx, 1, "tok-2")
	s.Require().NoError(err)
	s.Require().False(res.Authorized)
	s.Require().Zero(res.PurchaseID)
	s.Require().Equal("FAILED", res.Gateway.Status)

	var (
		status   string
		respCode int
	)
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx,
		`SELECT status, response_code FROM webpay_transactions WHERE id = $1`, txID,
	).Scan(&status, &respCode))
	s.Require().Equal("FAILED", status)
	s.Require().Equal(-1, respCode)

	s.Require().Zero(s.count(`SELECT COUNT(*) FROM purchases`))
	s.Require().Equal(int32(5), s.stockOf(10))
	s.Require().Equal(1, s.count(`SELECT COUNT(*) FROM cart_items WHERE user_id = 1`))
	s.Require().Equal(1, s.outboxEvents("PaymentRejected"))
}

func (s *CheckoutSuite) TestConfirmPayment_AuthorizedStatusWithNonZeroCodeIsRejected() {
	s.seedUser(1, "ana@ferreteria.cl")
	s.seedProduct(10, "Martillo", "7990", 5)
	s.addToCart(1, 10, 1)
	s.seedInitialized(1, "orden-3", "tok-3", 7990)

	commit := s.authorizedCommit("orden-3", 7990)
	commit.ResponseCode = -3
	s.Gateway.commitResp = commit

	res, err := s.Service.ConfirmPayment(s.Ctx, 1, "tok-3")
	s.Require().NoError(err)
	s.Require().False(res.Authorized)
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM purchases`))
}

func (s *CheckoutSuite) TestConfirmPayment_GatewayErrorMarksRowByToken() {
	s.seedUser(1, "ana@ferreteria.cl")
	txID := s.seedInitialized(1, "orden-4", "tok-4", 1000)
	otherID := s.seedInitialized(1, "orden-5", "tok-5", 2000)

	s.Gateway.commitErr = errors.New("connection reset by peer")

	_, err := s.Service.ConfirmPayment(s.Ctx, 1, "tok-4")
	s.Require().True(errors.Is(err, service.ErrGatewayConfirm))

	var (
		status   string
		respCode int
	)
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx,
		`SELECT status, response_code FROM webpay_transactions WHERE id = $1`, txID,
	).Scan(&status, &respCode))
	s.Require().Equal("FAILED", status)
	s.Require().Equal(-1, respCode)

	var otherStatus string
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx,
		`SELECT status FROM webpay_transactions WHERE id = $1`, otherID,
	).Scan(&otherStatus))
	s.Require().Equal("INITIALIZED", otherStatus)
}

func (s *CheckoutSuite) TestConfirmPayment_PurchaseFailureAfterAuthorization() {
	s.seedUser(1, "ana@ferreteria.cl")
	txID := s.seedInitialized(1, "orden-6", "tok-6", 5000)

	// The cart was emptied between iniciar and confirmar.
	s.Gateway.commitResp = s.authorizedCommit("orden-6", 5000)

	_, err := s.Service.ConfirmPayment(s.Ctx, 1, "tok-6")
	s.Require().True(errors.Is(err, service.ErrPurchaseFailed))

	var (
		status   string
		respCode int
		authCode string
	)
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx,
		`SELECT status, response_code, authorization_code FROM webpay_transactions WHERE id = $1`, txID,
	).Scan(&status, &respCode, &authCode))
	s.Require().Equal("FAILED", status)
	s.Require().Equal(-2, respCode)
	s.Require().Equal("1213", authCode)

	s.Require().Zero(s.count(`SELECT COUNT(*) FROM purchases`))
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM purchase_webpay_transactions`))
}

func (s *CheckoutSuite) TestConfirmPayment_StockShortageAfterAuthorization() {
	s.seedUser(1, "ana@ferreteria.cl")
	s.seedProduct(10, "Taladro", "54990", 1)
	s.addToCart(1, 10, 2)
	txID := s.seedInitialized(1, "orden-7", "tok-7", 109980)

	s.Gateway.commitResp = s.authorizedCommit("orden-7", 109980)

	_, err := s.Service.ConfirmPayment(s.Ctx, 1, "tok-7")
	s.Require().True(errors.Is(err, service.ErrPurchaseFailed))
	s.Require().ErrorContains(err, service.ErrInsufficientStock.Error())

	var respCode int
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx,
		`SELECT response_code FROM webpay_transactions WHERE id = $1`, txID,
	).Scan(&respCode))
	s.Require().Equal(-2, respCode)
	s.Require().Equal(int32(1), s.stockOf(10))
	s.Require().Equal(1, s.count(`SELECT COUNT(*) FROM cart_items WHERE user_id = 1`))
}

func (s *CheckoutSuite) TestConfirmPayment_UnknownBuyOrder() {
	s.seedUser(1, "ana@ferreteria.cl")

	s.Gateway.commitResp = s.authorizedCommit("orden-desconocida", 1000)

	_, err := s.Service.ConfirmPayment(s.Ctx, 1, "tok-x")
	s.Require().True(errors.Is(err, service.ErrTransactionNotFound))
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM purchases`))
}

func (s *CheckoutSuite) confirmAuthorized(userID int64, buyOrder, token string, amount int64) int64 {
	s.Gateway.commitResp = s.authorizedCommit(buyOrder, amount)
	s.Gateway.commitErr = nil

	res, err := s.Service.ConfirmPayment(s.Ctx, userID, token)
	s.Require().NoError(err)
	s.Require().True(res.Authorized)
	return res.PurchaseID
}

func (s *CheckoutSuite) TestConfirmPayment_ReplayAfterGatewayErrorKeepsAuthorizedRow() {
	s.seedUser(1, "ana@ferreteria.cl")
	s.seedProduct(10, "Martillo", "7990", 5)
	s.addToCart(1, 10, 1)
	txID := s.seedInitialized(1, "orden-10", "tok-10", 7990)

	purchaseID := s.confirmAuthorized(1, "orden-10", "tok-10", 7990)

	// Transbank refuses a second commit of the same token.
	s.Gateway.commitResp = nil
	s.Gateway.commitErr = &transbank.APIError{StatusCode: 422, Message: "Invalid status 2 for transaction while authorizing"}

	_, err := s.Service.ConfirmPayment(s.Ctx, 1, "tok-10")
	s.Require().True(errors.Is(err, service.ErrGatewayConfirm))

	var (
		status   string
		respCode int
	)
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx,
		`SELECT status, response_code FROM webpay_transactions WHERE id = $1`, txID,
	).Scan(&status, &respCode))
	s.Require().Equal("AUTHORIZED", status)
	s.Require().Zero(respCode)

	s.Require().Equal(1, s.count(
		`SELECT COUNT(*) FROM purchase_webpay_transactions WHERE purchase_id = $1 AND transaction_id = $2`,
		purchaseID, txID,
	))
	s.Require().Equal(1, s.count(`SELECT COUNT(*) FROM purchases`))
}

func (s *CheckoutSuite) TestConfirmPayment_ReplayOfSettledBuyOrderIsNotApplied() {
	s.seedUser(1, "ana@ferreteria.cl")
	s.seedProduct(10, "Martillo", "7990", 5)
	s.addToCart(1, 10, 1)
	txID := s.seedInitialized(1, "orden-11", "tok-11", 7990)

	s.confirmAuthorized(1, "orden-11", "tok-11", 7990)

	s.addToCart(1, 10, 1)
	s.Gateway.commitResp = s.authorizedCommit("orden-11", 7990)

	_, err := s.Service.ConfirmPayment(s.Ctx, 1, "tok-11")
	s.Require().True(errors.Is(err, service.ErrTransactionNotFound))

	var status string
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx,
		`SELECT status FROM webpay_transactions WHERE id = $1`, txID,
	).Scan(&status))
	s.Require().Equal("AUTHORIZED", status)
	s.Require().Equal(1, s.count(`SELECT COUNT(*) FROM purchases`))
	s.Require().Equal(int32(4), s.stockOf(10))
}

func (s *CheckoutSuite) TestConfirmPayment_CartChangedSinceInitiate() {
	s.seedUser(1, "ana@ferreteria.cl")
	s.seedProduct(10, "Martillo", "7990", 5)
	s.seedProduct(11, "Serrucho", "9990", 5)
	s.addToCart(1, 10, 1)
	txID := s.seedInitialized(1, "orden-12", "tok-12", 7990)

	// A line added after the charge was requested.
	s.addToCart(1, 11, 1)
	s.Gateway.commitResp = s.authorizedCommit("orden-12", 7990)

	_, err := s.Service.ConfirmPayment(s.Ctx, 1, "tok-12")
	s.Require().True(errors.Is(err, service.ErrPurchaseFailed))
	s.Require().ErrorContains(err, service.ErrAmountMismatch.Error())

	var respCode int
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx,
		`SELECT response_code FROM webpay_transactions WHERE id = $1`, txID,
	).Scan(&respCode))
	s.Require().Equal(-2, respCode)

	s.Require().Zero(s.count(`SELECT COUNT(*) FROM purchases`))
	s.Require().Equal(int32(5), s.stockOf(10))
	s.Require().Equal(int32(5), s.stockOf(11))
	s.Require().Equal(2, s.count(`SELECT COUNT(*) FROM cart_items WHERE user_id = 1`))
}
