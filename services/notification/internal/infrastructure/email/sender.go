package email

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sakashimaa/ferreteria-checkout/pkg/config"
	"github.com/sakashimaa/ferreteria-checkout/pkg/mylogger"
	"github.com/sakashimaa/ferreteria-checkout/services/notification/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Sender interface {
	SendPurchaseReceipt(ctx context.Context, event domain.PurchaseCompleted) error
	SendPaymentRejected(ctx context.Context, event domain.PaymentRejected) error
}

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Option func(*smtpSender)

func WithSendMail(fn SendMailFunc) Option {
	return func(s *smtpSender) {
		s.sendMail = fn
	}
}

type smtpSender struct {
	cfg      config.SMTP
	frontURL string
	sendMail SendMailFunc
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewSMTPSender(cfg config.SMTP, frontURL string, logger *zap.Logger, opts ...Option) Sender {
	if cfg.From == "" {
		cfg.From = cfg.User
	}

	s := &smtpSender{
		cfg:      cfg,
		frontURL: strings.TrimRight(frontURL, "/"),
		sendMail: smtp.SendMail,
		logger:   logger,
		tracer:   otel.Tracer("notification/infrastructure/email"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *smtpSender) SendPurchaseReceipt(ctx context.Context, event domain.PurchaseCompleted) error {
	ctx, span := s.tracer.Start(ctx, "smtp.SendPurchaseReceipt")
	defer span.End()

	span.SetAttributes(
		attribute.String("to.email", event.Email),
		attribute.Int64("purchase_id", event.PurchaseID),
	)

	view := receiptView{
		PurchaseID:        event.PurchaseID,
		BuyOrder:          event.BuyOrder,
		AuthorizationCode: event.AuthorizationCode,
		Total:             event.Total,
		PurchasesURL:      s.frontURL + "/mis-compras",
	}
	for _, item := range event.Items {
		view.Items = append(view.Items, receiptLine{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	var body bytes.Buffer
	if err := receiptTemplate.Execute(&body, view); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to render receipt: %w", err)
	}

	subject := fmt.Sprintf("Tu compra #%d en Ferretería", event.PurchaseID)
	if err := s.send(ctx, event.Email, subject, body.String()); err != nil {
		span.RecordError(err)
		return err
	}

	return nil
}

func (s *smtpSender) SendPaymentRejected(ctx context.Context, event domain.PaymentRejected) error {
	ctx, span := s.tracer.Start(ctx, "smtp.SendPaymentRejected")
	defer span.End()

	span.SetAttributes(
		attribute.String("to.email", event.Email),
		attribute.String("buy_order", event.BuyOrder),
	)

	var body bytes.Buffer
	err := rejectedTemplate.Execute(&body, rejectedView{
		BuyOrder:     event.BuyOrder,
		Amount:       event.Amount,
		ResponseCode: event.ResponseCode,
		CartURL:      s.frontURL + "/carrito",
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to render rejection notice: %w", err)
	}

	if err := s.send(ctx, event.Email, "Tu pago fue rechazado", body.String()); err != nil {
		span.RecordError(err)
		return err
	}

	return nil
}

func (s *smtpSender) send(ctx context.Context, to, subject, html string) error {
	var msg strings.Builder
	msg.WriteString("From: " + s.cfg.From + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	msg.WriteString(html)

	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)

	mylogger.Info(
		ctx,
		s.logger,
		"Sending email",
		zap.String("to", to),
		zap.String("subject", subject),
	)

	if err := s.sendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg.String())); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Error sending email",
			zap.String("to", to),
			zap.Error(err),
		)

		return fmt.Errorf("failed to send mail: %w", err)
	}

	mylogger.Info(ctx, s.logger, "Email sent successfully", zap.String("to", to))
	return nil
}
