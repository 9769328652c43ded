// Package payment adapts the Omise API to the gateway the booking services use.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

const (
	providerName    = "omise"
	metaBookingID   = "booking_id"
	eventChargeDone = "charge.complete"
)

type Gateway struct {
	client     *omise.Client
	publicKey  string
	sourceType string
	returnURI  string
}

func NewGateway(cfg config.PaymentConfig) (*Gateway, error) {
	client, err := omise.NewClient(cfg.PublicKey, cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create omise client: %w", err)
	}
	client.Timeout = 15 * time.Second
	return &Gateway{
		client:     client,
		publicKey:  cfg.PublicKey,
		sourceType: cfg.SourceType,
		returnURI:  cfg.ReturnURI,
	}, nil
}

func (g *Gateway) PublicKey() string { return g.publicKey }

// CreateOrder opens a source and a charge against it. The charge id is the order id.
func (g *Gateway) CreateOrder(ctx context.Context, req models.OrderRequest) (*models.PaymentOrder, error) {
	client := *g.client
	client.WithContext(ctx)

	src := &omise.Source{}
	if err := client.Do(src, &operations.CreateSource{
		Type:     g.sourceType,
		Amount:   req.Amount,
		Currency: req.Currency,
	}); err != nil {
		return nil, domain.UpstreamError{Provider: providerName, Err: fmt.Errorf("create source: %w", err)}
	}

	ch := &omise.Charge{}
	if err := client.Do(ch, &operations.CreateCharge{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Source:      src.ID,
		ReturnURI:   g.returnURI,
		Description: req.Description,
		Metadata:    map[string]interface{}{metaBookingID: strconv.FormatInt(req.BookingID, 10)},
	}); err != nil {
		return nil, domain.UpstreamError{Provider: providerName, Err: fmt.Errorf("create charge: %w", err)}
	}

	return &models.PaymentOrder{
		OrderID:      ch.ID,
		KeyID:        g.publicKey,
		Amount:       ch.Amount,
		Currency:     strings.ToUpper(ch.Currency),
		AuthorizeURI: ch.AuthorizeURI,
	}, nil
}

func (g *Gateway) RetrieveCharge(ctx context.Context, chargeID string) (*models.Charge, error) {
	ch := &omise.Charge{}
	client := *g.client
	client.WithContext(ctx)
	if err := client.Do(ch, &operations.RetrieveCharge{ChargeID: chargeID}); err != nil {
		return nil, domain.UpstreamError{Provider: providerName, Err: fmt.Errorf("retrieve charge: %w", err)}
	}
	return toCharge(ch), nil
}

// RetrieveEvent fetches the event from the gateway so webhook bodies are never trusted.
func (g *Gateway) RetrieveEvent(ctx context.Context, eventID string) (*models.GatewayEvent, error) {
	ev := &omise.Event{}
	client := *g.client
	client.WithContext(ctx)
	if err := client.Do(ev, &operations.RetrieveEvent{EventID: eventID}); err != nil {
		return nil, domain.UpstreamError{Provider: providerName, Err: fmt.Errorf("retrieve event: %w", err)}
	}
	return toGatewayEvent(ev)
}

func toGatewayEvent(ev *omise.Event) (*models.GatewayEvent, error) {
	out := &models.GatewayEvent{ID: ev.ID, Key: ev.Key}
	if !strings.HasPrefix(ev.Key, "charge.") || ev.Data == nil {
		return out, nil
	}

	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	var ch omise.Charge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, fmt.Errorf("unmarshal event charge: %w", err)
	}
	out.Charge = toCharge(&ch)
	return out, nil
}

func toCharge(ch *omise.Charge) *models.Charge {
	out := &models.Charge{
		ID:       ch.ID,
		Amount:   ch.Amount,
		Currency: ch.Currency,
		Status:   string(ch.Status),
	}
	switch v := ch.Metadata[metaBookingID].(type) {
	case string:
		out.BookingID = v
	case float64:
		out.BookingID = strconv.FormatInt(int64(v), 10)
	}
	if ch.FailureCode != nil {
		out.FailureCode = *ch.FailureCode
	}
	if ch.FailureMessage != nil {
		out.FailureReason = *ch.FailureMessage
	}
	return out
}

// IsChargeComplete reports whether a webhook event settles a charge.
func IsChargeComplete(ev *models.GatewayEvent) bool {
	return ev != nil && ev.Key == eventChargeDone && ev.Charge != nil
}
