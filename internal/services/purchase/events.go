package purchase

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/kevin07696/purchase-service/internal/domain/ports"
)

// Event types emitted after a successful purchase
const (
	EventPurchaseProcessed           = "purchase.processed"
	EventPurchaseProcessedThreeD     = "purchase.processed.threed"
	EventPurchaseProcessedCheque     = "purchase.processed.cheque"
	EventPurchaseProcessedThirdParty = "purchase.processed.third_party"
	EventCrossSaleProcessed          = "purchase.cross_sale.processed"
)

// AnyKey matches every value of one dimension of an event key
const AnyKey = "*"

// EventInput is what an event constructor builds from
type EventInput struct {
	Purchase    *domain.PurchaseProcess
	Site        *domain.Site
	Item        *domain.InitializedItem
	Transaction *domain.Transaction
}

// EventBuilder constructs an event payload
type EventBuilder func(in EventInput) ports.Event

// EventKey selects a constructor by payment type, biller and 3DS version.
// AnyKey in a dimension is a fallback for that dimension.
type EventKey struct {
	PaymentType   string
	BillerName    string
	ThreeDVersion string
}

// EventRegistry maps event keys to constructors. Built once at startup and
// read-only afterwards.
type EventRegistry struct {
	builders map[EventKey]EventBuilder
}

// NewEventRegistry creates an empty registry
func NewEventRegistry() *EventRegistry {
	return &EventRegistry{builders: make(map[EventKey]EventBuilder)}
}

// Register adds a constructor for key
func (r *EventRegistry) Register(key EventKey, builder EventBuilder) *EventRegistry {
	r.builders[key] = builder
	return r
}

// Resolve returns the most specific constructor for the given attempt.
// A biller entry outranks a payment-type entry, so a third-party biller keeps
// its event for every payment type. Lookup order: exact, biller and payment
// type, biller only, payment type and 3DS version, payment type only, then
// the global fallback.
func (r *EventRegistry) Resolve(paymentType domain.PaymentType, billerName string, threeDVersion int) (EventBuilder, bool) {
	pt := string(paymentType)
	v := AnyKey
	if threeDVersion > 0 {
		v = strconv.Itoa(threeDVersion)
	}

	candidates := []EventKey{
		{pt, billerName, v},
		{pt, billerName, AnyKey},
		{AnyKey, billerName, AnyKey},
		{pt, AnyKey, v},
		{pt, AnyKey, AnyKey},
		{AnyKey, AnyKey, AnyKey},
	}
	for _, key := range candidates {
		if b, ok := r.builders[key]; ok {
			return b, true
		}
	}
	return nil, false
}

// DefaultEventRegistry registers the standard purchase events
func DefaultEventRegistry() *EventRegistry {
	r := NewEventRegistry()
	cc := string(domain.PaymentTypeCC)

	r.Register(EventKey{AnyKey, AnyKey, AnyKey}, eventOf(EventPurchaseProcessed))
	r.Register(EventKey{cc, AnyKey, "1"}, eventOf(EventPurchaseProcessedThreeD))
	r.Register(EventKey{cc, AnyKey, "2"}, eventOf(EventPurchaseProcessedThreeD))
	r.Register(EventKey{string(domain.PaymentTypeChecks), AnyKey, AnyKey}, eventOf(EventPurchaseProcessedCheque))
	return r
}

// RegisterThirdPartyBiller routes events of a third-party biller to the third-party event
func (r *EventRegistry) RegisterThirdPartyBiller(billerName string) *EventRegistry {
	return r.Register(EventKey{AnyKey, billerName, AnyKey}, eventOf(EventPurchaseProcessedThirdParty))
}

func eventOf(eventType string) EventBuilder {
	return func(in EventInput) ports.Event {
		t := eventType
		if in.Item.IsCrossSale {
			t = EventCrossSaleProcessed
		}
		return ports.Event{
			Type:      t,
			SessionID: in.Purchase.SessionID,
			SiteID:    in.Item.SiteID,
			Payload:   eventPayload(in),
		}
	}
}

func eventPayload(in EventInput) map[string]interface{} {
	p := in.Purchase
	tx := in.Transaction
	payload := map[string]interface{}{
		"purchase_id":     p.PurchaseID,
		"member_id":       p.MemberID,
		"item_id":         in.Item.ID,
		"bundle_id":       in.Item.BundleID,
		"addon_id":        in.Item.AddonID,
		"subscription_id": in.Item.SubscriptionID,
		"transaction_id":  tx.ID,
		"biller_name":     tx.BillerName,
		"currency":        p.Currency,
		"initial_amount":  in.Item.ChargeInfo.InitialAmount.String(),
		"tax_amount":      in.Item.TaxInfo.InitialAmount.String(),
		"is_trial":        in.Item.IsTrial,
		"is_cross_sale":   in.Item.IsCrossSale,
		"submit_number":   p.GatewaySubmitNumber,
		"three_d_version": tx.ThreeDVersion(),
		"nsf_supported":   in.Item.NSFSupported,
		"attempts":        len(in.Item.Transactions),
		"email":           p.UserInfo.Email,
		"country":         p.UserInfo.Country,
	}
	if in.Item.ChargeInfo.IsRecurring() {
		payload["rebill_amount"] = in.Item.ChargeInfo.RebillAmount.String()
		payload["rebill_days"] = in.Item.ChargeInfo.RebillDays
	}
	if tx.SuccessfulBinRouting != nil {
		payload["routing_code"] = tx.SuccessfulBinRouting.RoutingCode
	}
	if p.PaymentInfo != nil {
		payload["payment_type"] = string(p.PaymentInfo.Type)
		payload["payment_method"] = p.PaymentInfo.Method
		if p.PaymentInfo.Card != nil {
			payload["first6"] = p.PaymentInfo.Card.First6
			payload["last4"] = p.PaymentInfo.Card.Last4
		}
	}
	payload["previous_nsf"] = hasNSFDecline(in.Item.Transactions)
	return payload
}

func hasNSFDecline(txs domain.TransactionCollection) bool {
	for _, tx := range txs {
		if tx.IsNSF() {
			return true
		}
	}
	return false
}

// EventToggles switch the side effects of a successful purchase
type EventToggles struct {
	EventIngestionEnabled bool
	PostbacksEnabled      bool
}

// EventDispatcher queues analytics events and postbacks. It never fails the
// purchase: queue errors are logged.
type EventDispatcher struct {
	registry  *EventRegistry
	events    ports.EventQueue
	postbacks ports.PostbackQueue
	logger    ports.Logger
	toggles   EventToggles
	now       func() time.Time
}

// NewEventDispatcher creates an event dispatcher
func NewEventDispatcher(registry *EventRegistry, events ports.EventQueue, postbacks ports.PostbackQueue, toggles EventToggles, logger ports.Logger) *EventDispatcher {
	return &EventDispatcher{
		registry:  registry,
		events:    events,
		postbacks: postbacks,
		logger:    logger,
		toggles:   toggles,
		now:       time.Now,
	}
}

// Dispatch emits one event per approved item and one postback for the purchase
func (d *EventDispatcher) Dispatch(ctx context.Context, purchase *domain.PurchaseProcess, site *domain.Site) {
	approved := purchase.ApprovedItems()
	if len(approved) == 0 {
		return
	}

	if d.toggles.EventIngestionEnabled && d.events != nil {
		paymentType := domain.PaymentType(AnyKey)
		if purchase.PaymentInfo != nil {
			paymentType = purchase.PaymentInfo.Type
		}
		for _, item := range approved {
			d.queueEvent(ctx, purchase, site, item, paymentType)
		}
	}

	if d.toggles.PostbacksEnabled && d.postbacks != nil && site.HasPostback() {
		d.queuePostback(ctx, purchase, site, approved)
	}
}

func (d *EventDispatcher) queueEvent(ctx context.Context, purchase *domain.PurchaseProcess, site *domain.Site, item *domain.InitializedItem, paymentType domain.PaymentType) {
	tx := approvedTransaction(item)
	build, ok := d.registry.Resolve(paymentType, tx.BillerName, tx.ThreeDVersion())
	if !ok {
		d.logger.Warn("no event constructor registered",
			ports.String("session_id", purchase.SessionID),
			ports.String("payment_type", string(paymentType)),
			ports.String("biller", tx.BillerName))
		return
	}

	event := build(EventInput{Purchase: purchase, Site: site, Item: item, Transaction: tx})
	event.ID = uuid.New().String()
	event.OccurredAt = d.now()

	if err := d.events.Queue(ctx, event); err != nil {
		d.logger.Warn("failed to queue purchase event",
			ports.String("session_id", purchase.SessionID),
			ports.String("event_type", event.Type),
			ports.Err(err))
	}
}

func (d *EventDispatcher) queuePostback(ctx context.Context, purchase *domain.PurchaseProcess, site *domain.Site, approved []*domain.InitializedItem) {
	items := make([]map[string]interface{}, 0, len(approved))
	for _, item := range approved {
		tx := approvedTransaction(item)
		items = append(items, map[string]interface{}{
			"item_id":         item.ID,
			"bundle_id":       item.BundleID,
			"subscription_id": item.SubscriptionID,
			"transaction_id":  tx.ID,
			"is_cross_sale":   item.IsCrossSale,
		})
	}

	postback := ports.Postback{
		URL:       site.PostbackURL,
		SiteID:    site.ID,
		SessionID: purchase.SessionID,
		EventType: EventPurchaseProcessed,
		Payload: map[string]interface{}{
			"session_id":  purchase.SessionID,
			"purchase_id": purchase.PurchaseID,
			"member_id":   purchase.MemberID,
			"site_id":     purchase.SiteID,
			"email":       purchase.UserInfo.Email,
			"username":    purchase.UserInfo.Username,
			"items":       items,
			"timestamp":   d.now().UTC().Format(time.RFC3339),
		},
	}
	if err := d.postbacks.Enqueue(ctx, postback); err != nil {
		d.logger.Warn("failed to queue postback",
			ports.String("session_id", purchase.SessionID),
			ports.String("site_id", site.ID),
			ports.Err(err))
	}
}

// approvedTransaction returns the item's approved attempt, or its last one
func approvedTransaction(item *domain.InitializedItem) *domain.Transaction {
	for i := len(item.Transactions) - 1; i >= 0; i-- {
		if item.Transactions[i].IsApproved() {
			return item.Transactions[i]
		}
	}
	return item.LastTransaction()
}
