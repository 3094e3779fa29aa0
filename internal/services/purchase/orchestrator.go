package purchase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/kevin07696/purchase-service/internal/domain/ports"
	"github.com/kevin07696/purchase-service/internal/services/fraud"
	"github.com/kevin07696/purchase-service/internal/services/idempotency"
	"github.com/kevin07696/purchase-service/pkg/observability"
)

const (
	commandProcess        = "process"
	commandCompleteThreeD = "complete_threed"
)

// ProcessCommand is one shopper submit of a purchase
type ProcessCommand struct {
	Payment            domain.PaymentData
	User               domain.UserInfo
	SelectedCrossSales []string // nil keeps the selection made at init
	SessionID          string
	ReturnURL          string
	CaptchaValidated   bool
}

// CompleteThreeDCommand carries the result of a 3DS challenge
type CompleteThreeDCommand struct {
	SessionID string
	PaRes     string
	MD        string
}

// Dependencies are the collaborators of the orchestrator
type Dependencies struct {
	Sessions  ports.SessionStore
	Sites     ports.SiteRepository
	Guard     *idempotency.Guard
	Fraud     *fraud.Gate
	Blacklist *fraud.BlacklistGuard
	Cascades  *CascadeSelector
	Routing   *RoutingResolver
	Engine    *AttemptEngine
	Events    *EventDispatcher
	Logger    ports.Logger
}

// Orchestrator drives a purchase process through screening, biller selection
// and transaction attempts. The aggregate is loaded once per command and
// written back once, whatever the outcome.
type Orchestrator struct {
	sessions  ports.SessionStore
	sites     ports.SiteRepository
	guard     *idempotency.Guard
	fraud     *fraud.Gate
	blacklist *fraud.BlacklistGuard
	cascades  *CascadeSelector
	routing   *RoutingResolver
	engine    *AttemptEngine
	events    *EventDispatcher
	logger    ports.Logger
	brands    domain.BrandPolicy
	newID     func() string
	now       func() time.Time
}

// NewOrchestrator creates a purchase orchestrator
func NewOrchestrator(deps Dependencies, brands domain.BrandPolicy) *Orchestrator {
	return &Orchestrator{
		sessions:  deps.Sessions,
		sites:     deps.Sites,
		guard:     deps.Guard,
		fraud:     deps.Fraud,
		blacklist: deps.Blacklist,
		cascades:  deps.Cascades,
		routing:   deps.Routing,
		engine:    deps.Engine,
		events:    deps.Events,
		logger:    deps.Logger,
		brands:    brands,
		newID:     func() string { return uuid.New().String() },
		now:       time.Now,
	}
}

// run is the state of one command invocation
type run struct {
	start    time.Time
	purchase *domain.PurchaseProcess
	site     *domain.Site
	command  string
}

// Process runs one submit. Fraud blocks and declines are results; errors are
// reserved for validation, state, duplicate and hard collaborator failures.
func (o *Orchestrator) Process(ctx context.Context, cmd ProcessCommand) (result *Result, err error) {
	if cmd.SessionID == "" {
		return nil, domain.ErrValidationMissingField.WithDetail("field", "session_id")
	}

	if err := o.guard.Begin(ctx, cmd.SessionID); err != nil {
		return nil, err
	}
	defer o.guard.End(ctx, cmd.SessionID)

	purchase, err := o.sessions.Load(ctx, cmd.SessionID)
	if err != nil {
		return nil, o.loadError(cmd.SessionID, err)
	}

	r := &run{start: o.now(), purchase: purchase, command: commandProcess}
	defer func() {
		result, err = o.finalize(ctx, r, result, err)
	}()

	return o.process(ctx, r, cmd)
}

func (o *Orchestrator) process(ctx context.Context, r *run, cmd ProcessCommand) (*Result, error) {
	p := r.purchase

	if err := p.ValidateTransition(domain.PurchaseStateValidating); err != nil {
		return nil, err
	}
	if err := o.blacklist.Allow(p); err != nil {
		return nil, err
	}
	main := p.MainItem()
	if main == nil {
		return nil, domain.ErrValidationFailed.WithDetail("field", "items")
	}
	if err := o.checkBrand(p, cmd.Payment, main.SiteID); err != nil {
		return nil, err
	}

	p.IncrementGatewaySubmitNumber()
	if err := p.TransitionTo(domain.PurchaseStateValidating); err != nil {
		return nil, err
	}
	p.UserInfo.Merge(cmd.User)
	info := cmd.Payment.Info()
	p.PaymentInfo = &info

	site, err := o.loadSite(ctx, p.SiteID)
	if err != nil {
		return nil, err
	}
	r.site = site

	if cmd.CaptchaValidated {
		p.FraudAdvice.CaptchaValidated = true
	}
	if o.fraud.Evaluate(ctx, p, site, cmd.Payment, domain.FraudPhaseProcess) {
		if err := p.TransitionTo(domain.PurchaseStateBlocked); err != nil {
			return nil, err
		}
		return blockedResult(p, fraud.BlockReason(&p.FraudAdvice)), nil
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := p.TransitionTo(domain.PurchaseStateProcessing); err != nil {
		return nil, err
	}

	cascade, err := o.cascades.Build(ctx, p, site, info)
	if err != nil {
		return nil, err
	}
	p.Cascade = cascade

	biller, mapping, err := o.cascades.Select(ctx, p, site)
	if err != nil {
		return nil, err
	}

	crossSales := o.selectCrossSales(p, cmd)

	var routing domain.BinRoutingCollection
	if !biller.ThirdParty && !info.IsCheque() {
		items := append([]*domain.InitializedItem{main}, crossSales...)
		routing = o.routing.Resolve(ctx, p, site, mapping, items, cmd.Payment.Bin())
	}

	in := AttemptInput{
		Purchase:  p,
		Site:      site,
		Mapping:   mapping,
		Routing:   routing,
		Biller:    biller,
		Payment:   cmd.Payment,
		ReturnURL: cmd.ReturnURL,
	}
	if err := o.engine.Attempt(ctx, in, main, crossSales); err != nil {
		return nil, err
	}

	o.blacklist.Check(ctx, p)
	o.blacklist.RecordDecline(ctx, p, main.LastTransaction())

	if err := o.settle(p, biller, main); err != nil {
		return nil, err
	}
	return newResult(p), nil
}

// CompleteThreeD finishes the 3DS challenge of a pending purchase. On approval
// the selected cross-sales are charged with the card token the biller issued.
func (o *Orchestrator) CompleteThreeD(ctx context.Context, cmd CompleteThreeDCommand) (result *Result, err error) {
	if cmd.SessionID == "" {
		return nil, domain.ErrValidationMissingField.WithDetail("field", "session_id")
	}

	if err := o.guard.Begin(ctx, cmd.SessionID); err != nil {
		return nil, err
	}
	defer o.guard.End(ctx, cmd.SessionID)

	purchase, err := o.sessions.Load(ctx, cmd.SessionID)
	if err != nil {
		return nil, o.loadError(cmd.SessionID, err)
	}

	r := &run{start: o.now(), purchase: purchase, command: commandCompleteThreeD}
	defer func() {
		result, err = o.finalize(ctx, r, result, err)
	}()

	return o.completeThreeD(ctx, r, cmd)
}

func (o *Orchestrator) completeThreeD(ctx context.Context, r *run, cmd CompleteThreeDCommand) (*Result, error) {
	p := r.purchase

	if err := p.ValidateTransition(domain.PurchaseStateProcessing); err != nil {
		return nil, err
	}
	main := p.MainItem()
	if main == nil {
		return nil, domain.ErrValidationFailed.WithDetail("field", "items")
	}
	pending := main.LastTransaction()
	if p.State != domain.PurchaseStatePending || !pending.IsPending() {
		return nil, domain.ErrPurchaseInvalidState.
			WithDetail("session_id", p.SessionID).
			WithDetail("state", string(p.State))
	}

	site, err := o.loadSite(ctx, p.SiteID)
	if err != nil {
		return nil, err
	}
	r.site = site

	if err := p.TransitionTo(domain.PurchaseStateProcessing); err != nil {
		return nil, err
	}

	tx, err := o.engine.CompleteThreeD(ctx, p, main, ports.CompleteThreeDRequest{
		TransactionID: pending.ID,
		PaRes:         cmd.PaRes,
		MD:            cmd.MD,
		SessionID:     p.SessionID,
	})
	if err != nil {
		return nil, err
	}

	biller, ok := p.Cascade.CurrentBiller()
	if !ok {
		biller = domain.Biller{Name: tx.BillerName}
	}

	if tx.IsApproved() {
		if err := o.completeCrossSales(ctx, p, site, biller, main, tx); err != nil {
			return nil, err
		}
	}
	o.blacklist.RecordDecline(ctx, p, tx)

	if err := o.settle(p, biller, main); err != nil {
		return nil, err
	}
	return newResult(p), nil
}

// completeCrossSales charges the selected cross-sales through the existing
// card path once the main item cleared its challenge
func (o *Orchestrator) completeCrossSales(ctx context.Context, p *domain.PurchaseProcess, site *domain.Site, biller domain.Biller, main *domain.InitializedItem, tx *domain.Transaction) error {
	crossSales := p.SelectedCrossSales()
	if len(crossSales) == 0 {
		return nil
	}
	if tx.PaymentTemplateID == "" || p.PaymentInfo == nil {
		o.logger.Warn("no payment template issued after 3DS, skipping cross-sales",
			ports.String("session_id", p.SessionID),
			ports.String("transaction_id", tx.ID))
		return nil
	}

	mapping, err := o.cascades.Mapping(ctx, p, site, biller)
	if err != nil {
		return err
	}

	payment := domain.PaymentData{
		Kind:       domain.PaymentKindExistingCard,
		Type:       p.PaymentInfo.Type,
		Method:     p.PaymentInfo.Method,
		TemplateID: tx.PaymentTemplateID,
	}
	if card := p.PaymentInfo.Card; card != nil {
		payment.First6 = card.First6
		payment.Last4 = card.Last4
		payment.ExpMonth = card.ExpMonth
		payment.ExpYear = card.ExpYear
	}

	routing := o.routing.Resolve(ctx, p, site, mapping, crossSales, payment.Bin())
	return o.engine.AttemptCrossSales(ctx, AttemptInput{
		Purchase: p,
		Site:     site,
		Mapping:  mapping,
		Routing:  routing,
		Biller:   biller,
		Payment:  payment,
	}, main, crossSales)
}

// checkBrand rejects a card brand the site does not accept
func (o *Orchestrator) checkBrand(p *domain.PurchaseProcess, payment domain.PaymentData, siteID string) error {
	brand := domain.ClassifyCardBrand(payment.Bin())
	if o.brands.Allows(brand, siteID) {
		return nil
	}
	o.logger.Info("card brand not accepted by site",
		ports.String("session_id", p.SessionID),
		ports.String("site_id", siteID),
		ports.String("brand", string(brand)))
	return domain.ErrPaymentNotSupported.
		WithDetail("brand", string(brand)).
		WithDetail("site_id", siteID)
}

// selectCrossSales applies the shopper's selection and drops cross-sales whose
// site does not accept the card brand. Approved cross-sales stay selected.
func (o *Orchestrator) selectCrossSales(p *domain.PurchaseProcess, cmd ProcessCommand) []*domain.InitializedItem {
	var requested map[string]bool
	if cmd.SelectedCrossSales != nil {
		requested = make(map[string]bool, len(cmd.SelectedCrossSales))
		for _, id := range cmd.SelectedCrossSales {
			requested[id] = true
		}
	}

	brand := domain.ClassifyCardBrand(cmd.Payment.Bin())
	for _, item := range p.CrossSales() {
		if item.IsApproved() {
			item.Selected = true
			continue
		}
		if requested != nil {
			item.Selected = requested[item.ID]
		}
		if item.Selected && !o.brands.Allows(brand, item.SiteID) {
			o.logger.Info("cross-sale dropped, card brand not accepted",
				ports.String("session_id", p.SessionID),
				ports.String("item_id", item.ID),
				ports.String("site_id", item.SiteID),
				ports.String("brand", string(brand)))
			item.Selected = false
		}
	}
	return p.SelectedCrossSales()
}

// settle moves the purchase to the state implied by the main item's last attempt
func (o *Orchestrator) settle(p *domain.PurchaseProcess, biller domain.Biller, main *domain.InitializedItem) error {
	last := main.LastTransaction()
	switch {
	case last.IsApproved():
		p.AssignIdentifiers(o.newID)
		return p.TransitionTo(domain.PurchaseStateProcessed)
	case last.IsPending() && biller.ThirdParty:
		return p.TransitionTo(domain.PurchaseStatePendingThirdParty)
	case last.IsPending():
		return p.TransitionTo(domain.PurchaseStatePending)
	case p.Cascade != nil && p.Cascade.HasCapacity(p.SubmitsFor):
		return p.TransitionTo(domain.PurchaseStateAborted)
	default:
		return p.TransitionTo(domain.PurchaseStateProcessed)
	}
}

// settleOnError keeps the state machine consistent when a command fails midway.
// An exhausted cascade is final: no later submit could reach a biller.
func (o *Orchestrator) settleOnError(p *domain.PurchaseProcess, err error) {
	switch p.State {
	case domain.PurchaseStateValidating:
		_ = p.TransitionTo(domain.PurchaseStateAborted)
	case domain.PurchaseStateProcessing:
		if main := p.MainItem(); main != nil && main.LastTransaction().IsApproved() {
			p.AssignIdentifiers(o.newID)
			_ = p.TransitionTo(domain.PurchaseStateProcessed)
			return
		}
		if domain.GetErrorCode(err) == domain.ErrorCodeCascadeExhausted {
			_ = p.TransitionTo(domain.PurchaseStateProcessed)
			return
		}
		_ = p.TransitionTo(domain.PurchaseStateAborted)
	}
}

// finalize persists the aggregate exactly once and emits the side effects of
// a successful purchase
func (o *Orchestrator) finalize(ctx context.Context, r *run, result *Result, err error) (*Result, error) {
	p := r.purchase
	if err != nil {
		o.settleOnError(p, err)
	}

	p.UpdatedAt = o.now()
	if uerr := o.sessions.Update(context.WithoutCancel(ctx), p); uerr != nil {
		o.logger.Error("failed to persist purchase process",
			ports.String("session_id", p.SessionID),
			ports.String("state", string(p.State)),
			ports.Err(uerr))
		if err == nil {
			result = nil
			err = domain.WrapError(domain.ErrorCodeDatabaseError, domain.ErrDatabaseError.Message, uerr).
				WithDetail("session_id", p.SessionID)
		}
	}

	observability.RecordPurchase(p.SiteID, r.command, string(p.State), o.now().Sub(r.start).Seconds())

	if err != nil {
		o.logger.Warn("purchase command failed",
			ports.String("session_id", p.SessionID),
			ports.String("command", r.command),
			ports.String("code", string(domain.GetErrorCode(err))),
			ports.String("state", string(p.State)),
			ports.Err(err))
		return nil, err
	}

	o.logger.Info("purchase command completed",
		ports.String("session_id", p.SessionID),
		ports.String("command", r.command),
		ports.String("state", string(p.State)),
		ports.Int("submit_number", p.GatewaySubmitNumber))

	if result.Success && o.events != nil && r.site != nil {
		o.events.Dispatch(ctx, p, r.site)
	}
	return result, nil
}

func (o *Orchestrator) loadSite(ctx context.Context, siteID string) (*domain.Site, error) {
	site, err := o.sites.GetSite(ctx, siteID)
	if err != nil {
		if domain.GetErrorCode(err) != "" {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrorCodeInternalError, "failed to load site", err).
			WithDetail("site_id", siteID)
	}
	return site, nil
}

func (o *Orchestrator) loadError(sessionID string, err error) error {
	if domain.GetErrorCode(err) != "" {
		return err
	}
	o.logger.Error("failed to load purchase process",
		ports.String("session_id", sessionID),
		ports.Err(err))
	return domain.WrapError(domain.ErrorCodeDatabaseError, domain.ErrDatabaseError.Message, err).
		WithDetail("session_id", sessionID)
}
