package donation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/mailer"
	"github.com/ovaphlow/pitchfork/service-member-go/pkg/utilities"
)

const (
	eventPaymentSucceeded = "payment_intent.succeeded"
	eventChargeRefunded   = "charge.refunded"
)

// ErrSignature is returned when the Stripe-Signature header does not verify.
var ErrSignature = errors.New("webhook signature verification failed")

// Processor applies verified Stripe events. Each side effect of an event is
// attempted independently; a failure is logged and the rest still run.
type Processor struct {
	secret  string
	gateway Gateway
	repo    Repository
	donors  Donors
	mail    mailer.Sender
	ledger  EventLedger
	ids     utilities.IDGenerator
	logger  *zap.SugaredLogger
	now     func() time.Time
}

type ProcessorDeps struct {
	WebhookSecret string
	Gateway       Gateway
	Repo          Repository
	Donors        Donors
	Mail          mailer.Sender
	Ledger        EventLedger
	IDs           utilities.IDGenerator
	Logger        *zap.SugaredLogger
}

func NewProcessor(d ProcessorDeps) *Processor {
	p := &Processor{
		secret:  d.WebhookSecret,
		gateway: d.Gateway,
		repo:    d.Repo,
		donors:  d.Donors,
		mail:    d.Mail,
		ledger:  d.Ledger,
		ids:     d.IDs,
		logger:  d.Logger,
		now:     time.Now,
	}
	if p.logger == nil {
		p.logger = zap.NewNop().Sugar()
	}
	if p.ledger == nil {
		p.ledger = NopLedger{}
	}
	if p.mail == nil {
		p.mail = mailer.NopSender{Logger: p.logger}
	}
	if p.ids == nil {
		p.ids = &utilities.SequenceGenerator{}
	}
	return p
}

// Handle verifies payload against signature and applies the event. Only a
// verification failure is returned; processing problems are logged so the
// provider always sees the delivery acknowledged.
func (p *Processor) Handle(ctx context.Context, payload []byte, signature string) error {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignature, err)
	}

	log := p.logger.With("eventId", ev.ID, "type", string(ev.Type))
	first, err := p.ledger.Claim(ctx, ev.ID)
	if err != nil {
		log.Warnw("event ledger unavailable, processing anyway", "err", err)
		first = true
	}
	if !first {
		log.Infow("duplicate webhook event skipped")
		return nil
	}

	switch string(ev.Type) {
	case eventPaymentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			log.Errorw("decode payment intent", "err", err)
			return nil
		}
		p.paymentSucceeded(ctx, log, &pi)
	case eventChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			log.Errorw("decode charge", "err", err)
			return nil
		}
		p.chargeRefunded(ctx, log, &ch)
	default:
		log.Debugw("webhook event ignored")
	}
	return nil
}

func parseUserID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil && id > 0
}

func (p *Processor) paymentSucceeded(ctx context.Context, log *zap.SugaredLogger, pi *stripe.PaymentIntent) {
	userID, ok := parseUserID(pi.Metadata["userId"])
	if !ok {
		log.Warnw("payment intent has no usable userId metadata", "paymentIntent", pi.ID)
		return
	}
	remarks := pi.Metadata["remarks"]
	amount := utilities.Cents(pi.AmountReceived)
	if amount == 0 {
		amount = utilities.Cents(pi.Amount)
	}

	if !chargeExpanded(pi) {
		if full, err := p.gateway.PaymentIntent(ctx, pi.ID); err != nil {
			log.Warnw("retrieve payment intent for card details", "err", err, "paymentIntent", pi.ID)
		} else {
			pi = full
		}
	}
	c, found := cardOf(pi)
	if !found {
		log.Infow("no card details on latest charge", "paymentIntent", pi.ID)
	}

	if err := p.donors.CreditDonation(ctx, userID, amount, pi.ID, remarks); err != nil {
		log.Errorw("credit donation to user", "err", err, "userId", userID)
	}

	d := &Donation{
		ID:              p.ids.NextID(),
		UserID:          userID,
		Amount:          amount,
		Remarks:         remarks,
		PaymentIntentID: pi.ID,
		CardBrand:       c.Brand,
		CardLast4:       c.Last4,
		CreatedAt:       p.now(),
	}
	if err := p.repo.Create(ctx, d); err != nil {
		log.Errorw("create donation record", "err", err, "paymentIntent", pi.ID)
	}

	p.sendReceipt(ctx, log, userID, d)
}

func (p *Processor) sendReceipt(ctx context.Context, log *zap.SugaredLogger, userID int64, d *Donation) {
	donor, err := p.donors.LookupDonor(ctx, userID)
	if err != nil {
		log.Warnw("load donor for receipt email", "err", err, "userId", userID)
		return
	}
	if donor.Email == "" {
		return
	}
	last4 := d.CardLast4
	if last4 == "" {
		last4 = "****"
	}
	remarks := d.Remarks
	if remarks == "" {
		remarks = "None"
	}
	msg, err := mailer.DonationReceipt(donor.Email, mailer.Donation{
		FullName:  donor.FullName,
		Amount:    d.Amount.String(),
		Reference: d.PaymentIntentID,
		CardBrand: displayBrand(d.CardBrand),
		CardLast4: last4,
		Remarks:   remarks,
	})
	if err != nil {
		log.Warnw("render donation receipt", "err", err)
		return
	}
	if err := p.mail.Send(ctx, msg); err != nil {
		log.Warnw("send donation receipt", "err", err, "userId", userID)
	}
}

func (p *Processor) chargeRefunded(ctx context.Context, log *zap.SugaredLogger, ch *stripe.Charge) {
	refunded := utilities.Cents(ch.AmountRefunded)
	if ch.PaymentIntent == nil || ch.PaymentIntent.ID == "" {
		log.Warnw("refunded charge has no payment intent", "charge", ch.ID)
		return
	}
	piID := ch.PaymentIntent.ID

	var userID int64
	if pi, err := p.gateway.PaymentIntent(ctx, piID); err != nil {
		log.Errorw("retrieve payment intent for refund", "err", err, "paymentIntent", piID)
	} else {
		userID, _ = parseUserID(pi.Metadata["userId"])
	}
	if userID == 0 {
		log.Warnw("no userId found for refunded charge", "charge", ch.ID)
		return
	}

	if err := p.donors.DebitDonation(ctx, userID, refunded); err != nil {
		log.Errorw("debit refunded amount from user", "err", err, "userId", userID)
	}
	matched, err := p.repo.MarkRefunded(ctx, piID, refunded)
	switch {
	case err != nil:
		log.Errorw("mark donation refunded", "err", err, "paymentIntent", piID)
	case !matched:
		log.Warnw("no donation record for refunded payment intent", "paymentIntent", piID)
	}
}
