package donation

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/mailer"
	"github.com/ovaphlow/pitchfork/service-member-go/pkg/utilities"
)

const testSecret = "whsec_test"

type fakeGateway struct {
	intents map[string]*stripe.PaymentIntent
	gets    int
	created []map[string]string
	amounts []utilities.Cents
	err     error
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, amount utilities.Cents, md map[string]string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.created = append(g.created, md)
	g.amounts = append(g.amounts, amount)
	return "pi_secret_123", nil
}

func (g *fakeGateway) PaymentIntent(_ context.Context, id string) (*stripe.PaymentIntent, error) {
	g.gets++
	if g.err != nil {
		return nil, g.err
	}
	pi, ok := g.intents[id]
	if !ok {
		return nil, errors.New("no such payment intent")
	}
	return pi, nil
}

type memRepo struct {
	mu        sync.Mutex
	donations []*Donation
}

func (r *memRepo) Create(_ context.Context, d *Donation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.donations = append(r.donations, d)
	return nil
}

func (r *memRepo) MarkRefunded(_ context.Context, pi string, amount utilities.Cents) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := false
	for _, d := range r.donations {
		if d.PaymentIntentID == pi {
			d.Refunded = true
			d.RefundedAmount = amount
			found = true
		}
	}
	return found, nil
}

func (r *memRepo) List(context.Context) ([]Listed, error) {
	out := make([]Listed, 0, len(r.donations))
	for _, d := range r.donations {
		out = append(out, Listed{Donation: *d, Donor: &Donor{ID: d.UserID, FullName: "Alice", Email: "alice@example.com"}})
	}
	return out, nil
}

type fakeDonors struct {
	totals    map[int64]utilities.Cents
	receipts  map[int64][]string
	creditErr error
}

func newFakeDonors(ids ...int64) *fakeDonors {
	d := &fakeDonors{totals: map[int64]utilities.Cents{}, receipts: map[int64][]string{}}
	for _, id := range ids {
		d.totals[id] = 0
	}
	return d
}

func (d *fakeDonors) LookupDonor(_ context.Context, id int64) (Donor, error) {
	if _, ok := d.totals[id]; !ok {
		return Donor{}, errors.New("not found")
	}
	return Donor{ID: id, FullName: "Alice", Email: "alice@example.com"}, nil
}

func (d *fakeDonors) CreditDonation(_ context.Context, id int64, amount utilities.Cents, pi, _ string) error {
	if d.creditErr != nil {
		return d.creditErr
	}
	if _, ok := d.totals[id]; !ok {
		return errors.New("not found")
	}
	d.totals[id] += amount
	d.receipts[id] = append(d.receipts[id], "Stripe_"+pi)
	return nil
}

func (d *fakeDonors) DebitDonation(_ context.Context, id int64, amount utilities.Cents) error {
	if _, ok := d.totals[id]; !ok {
		return errors.New("not found")
	}
	d.totals[id] -= amount
	return nil
}

// memLedger mimics SETNX semantics.
type memLedger struct {
	seen map[string]bool
	err  error
}

func (l *memLedger) Claim(_ context.Context, id string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.seen == nil {
		l.seen = map[string]bool{}
	}
	if l.seen[id] {
		return false, nil
	}
	l.seen[id] = true
	return true, nil
}

type fixture struct {
	gw     *fakeGateway
	repo   *memRepo
	donors *fakeDonors
	mail   *mailer.Recorder
	ledger *memLedger
	proc   *Processor
}

func newFixture() *fixture {
	f := &fixture{
		gw:     &fakeGateway{intents: map[string]*stripe.PaymentIntent{}},
		repo:   &memRepo{},
		donors: newFakeDonors(42),
		mail:   &mailer.Recorder{},
		ledger: &memLedger{},
	}
	f.proc = NewProcessor(ProcessorDeps{
		WebhookSecret: testSecret,
		Gateway:       f.gw,
		Repo:          f.repo,
		Donors:        f.donors,
		Mail:          f.mail,
		Ledger:        f.ledger,
		Logger:        zap.NewNop().Sugar(),
	})
	return f
}

func sign(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func event(id, typ, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","api_version":"2023-10-16","type":%q,"data":{"object":%s}}`, id, typ, object))
}

const succeededExpanded = `{"id":"pi_1","object":"payment_intent","amount":5000,"amount_received":5000,
 "metadata":{"userId":"42","remarks":"for the hall"},
 "latest_charge":{"id":"ch_1","object":"charge","payment_method_details":{"card":{"brand":"visa","last4":"4242"}}}}`

func TestPaymentSucceededCreditsExactAmount(t *testing.T) {
	f := newFixture()
	payload := event("evt_1", "payment_intent.succeeded", succeededExpanded)

	require.NoError(t, f.proc.Handle(context.Background(), payload, sign(payload, testSecret)))

	require.Equal(t, utilities.Cents(5000), f.donors.totals[42])
	require.Equal(t, []string{"Stripe_pi_1"}, f.donors.receipts[42])
	require.Len(t, f.repo.donations, 1)
	d := f.repo.donations[0]
	require.Equal(t, utilities.Cents(5000), d.Amount)
	require.Equal(t, "pi_1", d.PaymentIntentID)
	require.Equal(t, "visa", d.CardBrand)
	require.Equal(t, "4242", d.CardLast4)
	require.Equal(t, "for the hall", d.Remarks)
	require.Zero(t, f.gw.gets, "expanded charge needs no extra lookup")

	msg, ok := f.mail.Last()
	require.True(t, ok)
	require.Equal(t, "alice@example.com", msg.To)
	require.Contains(t, msg.HTML, "50.00")
	require.Contains(t, msg.HTML, "VISA")
}

func TestPaymentSucceededRetrievesCardWhenNotExpanded(t *testing.T) {
	f := newFixture()
	f.gw.intents["pi_2"] = &stripe.PaymentIntent{
		ID:       "pi_2",
		Metadata: map[string]string{"userId": "42"},
		LatestCharge: &stripe.Charge{
			ID: "ch_2",
			PaymentMethodDetails: &stripe.ChargePaymentMethodDetails{
				Card: &stripe.ChargePaymentMethodDetailsCard{Last4: "1111"},
			},
		},
	}
	obj := `{"id":"pi_2","object":"payment_intent","amount":2500,"amount_received":0,"metadata":{"userId":"42"},"latest_charge":"ch_2"}`
	payload := event("evt_2", "payment_intent.succeeded", obj)

	require.NoError(t, f.proc.Handle(context.Background(), payload, sign(payload, testSecret)))
	require.Equal(t, 1, f.gw.gets)
	require.Equal(t, utilities.Cents(2500), f.donors.totals[42], "falls back to amount")
	require.Equal(t, "1111", f.repo.donations[0].CardLast4)
}

func TestSideEffectsAreIndependent(t *testing.T) {
	f := newFixture()
	f.donors.creditErr = errors.New("db down")
	payload := event("evt_3", "payment_intent.succeeded", succeededExpanded)

	require.NoError(t, f.proc.Handle(context.Background(), payload, sign(payload, testSecret)))
	require.Len(t, f.repo.donations, 1, "donation is recorded even when the credit fails")
	require.Len(t, f.mail.Sent, 1)
}

func TestPaymentWithoutUserIsDropped(t *testing.T) {
	f := newFixture()
	obj := `{"id":"pi_4","object":"payment_intent","amount":1000,"amount_received":1000,"metadata":{}}`
	payload := event("evt_4", "payment_intent.succeeded", obj)

	require.NoError(t, f.proc.Handle(context.Background(), payload, sign(payload, testSecret)))
	require.Empty(t, f.repo.donations)
	require.Empty(t, f.mail.Sent)
}

func TestChargeRefundedDebitsAndMarks(t *testing.T) {
	f := newFixture()
	payload := event("evt_5", "payment_intent.succeeded", succeededExpanded)
	require.NoError(t, f.proc.Handle(context.Background(), payload, sign(payload, testSecret)))

	f.gw.intents["pi_1"] = &stripe.PaymentIntent{ID: "pi_1", Metadata: map[string]string{"userId": "42"}}
	refund := event("evt_6", "charge.refunded",
		`{"id":"ch_1","object":"charge","amount_refunded":2000,"payment_intent":"pi_1"}`)
	require.NoError(t, f.proc.Handle(context.Background(), refund, sign(refund, testSecret)))

	require.Equal(t, utilities.Cents(3000), f.donors.totals[42])
	require.True(t, f.repo.donations[0].Refunded)
	require.Equal(t, utilities.Cents(2000), f.repo.donations[0].RefundedAmount)
}

func TestRefundWithoutUserIsDropped(t *testing.T) {
	f := newFixture()
	f.gw.intents["pi_9"] = &stripe.PaymentIntent{ID: "pi_9", Metadata: map[string]string{}}
	refund := event("evt_7", "charge.refunded",
		`{"id":"ch_9","object":"charge","amount_refunded":500,"payment_intent":"pi_9"}`)

	require.NoError(t, f.proc.Handle(context.Background(), refund, sign(refund, testSecret)))
	require.Equal(t, utilities.Cents(0), f.donors.totals[42])
}

func TestDuplicateEventIsSkipped(t *testing.T) {
	f := newFixture()
	payload := event("evt_8", "payment_intent.succeeded", succeededExpanded)

	require.NoError(t, f.proc.Handle(context.Background(), payload, sign(payload, testSecret)))
	require.NoError(t, f.proc.Handle(context.Background(), payload, sign(payload, testSecret)))
	require.Equal(t, utilities.Cents(5000), f.donors.totals[42])
	require.Len(t, f.repo.donations, 1)
}

func TestLedgerErrorFailsOpen(t *testing.T) {
	f := newFixture()
	f.ledger.err = errors.New("redis down")
	payload := event("evt_9", "payment_intent.succeeded", succeededExpanded)

	require.NoError(t, f.proc.Handle(context.Background(), payload, sign(payload, testSecret)))
	require.Len(t, f.repo.donations, 1)
}

func TestBadSignature(t *testing.T) {
	f := newFixture()
	payload := event("evt_10", "payment_intent.succeeded", succeededExpanded)

	err := f.proc.Handle(context.Background(), payload, sign(payload, "whsec_other"))
	require.ErrorIs(t, err, ErrSignature)
	require.Empty(t, f.repo.donations)
}

func newTestEngine(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(NewService(f.gw, f.repo, nil), f.proc, zap.NewNop().Sugar())
	h.RegisterWebhook(r)
	r.POST("/api/donate", h.Donate)
	return r
}

func TestWebhookEndpoint(t *testing.T) {
	f := newFixture()
	r := newTestEngine(f)
	payload := event("evt_11", "customer.created", `{"id":"cus_1","object":"customer"}`)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", sign(payload, testSecret))
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"received":true}`, w.Body.String())

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "Webhook Error")
}

func TestDonateEndpoint(t *testing.T) {
	f := newFixture()
	r := newTestEngine(f)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/donate",
		strings.NewReader(`{"amount":25.5,"userId":"42","remarks":"thanks"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"clientSecret":"pi_secret_123"}`, w.Body.String())
	require.Equal(t, []utilities.Cents{2550}, f.gw.amounts)
	require.Equal(t, map[string]string{"userId": "42", "remarks": "thanks"}, f.gw.created[0])

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/donate", strings.NewReader(`{"amount":10}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"error":"Missing donation amount or userId"}`, w.Body.String())
}
