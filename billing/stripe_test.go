package billing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/pioneerstudio/patternshop/entity"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
)

const secret = "whsec_test"

func signed(t *testing.T, payload string) (string, []byte) {
	t.Helper()
	p := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: []byte(payload), Secret: secret, Timestamp: time.Now()})
	return p.Header, p.Payload
}

func event(typ, object string) string {
	return fmt.Sprintf(`{"id":"evt_1","object":"event","api_version":"2020-08-27","type":%q,"data":{"object":%s}}`, typ, object)
}

func TestParseEvent(t *testing.T) {
	gw := NewStripe(StripeConfig{SecretKey: "sk_test", WebhookSecret: secret})
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		payload string
		want    Event
	}{
		{
			name: "checkout completed",
			payload: event("checkout.session.completed", `{"id":"cs_1","object":"checkout.session","mode":"payment",
				"customer_details":{"email":"Ann@Example.com"},"amount_total":998,"currency":"eur",
				"payment_intent":"pi_1","metadata":{"items":"[\"p1\",\"p2\"]"}}`),
			want: CheckoutCompleted{envelope: envelope{ID: "evt_1"}, SessionID: "cs_1", Mode: "payment", Email: "Ann@Example.com",
				AmountTotal: 998, Currency: "eur", PaymentIntentID: "pi_1", PatternIDs: []string{"p1", "p2"}},
		},
		{
			name: "yearly subscription",
			payload: event("customer.subscription.updated", fmt.Sprintf(`{"id":"sub_1","object":"subscription","customer":"cus_1",
				"status":"trialing","cancel_at_period_end":true,"current_period_start":%d,"current_period_end":%d,
				"metadata":{"userId":"u1"},"items":{"object":"list","data":[{"id":"si_1","price":{"id":"price_y","recurring":{"interval":"year"}}}]}}`,
				start.Unix(), start.AddDate(1, 0, 0).Unix())),
			want: SubscriptionChanged{envelope: envelope{ID: "evt_1"}, SubscriptionID: "sub_1", CustomerID: "cus_1", UserID: "u1",
				PriceID: "price_y", Plan: entity.PlanYearly, Status: "trialing", CancelAtPeriodEnd: true,
				PeriodStart: &start, PeriodEnd: func() *time.Time { t := start.AddDate(1, 0, 0); return &t }()},
		},
		{
			name:    "subscription deleted",
			payload: event("customer.subscription.deleted", `{"id":"sub_1","object":"subscription","status":"canceled"}`),
			want:    SubscriptionDeleted{envelope: envelope{ID: "evt_1"}, SubscriptionID: "sub_1"},
		},
		{
			name:    "invoice paid",
			payload: event("invoice.payment_succeeded", `{"id":"in_1","object":"invoice","subscription":"sub_1","customer":"cus_1"}`),
			want:    InvoicePaid{envelope: envelope{ID: "evt_1"}, InvoiceID: "in_1", SubscriptionID: "sub_1", CustomerID: "cus_1"},
		},
		{
			name:    "invoice failed",
			payload: event("invoice.payment_failed", `{"id":"in_2","object":"invoice","subscription":"sub_1"}`),
			want:    InvoiceFailed{envelope: envelope{ID: "evt_1"}, InvoiceID: "in_2", SubscriptionID: "sub_1"},
		},
		{
			name:    "other",
			payload: event("charge.refunded", `{"id":"ch_1","object":"charge"}`),
			want:    Ignored{envelope: envelope{ID: "evt_1"}, Type: "charge.refunded"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, body := signed(t, tt.payload)
			got, err := gw.ParseEvent(body, header)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseEvent_Signature(t *testing.T) {
	gw := NewStripe(StripeConfig{SecretKey: "sk_test", WebhookSecret: secret})
	payload := event("invoice.payment_succeeded", `{"id":"in_1","object":"invoice"}`)

	_, err := gw.ParseEvent([]byte(payload), "")
	require.ErrorIs(t, err, ErrSignature)

	_, err = gw.ParseEvent([]byte(payload), "t=1,v1=deadbeef")
	require.ErrorIs(t, err, ErrSignature)

	header, _ := signed(t, payload)
	_, err = gw.ParseEvent([]byte(payload+" "), header)
	require.ErrorIs(t, err, ErrSignature)
}

func TestPatternIDs(t *testing.T) {
	require.Equal(t, []string{"a", "", "b"}, patternIDs(`["a","","b"]`), "positions follow the line items")
	require.Nil(t, patternIDs(""))
	require.Nil(t, patternIDs("not json"))
}

func fakeStripe(t *testing.T, handler func(path string, form url.Values) string) *Stripe {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(body))
		require.NoError(t, err)
		if r.Method == http.MethodGet {
			form = r.URL.Query()
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, handler(r.Method+" "+r.URL.Path, form))
	}))
	t.Cleanup(srv.Close)
	return NewStripe(StripeConfig{SecretKey: "sk_test", WebhookSecret: secret, BackendURL: srv.URL})
}

func TestCreateCheckout(t *testing.T) {
	var got url.Values
	gw := fakeStripe(t, func(path string, form url.Values) string {
		require.Equal(t, "POST /v1/checkout/sessions", path)
		got = form
		return `{"id":"cs_1","object":"checkout.session","url":"https://checkout.test/cs_1"}`
	})
	sess, err := gw.CreateCheckout(context.Background(), CheckoutRequest{
		Items: []CheckoutItem{
			{PatternID: "p1", Name: "Blue Waves", UnitAmount: 499},
			{PatternID: "p2", Name: "Koi Pond", Description: "fish", UnitAmount: 599},
		},
		SuccessURL: "http://shop.test/checkout/success",
		CancelURL:  "http://shop.test/cart",
	})
	require.NoError(t, err)
	require.Equal(t, Session{ID: "cs_1", URL: "https://checkout.test/cs_1"}, sess)
	require.Equal(t, "payment", got.Get("mode"))
	require.Equal(t, `["p1","p2"]`, got.Get("metadata[items]"))
	require.Equal(t, "eur", got.Get("line_items[0][price_data][currency]"))
	require.Equal(t, "599", got.Get("line_items[1][price_data][unit_amount]"))
	require.Equal(t, "fish", got.Get("line_items[1][price_data][product_data][description]"))
}

func TestCreateSubscriptionCheckout(t *testing.T) {
	var got url.Values
	gw := fakeStripe(t, func(path string, form url.Values) string {
		got = form
		return `{"id":"cs_2","object":"checkout.session","url":"https://checkout.test/cs_2"}`
	})
	_, err := gw.CreateSubscriptionCheckout(context.Background(), SubscriptionCheckoutRequest{
		CustomerID: "cus_1", PriceID: "price_m", UserID: "u1", Plan: entity.PlanMonthly, TrialDays: 7,
		SuccessURL: "s", CancelURL: "c",
	})
	require.NoError(t, err)
	require.Equal(t, "subscription", got.Get("mode"))
	require.Equal(t, "price_m", got.Get("line_items[0][price]"))
	require.Equal(t, "7", got.Get("subscription_data[trial_period_days]"))
	require.Equal(t, "u1", got.Get("subscription_data[metadata][userId]"))
	require.Equal(t, "true", got.Get("allow_promotion_codes"))
}

func TestReprice(t *testing.T) {
	var calls []string
	gw := fakeStripe(t, func(path string, form url.Values) string {
		calls = append(calls, path)
		switch path {
		case "POST /v1/prices":
			require.Equal(t, "799", form.Get("unit_amount"))
			return `{"id":"price_new","object":"price"}`
		case "POST /v1/products/prod_1":
			require.Equal(t, "price_new", form.Get("default_price"))
			return `{"id":"prod_1","object":"product"}`
		default:
			require.Equal(t, "false", form.Get("active"))
			return `{"id":"price_old","object":"price"}`
		}
	})
	id, err := gw.Reprice(context.Background(), "prod_1", "price_old", 799, "EUR")
	require.NoError(t, err)
	require.Equal(t, "price_new", id)
	require.Equal(t, []string{"POST /v1/prices", "POST /v1/products/prod_1", "POST /v1/prices/price_old"}, calls)
}

func TestLineItems(t *testing.T) {
	gw := fakeStripe(t, func(path string, form url.Values) string {
		require.Equal(t, "GET /v1/checkout/sessions/cs_1/line_items", path)
		return `{"object":"list","has_more":false,"data":[
			{"id":"li_1","object":"item","description":"Blue Waves","amount_total":499,"quantity":1},
			{"id":"li_2","object":"item","description":"Koi Pond","amount_total":599,"quantity":1}]}`
	})
	items, err := gw.LineItems(context.Background(), "cs_1")
	require.NoError(t, err)
	require.Equal(t, []LineItem{{Description: "Blue Waves", AmountTotal: 499, Quantity: 1}, {Description: "Koi Pond", AmountTotal: 599, Quantity: 1}}, items)
}
