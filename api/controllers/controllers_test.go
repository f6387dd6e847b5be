package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facetcraft/nyp-backend/api/middleware"
	"github.com/facetcraft/nyp-backend/internal/checkout"
	"github.com/facetcraft/nyp-backend/internal/commitments"
	"github.com/facetcraft/nyp-backend/internal/entitlements"
	"github.com/facetcraft/nyp-backend/internal/negotiations"
	"github.com/facetcraft/nyp-backend/internal/notifications"
	"github.com/facetcraft/nyp-backend/internal/purchasetokens"
	"github.com/facetcraft/nyp-backend/pkg/auth"
	"github.com/facetcraft/nyp-backend/pkg/db/models"
	"github.com/facetcraft/nyp-backend/pkg/enums"
	pkgerrors "github.com/facetcraft/nyp-backend/pkg/errors"
	"github.com/facetcraft/nyp-backend/pkg/pagination"
)

type stubNegotiations struct {
	openInput   negotiations.OpenInput
	appendInput negotiations.AppendInput
	listStatus  *enums.NegotiationStatus
	listActor   auth.Actor
	listParams  pagination.Params
	page        pagination.Page[negotiations.Summary]
	closed      int
	err         error
}

func (s *stubNegotiations) Open(_ context.Context, input negotiations.OpenInput) (negotiations.Thread, error) {
	s.openInput = input
	if s.err != nil {
		return negotiations.Thread{}, s.err
	}
	return negotiations.Thread{Summary: negotiations.Summary{ID: uuid.New(), ProductID: input.ProductID, Status: enums.NegotiationStatusOpen}}, nil
}

func (s *stubNegotiations) AppendMessage(_ context.Context, input negotiations.AppendInput) (negotiations.Thread, error) {
	s.appendInput = input
	if s.err != nil {
		return negotiations.Thread{}, s.err
	}
	return negotiations.Thread{Summary: negotiations.Summary{ID: input.NegotiationID}}, nil
}

func (s *stubNegotiations) GetThread(_ context.Context, id uuid.UUID, _ auth.Actor) (negotiations.Thread, error) {
	if s.err != nil {
		return negotiations.Thread{}, s.err
	}
	return negotiations.Thread{Summary: negotiations.Summary{ID: id}}, nil
}

func (s *stubNegotiations) List(_ context.Context, actor auth.Actor, status *enums.NegotiationStatus, params pagination.Params) (pagination.Page[negotiations.Summary], error) {
	s.listActor = actor
	s.listStatus = status
	s.listParams = params
	return s.page, s.err
}

func (s *stubNegotiations) CloseForProduct(context.Context, uuid.UUID, auth.Actor) (int, error) {
	return s.closed, s.err
}

type stubEntitlements struct {
	buyerID  *uuid.UUID
	override entitlements.OverrideInput
}

func (s *stubEntitlements) Evaluate(_ context.Context, buyerID *uuid.UUID) entitlements.Entitlement {
	s.buyerID = buyerID
	if buyerID == nil {
		return entitlements.Locked(decimal.NewFromInt(1000))
	}
	return entitlements.Compute(decimal.NewFromInt(1200), decimal.NewFromInt(1000), false)
}

func (s *stubEntitlements) SetOverride(_ context.Context, input entitlements.OverrideInput) (entitlements.Entitlement, error) {
	s.override = input
	return entitlements.Compute(decimal.Zero, decimal.NewFromInt(1000), input.Enabled), nil
}

type stubTokens struct {
	token string
	err   error
}

func (s *stubTokens) Agreement(_ context.Context, negotiationID uuid.UUID, _ auth.Actor) (purchasetokens.Agreement, error) {
	if s.err != nil {
		return purchasetokens.Agreement{}, s.err
	}
	return purchasetokens.Agreement{Available: true, NegotiationID: negotiationID, Amount: decimal.NewFromInt(80)}, nil
}

func (s *stubTokens) Quote(_ context.Context, token string, _ auth.Actor) (purchasetokens.Quote, error) {
	s.token = token
	if s.err != nil {
		return purchasetokens.Quote{}, s.err
	}
	return purchasetokens.Quote{Amount: decimal.NewFromInt(80), Currency: "USD"}, nil
}

type stubCheckout struct {
	input checkout.Input
}

func (s *stubCheckout) Checkout(_ context.Context, input checkout.Input) (checkout.Result, error) {
	s.input = input
	return checkout.Result{CheckoutURL: "https://checkout.example/cs_1", SessionID: "cs_1"}, nil
}

type stubPayer struct {
	input commitments.MarkPaidInput
	err   error
}

func (s *stubPayer) MarkPaid(_ context.Context, input commitments.MarkPaidInput) (*models.Commitment, error) {
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	ref := input.PaymentReference
	return &models.Commitment{ID: input.CommitmentID, Status: enums.CommitmentStatusPaid, PaymentReference: &ref}, nil
}

var (
	buyer = auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer}
	admin = auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
)

func serve(t *testing.T, pattern, method, target, body string, actor *auth.Actor, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Method(method, pattern, h)

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if actor != nil {
		req = req.WithContext(middleware.WithActor(req.Context(), *actor))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Error.Code
}

func TestOpenNegotiationPassesActorAndAmount(t *testing.T) {
	svc := &stubNegotiations{}
	productID := uuid.New()
	body := `{"product_id":"` + productID.String() + `","amount":"80.50","text":"would you take this?"}`

	rec := serve(t, "/negotiations", http.MethodPost, "/negotiations", body, &buyer, OpenNegotiation(svc, nil))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, buyer, svc.openInput.Actor)
	assert.Equal(t, productID, svc.openInput.ProductID)
	assert.True(t, svc.openInput.Amount.Equal(decimal.RequireFromString("80.50")))
	require.NotNil(t, svc.openInput.Text)
	assert.Equal(t, "open", strings.ToLower(decodeData(t, rec)["status"].(string)))
}

func TestOpenNegotiationRequiresActor(t *testing.T) {
	svc := &stubNegotiations{}
	rec := serve(t, "/negotiations", http.MethodPost, "/negotiations", `{}`, nil, OpenNegotiation(svc, nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeUnauthorized), errorCode(t, rec))
}

func TestOpenNegotiationRejectsUnknownFields(t *testing.T) {
	svc := &stubNegotiations{}
	body := `{"product_id":"` + uuid.NewString() + `","amount":"10","price":"9"}`
	rec := serve(t, "/negotiations", http.MethodPost, "/negotiations", body, &buyer, OpenNegotiation(svc, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpenNegotiationSurfacesDomainCode(t *testing.T) {
	svc := &stubNegotiations{err: pkgerrors.New(pkgerrors.CodeAlreadyOpen, "an open negotiation already exists for this product")}
	body := `{"product_id":"` + uuid.NewString() + `","amount":"10"}`
	rec := serve(t, "/negotiations", http.MethodPost, "/negotiations", body, &buyer, OpenNegotiation(svc, nil))

	assert.Equal(t, string(pkgerrors.CodeAlreadyOpen), errorCode(t, rec))
}

func TestListNegotiationsParsesStatusFilter(t *testing.T) {
	svc := &stubNegotiations{}
	rec := serve(t, "/negotiations", http.MethodGet, "/negotiations?status=accepted", "", &admin, ListNegotiations(svc, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.listStatus)
	assert.Equal(t, enums.NegotiationStatusAccepted, *svc.listStatus)
	assert.Equal(t, admin, svc.listActor)
	assert.Equal(t, []any{}, decodeData(t, rec)["items"])
}

func TestListNegotiationsRejectsUnknownStatus(t *testing.T) {
	svc := &stubNegotiations{}
	rec := serve(t, "/negotiations", http.MethodGet, "/negotiations?status=haggling", "", &admin, ListNegotiations(svc, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.listStatus)
}

func TestListNegotiationsPassesPageParams(t *testing.T) {
	svc := &stubNegotiations{page: pagination.Page[negotiations.Summary]{
		Items:      []negotiations.Summary{{ID: uuid.New()}},
		NextCursor: "next",
	}}
	rec := serve(t, "/negotiations", http.MethodGet, "/negotiations?limit=10&cursor=abc", "", &admin, ListNegotiations(svc, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pagination.Params{Limit: 10, Cursor: "abc"}, svc.listParams)
	data := decodeData(t, rec)
	assert.Equal(t, "next", data["next_cursor"])
	assert.Len(t, data["items"], 1)
}

func TestListNegotiationsRejectsOversizedLimit(t *testing.T) {
	svc := &stubNegotiations{}
	rec := serve(t, "/negotiations", http.MethodGet, "/negotiations?limit=500", "", &admin, ListNegotiations(svc, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, auth.Actor{}, svc.listActor)
}

func TestAppendMessageUsesPathNegotiation(t *testing.T) {
	svc := &stubNegotiations{}
	negotiationID := uuid.New()
	acceptID := uuid.New()
	body := `{"kind":"ACCEPT","accept_message_id":"` + acceptID.String() + `"}`

	rec := serve(t, "/negotiations/{negotiationId}/messages", http.MethodPost,
		"/negotiations/"+negotiationID.String()+"/messages", body, &admin, AppendNegotiationMessage(svc, nil))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, negotiationID, svc.appendInput.NegotiationID)
	assert.Equal(t, enums.MessageKindAccept, svc.appendInput.Kind)
	require.NotNil(t, svc.appendInput.AcceptMessageID)
	assert.Equal(t, acceptID, *svc.appendInput.AcceptMessageID)
}

func TestAppendMessageRejectsUnknownKind(t *testing.T) {
	svc := &stubNegotiations{}
	rec := serve(t, "/negotiations/{negotiationId}/messages", http.MethodPost,
		"/negotiations/"+uuid.NewString()+"/messages", `{"kind":"HAGGLE"}`, &buyer, AppendNegotiationMessage(svc, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetNegotiationRejectsMalformedID(t *testing.T) {
	svc := &stubNegotiations{}
	rec := serve(t, "/negotiations/{negotiationId}", http.MethodGet, "/negotiations/not-a-uuid", "", &buyer, GetNegotiation(svc, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetNegotiationMapsNotFound(t *testing.T) {
	svc := &stubNegotiations{err: pkgerrors.New(pkgerrors.CodeNotFound, "negotiation not found")}
	rec := serve(t, "/negotiations/{negotiationId}", http.MethodGet, "/negotiations/"+uuid.NewString(), "", &buyer, GetNegotiation(svc, nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEntitlementsMeAnonymousIsLocked(t *testing.T) {
	svc := &stubEntitlements{}
	rec := serve(t, "/entitlements/me", http.MethodGet, "/entitlements/me", "", nil, EntitlementsMe(svc, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, svc.buyerID)
	assert.Equal(t, false, decodeData(t, rec)["unlocked_nyp"])
}

func TestEntitlementsMeUsesCaller(t *testing.T) {
	svc := &stubEntitlements{}
	rec := serve(t, "/entitlements/me", http.MethodGet, "/entitlements/me", "", &buyer, EntitlementsMe(svc, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.buyerID)
	assert.Equal(t, buyer.UserID, *svc.buyerID)
	assert.Equal(t, true, decodeData(t, rec)["unlocked_nyp"])
}

func TestAdminSetEntitlementOverride(t *testing.T) {
	svc := &stubEntitlements{}
	userID := uuid.New()
	rec := serve(t, "/users/{userId}/entitlements", http.MethodPatch,
		"/users/"+userID.String()+"/entitlements", `{"override_enabled":true}`, &admin, AdminSetEntitlementOverride(svc, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, svc.override.UserID)
	assert.Equal(t, admin.UserID, svc.override.ActorID)
	assert.True(t, svc.override.Enabled)
}

func TestAdminSetEntitlementOverrideRequiresFlag(t *testing.T) {
	svc := &stubEntitlements{}
	rec := serve(t, "/users/{userId}/entitlements", http.MethodPatch,
		"/users/"+uuid.NewString()+"/entitlements", `{}`, &admin, AdminSetEntitlementOverride(svc, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPurchaseQuote(t *testing.T) {
	svc := &stubTokens{}
	rec := serve(t, "/purchase/quote", http.MethodPost, "/purchase/quote", `{"purchase_token":"tok"}`, &buyer, PurchaseQuote(svc, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok", svc.token)
	assert.Equal(t, "USD", decodeData(t, rec)["currency"])
}

func TestPurchaseQuoteMapsExpiredToken(t *testing.T) {
	svc := &stubTokens{err: pkgerrors.New(pkgerrors.CodeTokenExpired, "purchase token expired")}
	rec := serve(t, "/purchase/quote", http.MethodPost, "/purchase/quote", `{"purchase_token":"tok"}`, &buyer, PurchaseQuote(svc, nil))

	assert.Equal(t, string(pkgerrors.CodeTokenExpired), errorCode(t, rec))
}

func TestNegotiationAgreement(t *testing.T) {
	svc := &stubTokens{}
	negotiationID := uuid.New()
	rec := serve(t, "/negotiations/{negotiationId}/agreement", http.MethodPost,
		"/negotiations/"+negotiationID.String()+"/agreement", "", &buyer, NegotiationAgreement(svc, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, true, data["available"])
	assert.Equal(t, negotiationID.String(), data["negotiation_id"])
}

func TestPurchaseCheckoutValidatesURLs(t *testing.T) {
	svc := &stubCheckout{}
	rec := serve(t, "/purchase/checkout", http.MethodPost, "/purchase/checkout",
		`{"purchase_token":"tok","success_url":"nope","cancel_url":"https://shop.example/cancel"}`, &buyer, PurchaseCheckout(svc, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.input.PurchaseToken)
}

func TestPurchaseCheckout(t *testing.T) {
	svc := &stubCheckout{}
	rec := serve(t, "/purchase/checkout", http.MethodPost, "/purchase/checkout",
		`{"purchase_token":"tok","success_url":"https://shop.example/ok","cancel_url":"https://shop.example/cancel"}`, &buyer, PurchaseCheckout(svc, nil))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, buyer, svc.input.Actor)
	assert.Equal(t, "cs_1", decodeData(t, rec)["session_id"])
}

func TestAdminMarkPaid(t *testing.T) {
	svc := &stubPayer{}
	commitmentID := uuid.New()
	rec := serve(t, "/commitments/{commitmentId}/mark-paid", http.MethodPost,
		"/commitments/"+commitmentID.String()+"/mark-paid", `{"payment_reference":"wire-42"}`, &admin, AdminMarkPaid(svc, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, commitmentID, svc.input.CommitmentID)
	assert.False(t, svc.input.ProviderConfirmed)
	require.NotNil(t, svc.input.Actor)
	assert.Equal(t, admin, *svc.input.Actor)
	assert.Equal(t, "wire-42", decodeData(t, rec)["payment_reference"])
}

func TestAdminMarkPaidConflict(t *testing.T) {
	svc := &stubPayer{err: pkgerrors.New(pkgerrors.CodeAlreadyPaid, "commitment already paid")}
	rec := serve(t, "/commitments/{commitmentId}/mark-paid", http.MethodPost,
		"/commitments/"+uuid.NewString()+"/mark-paid", `{"payment_reference":"wire-42"}`, &admin, AdminMarkPaid(svc, nil))

	assert.Equal(t, string(pkgerrors.CodeAlreadyPaid), errorCode(t, rec))
}

func TestAdminProductUnavailable(t *testing.T) {
	svc := &stubNegotiations{closed: 3}
	productID := uuid.New()
	rec := serve(t, "/products/{productId}/unavailable", http.MethodPost,
		"/products/"+productID.String()+"/unavailable", "", &admin, AdminProductUnavailable(svc, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), decodeData(t, rec)["closed"])
}

type stubPreferences struct {
	userID uuid.UUID
	update *notifications.PreferencesUpdate
}

func (s *stubPreferences) Get(_ context.Context, userID uuid.UUID) (notifications.Preferences, error) {
	s.userID = userID
	return notifications.Preferences{}, nil
}

func (s *stubPreferences) Update(_ context.Context, userID uuid.UUID, update notifications.PreferencesUpdate) (notifications.Preferences, error) {
	s.userID = userID
	s.update = &update
	return notifications.Preferences{SMSNegotiationsEnabled: update.SMSNegotiationsEnabled != nil && *update.SMSNegotiationsEnabled, PhoneE164: update.PhoneE164}, nil
}

func TestUpdateNotificationPreferences(t *testing.T) {
	svc := &stubPreferences{}
	rec := serve(t, "/users/me/preferences", http.MethodPatch, "/users/me/preferences",
		`{"sms_negotiations_enabled":true,"phone_e164":"+14155552671"}`, &buyer, UpdateNotificationPreferences(svc, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, buyer.UserID, svc.userID)
	data := decodeData(t, rec)
	assert.Equal(t, true, data["sms_negotiations_enabled"])
	assert.Equal(t, "+14155552671", data["phone_e164"])
}

func TestUpdateNotificationPreferencesRejectsBadPhone(t *testing.T) {
	svc := &stubPreferences{}
	rec := serve(t, "/users/me/preferences", http.MethodPatch, "/users/me/preferences",
		`{"phone_e164":"415-555-2671"}`, &buyer, UpdateNotificationPreferences(svc, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.update)

	rec = serve(t, "/users/me/preferences", http.MethodPatch, "/users/me/preferences",
		`{"phone_e164":""}`, &buyer, UpdateNotificationPreferences(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.update)
	assert.Equal(t, "", *svc.update.PhoneE164)
}

func TestGetNotificationPreferencesUsesCaller(t *testing.T) {
	svc := &stubPreferences{}
	rec := serve(t, "/users/me/preferences", http.MethodGet, "/users/me/preferences", "", &buyer, GetNotificationPreferences(svc, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, buyer.UserID, svc.userID)
	assert.Equal(t, false, decodeData(t, rec)["sms_negotiations_enabled"])
}
