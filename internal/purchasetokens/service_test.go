package purchasetokens

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/facetcraft/nyp-backend/internal/commitments"
	"github.com/facetcraft/nyp-backend/pkg/auth"
	"github.com/facetcraft/nyp-backend/pkg/db"
	"github.com/facetcraft/nyp-backend/pkg/db/dbtest"
	"github.com/facetcraft/nyp-backend/pkg/db/models"
	"github.com/facetcraft/nyp-backend/pkg/enums"
	pkgerrors "github.com/facetcraft/nyp-backend/pkg/errors"
)

type fixture struct {
	conn       *gorm.DB
	svc        Service
	now        time.Time
	buyer      auth.Actor
	commitment models.Commitment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	f := &fixture{
		conn:  conn,
		now:   time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		buyer: auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer},
	}
	f.commitment = models.Commitment{
		ID:              uuid.New(),
		NegotiationID:   uuid.New(),
		BuyerID:         f.buyer.UserID,
		ProductID:       uuid.New(),
		AgreedAmount:    decimal.RequireFromString("650.00"),
		Currency:        "USD",
		Status:          enums.CommitmentStatusPending,
		CommitExpiresAt: f.now.Add(24 * time.Hour),
		CreatedAt:       f.now,
		UpdatedAt:       f.now,
	}
	require.NoError(t, conn.Create(&f.commitment).Error)

	signer, err := NewSigner("0123456789abcdef-test-secret")
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:        NewRepository(conn),
		Commitments: commitments.NewRepository(conn),
		Tx:          db.Wrap(conn),
		Signer:      signer,
		Clock:       func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) redeem(token string, actor auth.Actor) (Quote, error) {
	var quote Quote
	err := db.Wrap(f.conn).WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		quote, err = f.svc.Redeem(context.Background(), tx, token, actor)
		return err
	})
	return quote, err
}

func TestIssueTokenIsIdempotent(t *testing.T) {
	f := newFixture(t)

	first, commitment, err := f.svc.IssueToken(context.Background(), f.commitment.NegotiationID, f.buyer)
	require.NoError(t, err)
	assert.Equal(t, f.commitment.ID, commitment.ID)
	second, _, err := f.svc.IssueToken(context.Background(), f.commitment.NegotiationID, f.buyer)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var rows []models.PurchaseToken
	require.NoError(t, f.conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, HashToken(first), rows[0].TokenHash)
	assert.NotEqual(t, first, rows[0].TokenHash)
}

func TestRedeemSucceedsOnce(t *testing.T) {
	f := newFixture(t)
	token, _, err := f.svc.IssueToken(context.Background(), f.commitment.NegotiationID, f.buyer)
	require.NoError(t, err)

	quote, err := f.svc.Quote(context.Background(), token, f.buyer)
	require.NoError(t, err)
	assert.True(t, quote.Amount.Equal(decimal.NewFromInt(650)))

	quote, err = f.redeem(token, f.buyer)
	require.NoError(t, err)
	assert.True(t, quote.Amount.Equal(decimal.NewFromInt(650)))
	assert.Equal(t, f.commitment.NegotiationID, quote.NegotiationID)
	assert.Equal(t, f.commitment.ID, quote.CommitmentID)

	_, err = f.redeem(token, f.buyer)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeTokenInvalid))

	_, _, err = f.svc.IssueToken(context.Background(), f.commitment.NegotiationID, f.buyer)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNoActiveAgreement))
}

func TestRedeemRejectsUnknownAndForeignTokens(t *testing.T) {
	f := newFixture(t)
	token, _, err := f.svc.IssueToken(context.Background(), f.commitment.NegotiationID, f.buyer)
	require.NoError(t, err)

	_, err = f.redeem("not-a-token", f.buyer)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeTokenInvalid))

	_, err = f.redeem(token, auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeTokenInvalid))

	_, err = f.redeem("", f.buyer)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeTokenInvalid))
}

func TestExpiredCommitmentRejectsToken(t *testing.T) {
	f := newFixture(t)
	token, _, err := f.svc.IssueToken(context.Background(), f.commitment.NegotiationID, f.buyer)
	require.NoError(t, err)

	f.now = f.now.Add(24*time.Hour + time.Second)
	_, err = f.redeem(token, f.buyer)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeTokenExpired))

	_, _, err = f.svc.IssueToken(context.Background(), f.commitment.NegotiationID, f.buyer)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeTokenExpired))

	_, err = f.svc.Agreement(context.Background(), f.commitment.NegotiationID, f.buyer)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeTokenExpired))
}

func TestInvalidatedTokenIsRejected(t *testing.T) {
	f := newFixture(t)
	token, _, err := f.svc.IssueToken(context.Background(), f.commitment.NegotiationID, f.buyer)
	require.NoError(t, err)

	repo := NewRepository(f.conn)
	require.NoError(t, repo.InvalidateForCommitment(context.Background(), nil, f.commitment.ID, f.now))

	_, err = f.svc.Quote(context.Background(), token, f.buyer)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeTokenInvalid))
}

func TestAgreementView(t *testing.T) {
	f := newFixture(t)

	view, err := f.svc.Agreement(context.Background(), f.commitment.NegotiationID, f.buyer)
	require.NoError(t, err)
	assert.True(t, view.Available)
	require.NotNil(t, view.PurchaseToken)
	assert.Equal(t, f.commitment.ID, view.OrderID)
	assert.Equal(t, enums.CommitmentStatusPending, view.Status)

	admin := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
	staffView, err := f.svc.Agreement(context.Background(), f.commitment.NegotiationID, admin)
	require.NoError(t, err)
	assert.False(t, staffView.Available)
	assert.Nil(t, staffView.PurchaseToken)

	paidAt := f.now
	require.NoError(t, f.conn.Model(&models.Commitment{}).Where("id = ?", f.commitment.ID).
		Updates(map[string]any{"status": enums.CommitmentStatusPaid, "paid_at": paidAt}).Error)
	view, err = f.svc.Agreement(context.Background(), f.commitment.NegotiationID, f.buyer)
	require.NoError(t, err)
	assert.False(t, view.Available)
	assert.Equal(t, enums.CommitmentStatusPaid, view.Status)

	_, err = f.svc.Agreement(context.Background(), uuid.New(), f.buyer)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNoActiveAgreement))
}

func TestSignerRequiresSecret(t *testing.T) {
	_, err := NewSigner("short")
	require.Error(t, err)

	a, err := NewSigner("0123456789abcdef-one")
	require.NoError(t, err)
	b, err := NewSigner("0123456789abcdef-two")
	require.NoError(t, err)
	id := uuid.New()
	assert.Equal(t, a.Token(id), a.Token(id))
	assert.NotEqual(t, a.Token(id), b.Token(id))
}
