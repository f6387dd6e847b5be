package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/facetcraft/nyp-backend/pkg/db/models"
	pkgerrors "github.com/facetcraft/nyp-backend/pkg/errors"
)

// PreferenceRepository stores buyer opt-ins for negotiation texts.
type PreferenceRepository interface {
	// Find returns nil, nil when the user never saved preferences.
	Find(ctx context.Context, userID uuid.UUID) (*models.NotificationPreference, error)
	Upsert(ctx context.Context, pref models.NotificationPreference) error
}

type preferenceRepository struct {
	db *gorm.DB
}

func NewPreferenceRepository(db *gorm.DB) PreferenceRepository {
	return &preferenceRepository{db: db}
}

func (r *preferenceRepository) Find(ctx context.Context, userID uuid.UUID) (*models.NotificationPreference, error) {
	var pref models.NotificationPreference
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

func (r *preferenceRepository) Upsert(ctx context.Context, pref models.NotificationPreference) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"sms_negotiations_enabled", "phone_e164", "updated_at"}),
		}).
		Create(&pref).Error
}

// Preferences is the buyer-facing view of their notification settings.
type Preferences struct {
	SMSNegotiationsEnabled bool    `json:"sms_negotiations_enabled"`
	PhoneE164              *string `json:"phone_e164"`
}

// PreferencesUpdate changes only the fields that are set. An empty phone
// clears the stored number.
type PreferencesUpdate struct {
	SMSNegotiationsEnabled *bool
	PhoneE164              *string
}

type PreferenceService interface {
	Get(ctx context.Context, userID uuid.UUID) (Preferences, error)
	Update(ctx context.Context, userID uuid.UUID, update PreferencesUpdate) (Preferences, error)
}

type preferenceService struct {
	repo  PreferenceRepository
	clock func() time.Time
}

func NewPreferenceService(repo PreferenceRepository, clock func() time.Time) (PreferenceService, error) {
	if repo == nil {
		return nil, fmt.Errorf("preference repository required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &preferenceService{repo: repo, clock: clock}, nil
}

func (s *preferenceService) Get(ctx context.Context, userID uuid.UUID) (Preferences, error) {
	if userID == uuid.Nil {
		return Preferences{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	pref, err := s.repo.Find(ctx, userID)
	if err != nil {
		return Preferences{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load notification preferences")
	}
	return preferencesFrom(pref), nil
}

func (s *preferenceService) Update(ctx context.Context, userID uuid.UUID, update PreferencesUpdate) (Preferences, error) {
	if userID == uuid.Nil {
		return Preferences{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if update.SMSNegotiationsEnabled == nil && update.PhoneE164 == nil {
		return Preferences{}, pkgerrors.New(pkgerrors.CodeValidation, "no preference updates provided")
	}

	current, err := s.repo.Find(ctx, userID)
	if err != nil {
		return Preferences{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load notification preferences")
	}
	next := models.NotificationPreference{UserID: userID}
	if current != nil {
		next = *current
	}
	if update.SMSNegotiationsEnabled != nil {
		next.SMSNegotiationsEnabled = *update.SMSNegotiationsEnabled
	}
	if update.PhoneE164 != nil {
		phone := strings.TrimSpace(*update.PhoneE164)
		if phone == "" {
			next.PhoneE164 = nil
		} else {
			next.PhoneE164 = &phone
		}
	}
	next.UpdatedAt = s.clock().UTC()

	if err := s.repo.Upsert(ctx, next); err != nil {
		return Preferences{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save notification preferences")
	}
	return preferencesFrom(&next), nil
}

func preferencesFrom(pref *models.NotificationPreference) Preferences {
	if pref == nil {
		return Preferences{}
	}
	return Preferences{SMSNegotiationsEnabled: pref.SMSNegotiationsEnabled, PhoneE164: pref.PhoneE164}
}

// deliverable reports the phone a notification may go to, or why it may not.
func deliverable(pref *models.NotificationPreference) (string, string) {
	switch {
	case pref == nil || !pref.SMSNegotiationsEnabled:
		return "", "not_opted_in"
	case pref.PhoneE164 == nil || strings.TrimSpace(*pref.PhoneE164) == "":
		return "", "no_phone"
	}
	return *pref.PhoneE164, ""
}
