package services

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"clinic_flow_app_go/models"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var validate = validator.New()

// instruction fields are rendered on patient-facing pages; strip markup
var settingsSanitizer = bluemonday.UGCPolicy()

// LIFF page modes
var LiffModes = []string{"home", "book", "query", "settings", "notifications"}

// liffTokenRetries bounds regeneration attempts on uniqueness collisions
const liffTokenRetries = 10

// GetClinicSettings loads and normalizes a clinic's settings document.
// Stored values are layered over the defaults so partially-written
// documents always read complete, and the legacy booking-restriction
// mode is migrated on read.
func GetClinicSettings(db *gorm.DB, clinicID string) (*models.ClinicSettings, error) {
	var clinic models.Clinic
	if err := db.First(&clinic, "id = ?", clinicID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeSettings(clinic.Settings)
}

func decodeSettings(stored string) (*models.ClinicSettings, error) {
	base := settingsToMap(models.DefaultClinicSettings())

	if strings.TrimSpace(stored) != "" {
		var overlay map[string]interface{}
		if err := json.Unmarshal([]byte(stored), &overlay); err != nil {
			return nil, fmt.Errorf("corrupt settings document: %w", err)
		}
		deepMerge(base, overlay)
	}

	settings, err := mapToSettings(base)
	if err != nil {
		return nil, err
	}
	settings.MigrateLegacyBookingRestriction()
	return settings, nil
}

// UpdateClinicSettings applies a partial deep-merge update: only keys
// present in the payload overwrite; unknown keys are rejected; the
// merged document is validated before persisting. The clinic row is
// locked for the duration of the write.
func UpdateClinicSettings(db *gorm.DB, clinicID string, payload []byte) (*models.ClinicSettings, error) {
	if err := rejectUnknownKeys(payload); err != nil {
		return nil, err
	}

	var incoming map[string]interface{}
	if err := json.Unmarshal(payload, &incoming); err != nil {
		return nil, NewValidationError("無法解析設定內容")
	}

	var updated *models.ClinicSettings
	err := db.Transaction(func(tx *gorm.DB) error {
		var clinic models.Clinic
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&clinic, "id = ?", clinicID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		current, err := decodeSettings(clinic.Settings)
		if err != nil {
			return err
		}

		merged := settingsToMap(*current)
		deepMerge(merged, incoming)

		settings, err := mapToSettings(merged)
		if err != nil {
			return err
		}
		settings.MigrateLegacyBookingRestriction()
		sanitizeClinicInfo(&settings.ClinicInfoSettings)

		if err := validate.Struct(settings); err != nil {
			return NewValidationError(fmt.Sprintf("設定內容不合法: %v", err))
		}

		raw, err := json.Marshal(settings)
		if err != nil {
			return err
		}
		if err := tx.Model(&clinic).Update("settings", string(raw)).Error; err != nil {
			return err
		}
		updated = settings
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// rejectUnknownKeys strict-decodes the payload against the settings
// schema so unknown keys at any depth fail fast.
func rejectUnknownKeys(payload []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(payload)))
	dec.DisallowUnknownFields()
	var probe models.ClinicSettings
	if err := dec.Decode(&probe); err != nil {
		return NewValidationError(fmt.Sprintf("設定內容不合法: %v", err))
	}
	return nil
}

// deepMerge overwrites dst keys with src keys, recursing into nested
// objects so untouched siblings survive.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}

func settingsToMap(s models.ClinicSettings) map[string]interface{} {
	raw, _ := json.Marshal(s)
	var m map[string]interface{}
	_ = json.Unmarshal(raw, &m)
	return m
}

func mapToSettings(m map[string]interface{}) (*models.ClinicSettings, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var s models.ClinicSettings
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, NewValidationError("無法解析設定內容")
	}
	return &s, nil
}

func sanitizeClinicInfo(info *models.ClinicInfoSettings) {
	info.AppointmentTypeInstructions = settingsSanitizer.Sanitize(info.AppointmentTypeInstructions)
	info.AppointmentNotesInstructions = settingsSanitizer.Sanitize(info.AppointmentNotesInstructions)
	info.QueryPageInstructions = settingsSanitizer.Sanitize(info.QueryPageInstructions)
	info.SettingsPageInstructions = settingsSanitizer.Sanitize(info.SettingsPageInstructions)
	info.NotificationsPageInstructions = settingsSanitizer.Sanitize(info.NotificationsPageInstructions)
}

// BuildLiffURLs renders the tokenized patient-facing deep links
func BuildLiffURLs(frontendURL string, clinic *models.Clinic) map[string]string {
	urls := make(map[string]string, len(LiffModes))
	if clinic.LiffAccessToken == nil {
		return urls
	}
	for _, mode := range LiffModes {
		urls[mode] = fmt.Sprintf("%s/liff/%s?token=%s", frontendURL, mode, *clinic.LiffAccessToken)
	}
	return urls
}

// BuildRescheduleLiffURL renders the reschedule deep link for one appointment
func BuildRescheduleLiffURL(frontendURL string, clinic *models.Clinic, appointmentID string) string {
	if clinic.LiffAccessToken == nil {
		return ""
	}
	return fmt.Sprintf("%s/liff/reschedule?token=%s&appointmentId=%s", frontendURL, *clinic.LiffAccessToken, appointmentID)
}

// NewLiffToken generates a URL-safe random token (~43 chars)
func NewLiffToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// RegenerateLiffToken replaces a clinic's token under a row lock,
// retrying on the cross-clinic uniqueness constraint.
func RegenerateLiffToken(db *gorm.DB, clinicID string) (string, error) {
	var token string
	err := db.Transaction(func(tx *gorm.DB) error {
		var clinic models.Clinic
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&clinic, "id = ?", clinicID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		for attempt := 0; attempt < liffTokenRetries; attempt++ {
			candidate, err := NewLiffToken()
			if err != nil {
				return err
			}
			var count int64
			if err := tx.Model(&models.Clinic{}).
				Where("liff_access_token = ?", candidate).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			if err := tx.Model(&clinic).Update("liff_access_token", candidate).Error; err != nil {
				return err
			}
			token = candidate
			return nil
		}
		return fmt.Errorf("failed to generate a unique LIFF token after %d attempts", liffTokenRetries)
	})
	if err != nil {
		return "", err
	}
	return token, nil
}
