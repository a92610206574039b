package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/mybudgetplus/mybudget/internal/common/errors"
)

// Category names one of the four preference groups.
type Category string

const (
	CategoryAppearance    Category = "appearance"
	CategoryNotifications Category = "notifications"
	CategorySecurity      Category = "security"
	CategoryData          Category = "data"
)

// Categories lists every category in document order.
var Categories = []Category{CategoryAppearance, CategoryNotifications, CategorySecurity, CategoryData}

// ParseCategory maps a wire name to its Category. ok is false for unknown names.
func ParseCategory(name string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

// Patch is a partial update of exactly one category. Nil fields are left untouched.
type Patch interface {
	Category() Category
	Validate() error
	Apply(doc *Document)
}

type AppearancePatch struct {
	Theme      *Theme      `json:"theme,omitempty"`
	Language   *Language   `json:"language,omitempty"`
	Currency   *Currency   `json:"currency,omitempty"`
	DateFormat *DateFormat `json:"dateFormat,omitempty"`
}

type NotificationsPatch struct {
	Email *bool `json:"email,omitempty"`
	Push  *bool `json:"push,omitempty"`
}

type SecurityPatch struct {
	LoginNotifications *bool `json:"loginNotifications,omitempty"`
}

type DataPatch struct {
	AutoBackup      *bool            `json:"autoBackup,omitempty"`
	BackupFrequency *BackupFrequency `json:"backupFrequency,omitempty"`
}

func (AppearancePatch) Category() Category    { return CategoryAppearance }
func (NotificationsPatch) Category() Category { return CategoryNotifications }
func (SecurityPatch) Category() Category      { return CategorySecurity }
func (DataPatch) Category() Category          { return CategoryData }

func (p AppearancePatch) Validate() error {
	if p.Theme != nil && !p.Theme.Valid() {
		return apperrors.ValidationError("appearance.theme", "must be one of light, dark, auto")
	}
	if p.Language != nil && !p.Language.Valid() {
		return apperrors.ValidationError("appearance.language", "must be one of fr, en, es")
	}
	if p.Currency != nil && !p.Currency.Valid() {
		return apperrors.ValidationError("appearance.currency", "must be one of EUR, USD, GBP, JPY")
	}
	if p.DateFormat != nil && !p.DateFormat.Valid() {
		return apperrors.ValidationError("appearance.dateFormat", "must be one of DD/MM/YYYY, MM/DD/YYYY, YYYY-MM-DD")
	}
	return nil
}

func (NotificationsPatch) Validate() error { return nil }

func (SecurityPatch) Validate() error { return nil }

func (p DataPatch) Validate() error {
	if p.BackupFrequency != nil && !p.BackupFrequency.Valid() {
		return apperrors.ValidationError("data.backupFrequency", "must be one of daily, weekly, monthly")
	}
	return nil
}

func (p AppearancePatch) Apply(doc *Document) { doc.Appearance = MergeAppearance(doc.Appearance, p) }

func (p NotificationsPatch) Apply(doc *Document) {
	doc.Notifications = MergeNotifications(doc.Notifications, p)
}

func (p SecurityPatch) Apply(doc *Document) { doc.Security = MergeSecurity(doc.Security, p) }

func (p DataPatch) Apply(doc *Document) { doc.Data = MergeData(doc.Data, p) }

// MergeAppearance returns current with every field set in p overwritten.
func MergeAppearance(current Appearance, p AppearancePatch) Appearance {
	if p.Theme != nil {
		current.Theme = *p.Theme
	}
	if p.Language != nil {
		current.Language = *p.Language
	}
	if p.Currency != nil {
		current.Currency = *p.Currency
	}
	if p.DateFormat != nil {
		current.DateFormat = *p.DateFormat
	}
	return current
}

func MergeNotifications(current Notifications, p NotificationsPatch) Notifications {
	if p.Email != nil {
		current.Email = *p.Email
	}
	if p.Push != nil {
		current.Push = *p.Push
	}
	return current
}

func MergeSecurity(current Security, p SecurityPatch) Security {
	if p.LoginNotifications != nil {
		current.LoginNotifications = *p.LoginNotifications
	}
	return current
}

func MergeData(current Data, p DataPatch) Data {
	if p.AutoBackup != nil {
		current.AutoBackup = *p.AutoBackup
	}
	if p.BackupFrequency != nil {
		current.BackupFrequency = *p.BackupFrequency
	}
	return current
}

// DecodePatch decodes the partial fields of one category.
// An unknown category yields ok=false and no error. Unknown fields and invalid
// values inside a known category are validation errors.
func DecodePatch(category string, raw json.RawMessage) (patch Patch, ok bool, err error) {
	c, known := ParseCategory(category)
	if !known {
		return nil, false, nil
	}

	switch c {
	case CategoryAppearance:
		var p AppearancePatch
		err = decodeStrict(category, raw, &p)
		patch = p
	case CategoryNotifications:
		var p NotificationsPatch
		err = decodeStrict(category, raw, &p)
		patch = p
	case CategorySecurity:
		var p SecurityPatch
		err = decodeStrict(category, raw, &p)
		patch = p
	case CategoryData:
		var p DataPatch
		err = decodeStrict(category, raw, &p)
		patch = p
	}
	if err != nil {
		return nil, true, err
	}
	if err := patch.Validate(); err != nil {
		return nil, true, err
	}
	return patch, true, nil
}

func decodeStrict(category string, raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.ValidationError(category, describeDecodeError(err))
	}
	return nil
}

func describeDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	msg := err.Error()
	switch {
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return fmt.Sprintf("field %q has the wrong type", typeErr.Field)
	case strings.HasPrefix(msg, "json: unknown field "):
		return "unknown field " + strings.TrimPrefix(msg, "json: unknown field ")
	default:
		return "must be an object"
	}
}
