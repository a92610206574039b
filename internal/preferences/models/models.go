// Package models defines the per-user preferences document and its categories.
package models

import "time"

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeAuto  Theme = "auto"
)

// Themes lists the accepted theme values in display order.
var Themes = []Theme{ThemeLight, ThemeDark, ThemeAuto}

func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark || t == ThemeAuto
}

type Language string

const (
	LanguageFrench  Language = "fr"
	LanguageEnglish Language = "en"
	LanguageSpanish Language = "es"
)

func (l Language) Valid() bool {
	return l == LanguageFrench || l == LanguageEnglish || l == LanguageSpanish
}

type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
	CurrencyJPY Currency = "JPY"
)

func (c Currency) Valid() bool {
	switch c {
	case CurrencyEUR, CurrencyUSD, CurrencyGBP, CurrencyJPY:
		return true
	}
	return false
}

type DateFormat string

const (
	DateFormatDMY DateFormat = "DD/MM/YYYY"
	DateFormatMDY DateFormat = "MM/DD/YYYY"
	DateFormatISO DateFormat = "YYYY-MM-DD"
)

func (d DateFormat) Valid() bool {
	return d == DateFormatDMY || d == DateFormatMDY || d == DateFormatISO
}

type BackupFrequency string

const (
	BackupDaily   BackupFrequency = "daily"
	BackupWeekly  BackupFrequency = "weekly"
	BackupMonthly BackupFrequency = "monthly"
)

func (f BackupFrequency) Valid() bool {
	return f == BackupDaily || f == BackupWeekly || f == BackupMonthly
}

// Interval is the minimum time between two automatic backups.
func (f BackupFrequency) Interval() time.Duration {
	switch f {
	case BackupDaily:
		return 24 * time.Hour
	case BackupMonthly:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

type Appearance struct {
	Theme      Theme      `json:"theme"`
	Language   Language   `json:"language"`
	Currency   Currency   `json:"currency"`
	DateFormat DateFormat `json:"dateFormat"`
}

type Notifications struct {
	Email bool `json:"email"`
	Push  bool `json:"push"`
}

type Security struct {
	LoginNotifications bool `json:"loginNotifications"`
}

type Data struct {
	AutoBackup      bool            `json:"autoBackup"`
	BackupFrequency BackupFrequency `json:"backupFrequency"`
}

// Document holds the four categories. It is what gets persisted and sent to clients.
type Document struct {
	Appearance    Appearance    `json:"appearance"`
	Notifications Notifications `json:"notifications"`
	Security      Security      `json:"security"`
	Data          Data          `json:"data"`
}

// DefaultDocument returns the preferences every new user starts with.
func DefaultDocument() Document {
	return Document{
		Appearance: Appearance{
			Theme:      ThemeLight,
			Language:   LanguageFrench,
			Currency:   CurrencyEUR,
			DateFormat: DateFormatDMY,
		},
		Data: Data{
			AutoBackup:      false,
			BackupFrequency: BackupWeekly,
		},
	}
}

// UserPreferences is the stored record, one per user.
type UserPreferences struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	Document     Document   `json:"document"`
	LastBackupAt *time.Time `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// NewUserPreferences builds an unsaved record holding the defaults.
func NewUserPreferences(userID string) *UserPreferences {
	return &UserPreferences{
		UserID:   userID,
		Document: DefaultDocument(),
	}
}

// Clone returns a copy that shares no memory with p.
func (p *UserPreferences) Clone() *UserPreferences {
	if p == nil {
		return nil
	}
	out := *p
	if p.LastBackupAt != nil {
		t := *p.LastBackupAt
		out.LastBackupAt = &t
	}
	return &out
}

// BackupDue reports whether an automatic backup should run at now.
func (p *UserPreferences) BackupDue(now time.Time) bool {
	if !p.Document.Data.AutoBackup {
		return false
	}
	if p.LastBackupAt == nil {
		return true
	}
	return !now.Before(p.LastBackupAt.Add(p.Document.Data.BackupFrequency.Interval()))
}
