package service

import (
	"context"
	"strconv"

	"github.com/dafibh/cooplend/cooplend-backend/internal/config"
	"github.com/dafibh/cooplend/cooplend-backend/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// SettingsProvider resolves the lending policy in effect for a call
type SettingsProvider interface {
	Lending(ctx context.Context) (domain.LendingSettings, error)
}

// StaticSettings is a SettingsProvider that always returns the same values
type StaticSettings domain.LendingSettings

// Lending implements SettingsProvider
func (s StaticSettings) Lending(ctx context.Context) (domain.LendingSettings, error) {
	return domain.LendingSettings(s), nil
}

// SettingsService reads admin-maintained lending settings, falling back to
// configured defaults for keys that are missing or malformed
type SettingsService struct {
	repo     domain.SettingsRepository
	defaults domain.LendingSettings
}

// NewSettingsService creates a new SettingsService
func NewSettingsService(repo domain.SettingsRepository, defaults config.LendingConfig) *SettingsService {
	return &SettingsService{
		repo: repo,
		defaults: domain.LendingSettings{
			InterestRate:       defaults.InterestRate,
			MinPrincipal:       defaults.MinPrincipal,
			MaxPrincipal:       defaults.MaxPrincipal,
			AllowedTerms:       defaults.AllowedTerms,
			ProgressMultiplier: defaults.ProgressMultiplier,
		},
	}
}

// Lending implements SettingsProvider
func (s *SettingsService) Lending(ctx context.Context) (domain.LendingSettings, error) {
	raw, err := s.repo.GetAll(ctx)
	if err != nil {
		return domain.LendingSettings{}, err
	}

	settings := s.defaults
	if v, ok := raw[domain.SettingInterestRate]; ok {
		if rate, err := decimal.NewFromString(v); err == nil && domain.ValidateRate(rate) == nil {
			settings.InterestRate = rate
		} else {
			logIgnoredSetting(domain.SettingInterestRate, v)
		}
	}
	if v, ok := raw[domain.SettingMinPrincipal]; ok {
		if minP, err := decimal.NewFromString(v); err == nil && domain.ValidateAmount(domain.SettingMinPrincipal, minP) == nil {
			settings.MinPrincipal = minP
		} else {
			logIgnoredSetting(domain.SettingMinPrincipal, v)
		}
	}
	if v, ok := raw[domain.SettingMaxPrincipal]; ok {
		if maxP, err := decimal.NewFromString(v); err == nil && domain.ValidateAmount(domain.SettingMaxPrincipal, maxP) == nil {
			settings.MaxPrincipal = maxP
		} else {
			logIgnoredSetting(domain.SettingMaxPrincipal, v)
		}
	}
	if v, ok := raw[domain.SettingAllowedTerms]; ok {
		if terms, err := config.ParseTerms(v); err == nil {
			settings.AllowedTerms = terms
		} else {
			logIgnoredSetting(domain.SettingAllowedTerms, v)
		}
	}
	if v, ok := raw[domain.SettingProgressMultiplier]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			settings.ProgressMultiplier = int32(n)
		} else {
			logIgnoredSetting(domain.SettingProgressMultiplier, v)
		}
	}

	if settings.MaxPrincipal.LessThan(settings.MinPrincipal) {
		log.Warn().
			Str("min", settings.MinPrincipal.String()).
			Str("max", settings.MaxPrincipal.String()).
			Msg("Principal bounds from settings are inverted, using defaults")
		settings.MinPrincipal = s.defaults.MinPrincipal
		settings.MaxPrincipal = s.defaults.MaxPrincipal
	}

	return settings, nil
}

func logIgnoredSetting(key, value string) {
	log.Warn().Str("key", key).Str("value", value).Msg("Ignoring malformed setting")
}
