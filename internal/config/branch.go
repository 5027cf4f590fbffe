package config

import (
	"fmt"
	"os"
	"time"

	"qsmart/booking-service/internal/calendar"
	"qsmart/booking-service/internal/catalog"
	"qsmart/booking-service/internal/ledger"
	"qsmart/booking-service/internal/models"
	"qsmart/booking-service/internal/queue"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Branch describes the one branch this process serves.
type Branch struct {
	Name               string           `yaml:"name" validate:"required"`
	TimeZone           string           `yaml:"time_zone" validate:"required"`
	MinutesPerCustomer int              `yaml:"minutes_per_customer" validate:"gte=1,lte=240"`
	Slots              []string         `yaml:"slots" validate:"required,min=1,dive,required"`
	Services           []models.Service `yaml:"services" validate:"required,min=1,dive"`
}

func DefaultBranch() Branch {
	services := make([]models.Service, len(catalog.DefaultServices))
	copy(services, catalog.DefaultServices)
	slots := make([]string, len(calendar.DefaultTimes))
	copy(slots, calendar.DefaultTimes)
	return Branch{
		Name:               ledger.DefaultBranch,
		TimeZone:           calendar.DefaultZone,
		MinutesPerCustomer: queue.DefaultMinutesPerCustomer,
		Slots:              slots,
		Services:           services,
	}
}

// LoadBranch reads a YAML branch file. Keys left out keep their defaults.
func LoadBranch(path string) (Branch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Branch{}, fmt.Errorf("read branch config: %w", err)
	}
	branch := DefaultBranch()
	fileBranch := Branch{}
	if err := yaml.Unmarshal(data, &fileBranch); err != nil {
		return Branch{}, fmt.Errorf("parse branch config: %w", err)
	}
	if fileBranch.Name != "" {
		branch.Name = fileBranch.Name
	}
	if fileBranch.TimeZone != "" {
		branch.TimeZone = fileBranch.TimeZone
	}
	if fileBranch.MinutesPerCustomer != 0 {
		branch.MinutesPerCustomer = fileBranch.MinutesPerCustomer
	}
	if len(fileBranch.Slots) > 0 {
		branch.Slots = fileBranch.Slots
	}
	if len(fileBranch.Services) > 0 {
		branch.Services = fileBranch.Services
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(branch); err != nil {
		return Branch{}, fmt.Errorf("branch config validation failed: %w", err)
	}
	return branch, nil
}

// Build turns the branch description into the ledger's collaborators.
func (b Branch) Build() (*calendar.Calendar, *catalog.Catalog, *time.Location, error) {
	cal, err := calendar.New(b.Slots)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("branch slots: %w", err)
	}
	cat, err := catalog.New(b.Services)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("branch services: %w", err)
	}
	loc, err := calendar.LoadZone(b.TimeZone)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("branch time zone: %w", err)
	}
	return cal, cat, loc, nil
}
