// Package file provides context providers backed by per-user JSON documents.
//
// Layout: {root}/{user_id}/calendar.json, wellness.json, financial.json and
// pursuits.json. A missing document means the integration is not connected.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/agendaflow/pkg/models"
	"github.com/dukex/agendaflow/pkg/providers"
)

const (
	calendarFile  = "calendar.json"
	wellnessFile  = "wellness.json"
	financialFile = "financial.json"
	pursuitsFile  = "pursuits.json"
)

// Provider implements every context provider contract from one directory tree.
type Provider struct {
	root string
}

// NewProvider creates a provider rooted at the given directory.
func NewProvider(root string) *Provider {
	return &Provider{root: strings.Replace(root, "file://", "", 1)}
}

// Set exposes the provider under every contract.
func (p *Provider) Set() providers.Set {
	return providers.Set{Calendar: p, Wellness: p, Financial: p, Pursuits: p}
}

func validateUserID(userID string) error {
	if userID == "" {
		return errors.New("user ID cannot be empty")
	}

	if strings.Contains(userID, "..") || strings.ContainsAny(userID, `/\`) {
		return errors.New("user ID contains invalid characters")
	}

	return nil
}

// read decodes the document into target. It reports false when the document does
// not exist.
func (p *Provider) read(userID, name string, target any) (bool, error) {
	if err := validateUserID(userID); err != nil {
		return false, err
	}

	data, err := os.ReadFile(filepath.Join(p.root, userID, name)) // #nosec G304 -- user ID is validated
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s for user %s: %w", name, userID, err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("failed to decode %s for user %s: %w", name, userID, err)
	}

	return true, nil
}

// CalendarContext returns the events and busy slots that intersect the window.
func (p *Provider) CalendarContext(_ context.Context, userID string, window models.TimeRange) (*models.CalendarContext, error) {
	var calendar models.CalendarContext

	found, err := p.read(userID, calendarFile, &calendar)
	if err != nil || !found {
		return nil, err
	}

	filtered := &models.CalendarContext{
		Events:    []models.CalendarEvent{},
		BusySlots: []models.TimeRange{},
	}

	for _, event := range calendar.Events {
		if window.Overlaps(models.TimeRange{Start: event.Start, End: event.End}) {
			filtered.Events = append(filtered.Events, event)
		}
	}

	for _, slot := range calendar.BusySlots {
		if window.Overlaps(slot) {
			filtered.BusySlots = append(filtered.BusySlots, slot)
		}
	}

	return filtered, nil
}

func (p *Provider) WellnessContext(_ context.Context, userID string) (*models.WellnessContext, error) {
	var wellness models.WellnessContext

	found, err := p.read(userID, wellnessFile, &wellness)
	if err != nil || !found {
		return nil, err
	}

	return &wellness, nil
}

func (p *Provider) FinancialContext(_ context.Context, userID string) (*models.FinancialContext, error) {
	var financial models.FinancialContext

	found, err := p.read(userID, financialFile, &financial)
	if err != nil || !found {
		return nil, err
	}

	return &financial, nil
}

func (p *Provider) Pursuits(_ context.Context, userID string, _ string) ([]models.Pursuit, error) {
	var pursuits []models.Pursuit

	found, err := p.read(userID, pursuitsFile, &pursuits)
	if err != nil || !found {
		return nil, err
	}

	return pursuits, nil
}
