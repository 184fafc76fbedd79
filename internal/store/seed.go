package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var embeddedSeed []byte

// Seed is the initial board written on first boot.
type Seed struct {
	Stages   []Stage
	Contacts []Contact
	Deals    []Deal
}

type seedFile struct {
	Stages []struct {
		ID       string `yaml:"id"`
		Name     string `yaml:"name"`
		Position int    `yaml:"position"`
	} `yaml:"stages"`
	Contacts []struct {
		ID     string `yaml:"id"`
		Name   string `yaml:"name"`
		Phone  string `yaml:"phone"`
		Type   string `yaml:"type"`
		Status string `yaml:"status"`
	} `yaml:"contacts"`
	Deals []struct {
		ID          string `yaml:"id"`
		ContactID   string `yaml:"contact_id"`
		Title       string `yaml:"title"`
		Value       string `yaml:"value"`
		StageID     string `yaml:"stage_id"`
		Description string `yaml:"description"`
	} `yaml:"deals"`
}

// LoadSeed reads the seed file at path, or the embedded default when path
// is empty.
func LoadSeed(path string) (Seed, error) {
	raw := embeddedSeed
	if strings.TrimSpace(path) != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return Seed{}, fmt.Errorf("read seed file: %w", err)
		}
		raw = contents
	}
	return ParseSeed(raw)
}

func ParseSeed(raw []byte) (Seed, error) {
	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Seed{}, fmt.Errorf("parse seed: %w", err)
	}

	var seed Seed
	stageIDs := make(map[string]struct{}, len(file.Stages))
	for _, item := range file.Stages {
		if item.ID == "" {
			return Seed{}, errors.New("parse seed: stage without id")
		}
		stageIDs[item.ID] = struct{}{}
		seed.Stages = append(seed.Stages, Stage{ID: item.ID, Name: item.Name, Position: item.Position})
	}
	for _, item := range file.Contacts {
		seed.Contacts = append(seed.Contacts, Contact{
			ID:     item.ID,
			Name:   item.Name,
			Phone:  item.Phone,
			Type:   item.Type,
			Status: item.Status,
		})
	}
	for _, item := range file.Deals {
		if _, ok := stageIDs[item.StageID]; !ok {
			return Seed{}, fmt.Errorf("parse seed: deal %s references unknown stage %q", item.ID, item.StageID)
		}
		value := decimal.Zero
		if item.Value != "" {
			parsed, err := decimal.NewFromString(item.Value)
			if err != nil {
				return Seed{}, fmt.Errorf("parse seed: deal %s value: %w", item.ID, err)
			}
			value = parsed
		}
		seed.Deals = append(seed.Deals, Deal{
			ID:          item.ID,
			ContactID:   item.ContactID,
			Title:       item.Title,
			Value:       value,
			StageID:     item.StageID,
			Description: item.Description,
		})
	}
	return seed, nil
}

// ApplySeed writes the seed when the board has no stages yet. It reports
// whether anything was written.
func (s *SQLStore) ApplySeed(ctx context.Context, seed Seed) (bool, error) {
	count, err := s.CountStages(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	for _, stage := range seed.Stages {
		if err := s.InsertStage(ctx, stage); err != nil {
			return false, fmt.Errorf("seed stage %s: %w", stage.ID, err)
		}
	}
	for _, contact := range seed.Contacts {
		if err := s.InsertContact(ctx, contact); err != nil && !errors.Is(err, ErrConflict) {
			return false, fmt.Errorf("seed contact %s: %w", contact.ID, err)
		}
	}
	for _, deal := range seed.Deals {
		if err := s.InsertDeal(ctx, deal); err != nil && !errors.Is(err, ErrConflict) {
			return false, fmt.Errorf("seed deal %s: %w", deal.ID, err)
		}
	}
	return true, nil
}
