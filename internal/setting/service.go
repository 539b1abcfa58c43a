package setting

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/setting/entity"
)

// SiteID is the id of the singleton site settings row.
const SiteID = "site"

// Store is what Service needs from the settings repository.
type Store interface {
	FindOrCreate(ctx context.Context, s *entity.Setting) (*entity.Setting, error)
	Save(ctx context.Context, s *entity.Setting) error
}

// Service encapsulates business logic for settings and depends on a repo.
type Service struct {
	repo Store
}

// NewService constructs a Service with the provided repository.
func NewService(r Store) *Service {
	return &Service{repo: r}
}

// View is the site settings document as served to clients.
type View struct {
	ID string `json:"_id"`
	entity.Site
}

// SitePatch holds the fields PATCH /api/settings may change.
type SitePatch struct {
	DeleteConfirmation *bool `json:"deleteConfirmation"`
}

func (s *Service) load(ctx context.Context) (*entity.Setting, entity.Site, error) {
	defaults, err := json.Marshal(entity.Site{})
	if err != nil {
		return nil, entity.Site{}, err
	}
	row, err := s.repo.FindOrCreate(ctx, entity.NewSetting(SiteID, "site", defaults))
	if err != nil {
		return nil, entity.Site{}, fmt.Errorf("load settings: %w", err)
	}
	var site entity.Site
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &site); err != nil {
			return nil, entity.Site{}, fmt.Errorf("decode settings: %w", err)
		}
	}
	return row, site, nil
}

// Site returns the settings document, creating it with defaults on first use.
func (s *Service) Site(ctx context.Context) (View, error) {
	_, site, err := s.load(ctx)
	if err != nil {
		return View{}, err
	}
	return View{ID: SiteID, Site: site}, nil
}

// UpdateSite applies the fields present in p.
func (s *Service) UpdateSite(ctx context.Context, p SitePatch) (View, error) {
	row, site, err := s.load(ctx)
	if err != nil {
		return View{}, err
	}
	if p.DeleteConfirmation != nil {
		site.DeleteConfirmation = *p.DeleteConfirmation
	}
	meta, err := json.Marshal(site)
	if err != nil {
		return View{}, err
	}
	row.Metadata = meta
	if len(row.RecordMeta) == 0 {
		row.RecordMeta = json.RawMessage("{}")
	}
	if err := s.repo.Save(ctx, row); err != nil {
		return View{}, fmt.Errorf("save settings: %w", err)
	}
	return View{ID: SiteID, Site: site}, nil
}
