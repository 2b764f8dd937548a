// Package catalog manages the dependent store → product selection and the
// list of local models offered by the service.
package catalog

import (
	"context"
	"errors"
	"sync"

	"github.com/samber/lo"

	"github.com/bhtools/podbulk/internal/events"
	"github.com/bhtools/podbulk/internal/logging"
	"github.com/bhtools/podbulk/internal/models"
)

var (
	// ErrNoCredential is returned when a load needs the platform key and none is set.
	ErrNoCredential = errors.New("no validated platform API key")
	// ErrNoCatalog is returned when a template operation has no store selected.
	ErrNoCatalog = errors.New("no store selected")
	// ErrUnknownOption is returned when a selection is not in the loaded list.
	ErrUnknownOption = errors.New("selection is not in the loaded list")
)

// Source is the part of the service client the manager reads from.
type Source interface {
	ListStores(ctx context.Context, apiKey string) ([]models.Catalog, error)
	ListProducts(ctx context.Context, apiKey, storeID string) ([]models.TemplateItem, error)
	ProductDetails(ctx context.Context, apiKey, storeID, productID string) (*models.TemplateDetails, error)
	ListOllamaModels(ctx context.Context) ([]string, error)
}

// Selection is a snapshot of the current choices.
type Selection struct {
	CatalogID  string
	TemplateID string
	Model      string
}

// Manager holds the catalog and template lists and what is selected in
// them. Every load replaces its list and clears the dependent selection.
type Manager struct {
	src      Source
	eventBus *events.EventBus
	log      *logging.Logger

	mu          sync.RWMutex
	catalogs    []models.Catalog
	templates   []models.TemplateItem
	models      []string
	catalogID   string
	templateID  string
	model       string
	catalogErr  error
	templateErr error
	modelErr    error

	// platform key the store list was loaded with; empty until a load succeeds
	catalogKey string

	// bumped on every catalog or template reset so a load that finishes
	// after a newer reset does not repopulate its list
	catalogGen  uint64
	templateGen uint64
}

// NewManager creates an empty manager.
func NewManager(src Source, eventBus *events.EventBus, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Manager{
		src:      src,
		eventBus: eventBus,
		log:      logger.Component("catalog"),
	}
}

// OnCredentialValidated loads the store list with secret. An empty secret
// clears stores and products without a remote call.
func (m *Manager) OnCredentialValidated(ctx context.Context, secret string) error {
	m.mu.Lock()
	m.catalogGen++
	gen := m.catalogGen
	m.catalogs = nil
	m.catalogID = ""
	m.catalogErr = nil
	m.catalogKey = ""
	m.resetTemplatesLocked()
	m.mu.Unlock()

	m.publishTemplates()

	if secret == "" {
		m.log.Debug().Msg("platform key cleared, store list emptied")
		m.publishCatalogs()
		return ErrNoCredential
	}

	stores, err := m.src.ListStores(ctx, secret)

	m.mu.Lock()
	if gen != m.catalogGen {
		m.mu.Unlock()
		m.log.Debug().Msg("store list superseded, result dropped")
		return nil
	}
	if err != nil {
		m.catalogErr = err
	} else {
		m.catalogs = stores
		m.catalogKey = secret
	}
	m.mu.Unlock()

	if err != nil {
		m.log.Warn().Err(err).Msg("failed to load stores")
	} else {
		m.log.Info().Int("count", len(stores)).Msg("stores loaded")
	}
	m.publishCatalogs()
	return err
}

// OnCatalogSelected selects catalogID and loads its products with secret.
// The store list must have been loaded with the same secret and contain
// catalogID; otherwise the selection and the product list are cleared
// without a remote call.
func (m *Manager) OnCatalogSelected(ctx context.Context, catalogID, secret string) error {
	m.mu.Lock()
	var refused error
	switch {
	case catalogID == "":
		refused = ErrNoCatalog
	case secret == "" || secret != m.catalogKey:
		refused = ErrNoCredential
	case !lo.ContainsBy(m.catalogs, func(c models.Catalog) bool { return string(c.ID) == catalogID }):
		refused = ErrUnknownOption
	}
	m.catalogID = catalogID
	if refused != nil {
		m.catalogID = ""
	}
	m.resetTemplatesLocked()
	gen := m.templateGen
	m.mu.Unlock()

	m.publishCatalogs()

	if refused != nil {
		m.log.Debug().Str("store", catalogID).Err(refused).Msg("product list not loaded")
		m.publishTemplates()
		return refused
	}

	items, err := m.src.ListProducts(ctx, secret, catalogID)

	m.mu.Lock()
	if gen != m.templateGen {
		m.mu.Unlock()
		m.log.Debug().Str("store", catalogID).Msg("product list superseded, result dropped")
		return nil
	}
	if err != nil {
		m.templateErr = err
	} else {
		m.templates = items
	}
	m.mu.Unlock()

	if err != nil {
		m.log.Warn().Err(err).Str("store", catalogID).Msg("failed to load products")
	} else {
		m.log.Info().Str("store", catalogID).Int("count", len(items)).Msg("products loaded")
	}
	m.publishTemplates()
	return err
}

// SelectTemplate selects a product of the current store. When the product
// list is loaded, id must be one of its entries.
func (m *Manager) SelectTemplate(id string) error {
	m.mu.Lock()
	if m.catalogID == "" {
		m.mu.Unlock()
		return ErrNoCatalog
	}
	if id != "" && len(m.templates) > 0 && !lo.ContainsBy(m.templates, func(t models.TemplateItem) bool { return string(t.ID) == id }) {
		m.mu.Unlock()
		return ErrUnknownOption
	}
	m.templateID = id
	m.mu.Unlock()

	m.publishTemplates()
	return nil
}

// TemplateDetails fetches title, description and tags of the selected product.
func (m *Manager) TemplateDetails(ctx context.Context, secret string) (*models.TemplateDetails, error) {
	sel := m.Selection()
	if sel.CatalogID == "" {
		return nil, ErrNoCatalog
	}
	if sel.TemplateID == "" {
		return nil, errors.New("no product selected")
	}
	if secret == "" {
		return nil, ErrNoCredential
	}
	return m.src.ProductDetails(ctx, secret, sel.CatalogID, sel.TemplateID)
}

// LoadModels lists the service's local models and selects the first one.
func (m *Manager) LoadModels(ctx context.Context) ([]string, error) {
	names, err := m.src.ListOllamaModels(ctx)

	m.mu.Lock()
	m.models = names
	m.modelErr = err
	m.model = ""
	if len(names) > 0 {
		m.model = names[0]
	}
	m.mu.Unlock()

	if err != nil {
		m.log.Warn().Err(err).Msg("failed to list local models")
	} else {
		m.log.Debug().Strs("models", names).Msg("local models loaded")
	}
	m.publishModels()
	return names, err
}

// SelectModel selects a local model. When models are loaded, name must be
// one of them.
func (m *Manager) SelectModel(name string) error {
	m.mu.Lock()
	if len(m.models) > 0 && !lo.Contains(m.models, name) {
		m.mu.Unlock()
		return ErrUnknownOption
	}
	m.model = name
	m.mu.Unlock()

	m.publishModels()
	return nil
}

// Catalogs returns a copy of the loaded stores.
func (m *Manager) Catalogs() []models.Catalog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Catalog(nil), m.catalogs...)
}

// Templates returns a copy of the loaded products.
func (m *Manager) Templates() []models.TemplateItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.TemplateItem(nil), m.templates...)
}

// Models returns a copy of the loaded local models.
func (m *Manager) Models() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.models...)
}

// Selection returns the current choices.
func (m *Manager) Selection() Selection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Selection{CatalogID: m.catalogID, TemplateID: m.templateID, Model: m.model}
}

// Errors returns the errors of the latest store and product loads.
func (m *Manager) Errors() (catalogErr, templateErr error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.catalogErr, m.templateErr
}

func (m *Manager) resetTemplatesLocked() {
	m.templateGen++
	m.templates = nil
	m.templateID = ""
	m.templateErr = nil
}

func (m *Manager) publishCatalogs() {
	if m.eventBus == nil {
		return
	}
	m.mu.RLock()
	opts := lo.Map(m.catalogs, func(c models.Catalog, _ int) events.Option {
		return events.Option{Value: string(c.ID), Label: c.Name}
	})
	selected, err := m.catalogID, m.catalogErr
	m.mu.RUnlock()
	m.eventBus.PublishOptions(events.EventCatalogsChanged, opts, selected, err)
}

func (m *Manager) publishTemplates() {
	if m.eventBus == nil {
		return
	}
	m.mu.RLock()
	opts := lo.Map(m.templates, func(t models.TemplateItem, _ int) events.Option {
		return events.Option{Value: string(t.ID), Label: t.Title}
	})
	selected, err := m.templateID, m.templateErr
	m.mu.RUnlock()
	m.eventBus.PublishOptions(events.EventTemplatesChanged, opts, selected, err)
}

func (m *Manager) publishModels() {
	if m.eventBus == nil {
		return
	}
	m.mu.RLock()
	opts := lo.Map(m.models, func(n string, _ int) events.Option { return events.Option{Value: n, Label: n} })
	selected, err := m.model, m.modelErr
	m.mu.RUnlock()
	m.eventBus.PublishOptions(events.EventModelsChanged, opts, selected, err)
}
