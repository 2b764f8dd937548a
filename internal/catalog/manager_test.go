package catalog

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhtools/podbulk/internal/api"
	"github.com/bhtools/podbulk/internal/apitest"
	"github.com/bhtools/podbulk/internal/config"
	"github.com/bhtools/podbulk/internal/events"
	"github.com/bhtools/podbulk/internal/models"
)

func newManager(t *testing.T) (*apitest.Server, *Manager, *events.EventBus) {
	t.Helper()
	srv := apitest.New(t)
	cfg := config.Default()
	cfg.APIURL = srv.URL
	cfg.HTTP.RequestsPerSecond = 0
	client, err := api.NewClient(cfg, nil)
	require.NoError(t, err)

	bus := events.NewEventBus(64)
	t.Cleanup(bus.Close)
	return srv, NewManager(client, bus, nil), bus
}

func seed(srv *apitest.Server) {
	srv.AddPlatformKey("pk")
	srv.SetStores(models.Catalog{ID: "1", Name: "Main"}, models.Catalog{ID: "2", Name: "Outlet"})
	srv.SetProducts("1", models.TemplateItem{ID: "p1", Title: "Tee"}, models.TemplateItem{ID: "p2", Title: "Mug"})
	srv.SetProducts("2", models.TemplateItem{ID: "p9", Title: "Hoodie"})
}

func TestNoFetchWithoutCredential(t *testing.T) {
	srv, m, _ := newManager(t)
	seed(srv)

	err := m.OnCredentialValidated(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.Empty(t, m.Catalogs())
	assert.Equal(t, 0, srv.TotalCalls())
}

func TestNoTemplateFetchWithoutCatalog(t *testing.T) {
	srv, m, _ := newManager(t)
	seed(srv)

	err := m.OnCatalogSelected(context.Background(), "", "pk")
	assert.ErrorIs(t, err, ErrNoCatalog)
	assert.Empty(t, m.Templates())
	assert.Equal(t, 0, srv.Calls("/api/products"))

	err = m.OnCatalogSelected(context.Background(), "1", "")
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.Equal(t, 0, srv.Calls("/api/products"))
}

func TestProductsNeedLoadedStore(t *testing.T) {
	srv, m, _ := newManager(t)
	seed(srv)
	ctx := context.Background()

	// nothing loaded yet: the key was never used for a store list
	err := m.OnCatalogSelected(ctx, "ghost-store", "not-validated-key")
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.Equal(t, Selection{}, m.Selection())

	require.NoError(t, m.OnCredentialValidated(ctx, "pk"))

	err = m.OnCatalogSelected(ctx, "ghost-store", "pk")
	assert.ErrorIs(t, err, ErrUnknownOption)
	assert.Empty(t, m.Selection().CatalogID)

	err = m.OnCatalogSelected(ctx, "1", "other-key")
	assert.ErrorIs(t, err, ErrNoCredential)

	assert.Equal(t, 0, srv.Calls("/api/products"))
	assert.Empty(t, m.Templates())

	// a failed store reload forgets the key
	require.Error(t, m.OnCredentialValidated(ctx, "wrong"))
	assert.ErrorIs(t, m.OnCatalogSelected(ctx, "1", "pk"), ErrNoCredential)
	assert.Equal(t, 0, srv.Calls("/api/products"))
}

func TestLoadsReplaceListsAndClearDependents(t *testing.T) {
	srv, m, bus := newManager(t)
	seed(srv)
	changes := bus.Subscribe(events.EventTemplatesChanged)
	ctx := context.Background()

	require.NoError(t, m.OnCredentialValidated(ctx, "pk"))
	want := []models.Catalog{{ID: "1", Name: "Main"}, {ID: "2", Name: "Outlet"}}
	if diff := cmp.Diff(want, m.Catalogs()); diff != "" {
		t.Errorf("catalogs mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, m.OnCatalogSelected(ctx, "1", "pk"))
	require.NoError(t, m.SelectTemplate("p2"))
	assert.Equal(t, Selection{CatalogID: "1", TemplateID: "p2"}, m.Selection())

	require.NoError(t, m.OnCatalogSelected(ctx, "2", "pk"))
	assert.Equal(t, Selection{CatalogID: "2"}, m.Selection())
	if diff := cmp.Diff([]models.TemplateItem{{ID: "p9", Title: "Hoodie"}}, m.Templates()); diff != "" {
		t.Errorf("templates mismatch (-want +got):\n%s", diff)
	}

	// Reloading stores clears both dependent levels.
	require.NoError(t, m.OnCredentialValidated(ctx, "pk"))
	assert.Equal(t, Selection{}, m.Selection())
	assert.Empty(t, m.Templates())

	var last *events.OptionsChangedEvent
	for len(changes) > 0 {
		last = (<-changes).(*events.OptionsChangedEvent)
	}
	require.NotNil(t, last)
	assert.Empty(t, last.Options)
	assert.Empty(t, last.Selected)
}

func TestLoadFailureLeavesListEmpty(t *testing.T) {
	srv, m, _ := newManager(t)
	seed(srv)
	ctx := context.Background()

	err := m.OnCredentialValidated(ctx, "wrong")
	require.Error(t, err)
	assert.Empty(t, m.Catalogs())
	catErr, _ := m.Errors()
	assert.Equal(t, err, catErr)

	srv.SetStores(models.Catalog{ID: "1", Name: "Main"}, models.Catalog{ID: "3", Name: "Closed"})
	require.NoError(t, m.OnCredentialValidated(ctx, "pk"))
	err = m.OnCatalogSelected(ctx, "3", "pk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to fetch products")
	assert.Empty(t, m.Templates())
	assert.Equal(t, 1, srv.Calls("/api/products"))
}

func TestSelectTemplate(t *testing.T) {
	srv, m, _ := newManager(t)
	seed(srv)
	ctx := context.Background()

	assert.ErrorIs(t, m.SelectTemplate("p1"), ErrNoCatalog)

	require.NoError(t, m.OnCredentialValidated(ctx, "pk"))
	require.NoError(t, m.OnCatalogSelected(ctx, "1", "pk"))
	assert.ErrorIs(t, m.SelectTemplate("p9"), ErrUnknownOption)
	require.NoError(t, m.SelectTemplate("p1"))

	srv.SetDetails("1", "p1", models.TemplateDetails{Title: "Tee", Tags: []string{"summer"}})
	d, err := m.TemplateDetails(ctx, "pk")
	require.NoError(t, err)
	assert.Equal(t, []string{"summer"}, d.Tags)
}

func TestLoadModelsSelectsFirst(t *testing.T) {
	srv, m, _ := newManager(t)
	srv.SetOllamaModels("", "llama3", "mistral")

	names, err := m.LoadModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3", "mistral"}, names)
	assert.Equal(t, "llama3", m.Selection().Model)

	require.NoError(t, m.SelectModel("mistral"))
	assert.ErrorIs(t, m.SelectModel("phi"), ErrUnknownOption)
	assert.Equal(t, "mistral", m.Selection().Model)

	srv.SetOllamaModels("connection refused")
	_, err = m.LoadModels(context.Background())
	require.Error(t, err)
	assert.Equal(t, "connection refused", err.Error())
	assert.Empty(t, m.Selection().Model)
}
