package api

import (
	"context"
	nethttp "net/http"
	"net/url"

	"github.com/bhtools/podbulk/internal/models"
)

// ListStores returns the catalogs (stores) reachable with apiKey.
// It doubles as the platform credential probe.
func (c *Client) ListStores(ctx context.Context, apiKey string) ([]models.Catalog, error) {
	var stores []models.Catalog
	if err := c.call(ctx, "list stores", nethttp.MethodGet, "/api/stores", apiKey, nil, &stores); err != nil {
		return nil, err
	}
	return stores, nil
}

// ListProducts returns the template items (example products) of a store.
func (c *Client) ListProducts(ctx context.Context, apiKey, storeID string) ([]models.TemplateItem, error) {
	path := "/api/products?" + url.Values{"store_id": {storeID}}.Encode()

	var products []models.TemplateItem
	if err := c.call(ctx, "list products", nethttp.MethodGet, path, apiKey, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// ProductDetails returns title, description and tags of one template item.
func (c *Client) ProductDetails(ctx context.Context, apiKey, storeID, productID string) (*models.TemplateDetails, error) {
	path := "/api/product_details?" + url.Values{
		"store_id":   {storeID},
		"product_id": {productID},
	}.Encode()

	var details models.TemplateDetails
	if err := c.call(ctx, "product details", nethttp.MethodGet, path, apiKey, nil, &details); err != nil {
		return nil, err
	}
	return &details, nil
}
