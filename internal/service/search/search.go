package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/avdonin/marketplace/internal/models"
)

// Search runs a fuzzy multi_match over product titles and descriptions.
// Only checked products are present in the index, so no visibility filter
// is needed here.
func Search(ctx context.Context, es *elasticsearch.Client, index, query string, from, size int) (int64, []models.Product, error) {
	body := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    []string{"title^2", "description"},
				"fuzziness": "AUTO",
			},
		},
		"from": from,
		"size": size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, fmt.Errorf("search: encode query: %w", err)
	}

	res, err := es.Search(
		es.Search.WithContext(ctx),
		es.Search.WithIndex(index),
		es.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return 0, nil, fmt.Errorf("search: %s: %s", res.Status(), msg)
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.Product `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, fmt.Errorf("search: decode response: %w", err)
	}

	prods := make([]models.Product, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		prods[i] = hit.Source
	}
	return r.Hits.Total.Value, prods, nil
}

// ProductIndexer keeps the product index in sync with the catalog. It
// satisfies catalog.Indexer.
type ProductIndexer struct {
	ES    *elasticsearch.Client
	Index string
}

func (x *ProductIndexer) IndexProduct(ctx context.Context, p models.Product) error {
	doc := map[string]any{
		"id":          p.ID,
		"title":       p.Title,
		"description": p.Description,
		"price":       p.Price,
		"stock":       p.Stock,
		"seller_id":   p.SellerID,
		"checked":     p.Checked,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("index product: marshal: %w", err)
	}

	res, err := x.ES.Index(
		x.Index,
		bytes.NewReader(data),
		x.ES.Index.WithContext(ctx),
		x.ES.Index.WithDocumentID(strconv.FormatUint(uint64(p.ID), 10)),
	)
	if err != nil {
		return fmt.Errorf("index product %d: %w", p.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index product %d: %s: %s", p.ID, res.Status(), msg)
	}
	return nil
}

func (x *ProductIndexer) RemoveProduct(ctx context.Context, id uint) error {
	res, err := x.ES.Delete(
		x.Index,
		strconv.FormatUint(uint64(id), 10),
		x.ES.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("remove product %d: %w", id, err)
	}
	defer res.Body.Close()

	// 404 just means it was never indexed (e.g. an unchecked product).
	if res.IsError() && res.StatusCode != 404 {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("remove product %d: %s: %s", id, res.Status(), msg)
	}
	return nil
}
