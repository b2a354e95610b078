package dify

import (
	"context"
	"net/http"
	"time"
)

// Dataset is a knowledge base in the configured workspace.
type Dataset struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	DocumentCount     int       `json:"documentCount"`
	WordCount         int       `json:"wordCount"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
	IndexingTechnique string    `json:"indexingTechnique"`
	Permission        string    `json:"permission"`
}

type datasetRecord struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Description        string `json:"description"`
	DocumentCount      int    `json:"document_count"`
	WordCount          int    `json:"word_count"`
	EmbeddingAvailable bool   `json:"embedding_available"`
	CreatedAt          int64  `json:"created_at"`
	IndexingTechnique  string `json:"indexing_technique"`
	Permission         string `json:"permission"`
}

func (r datasetRecord) toDataset() Dataset {
	d := Dataset{
		ID:                r.ID,
		Name:              r.Name,
		Description:       r.Description,
		DocumentCount:     r.DocumentCount,
		WordCount:         r.WordCount,
		Status:            "processing",
		IndexingTechnique: r.IndexingTechnique,
		Permission:        r.Permission,
	}
	if r.EmbeddingAvailable {
		d.Status = "ready"
	}
	if r.CreatedAt > 0 {
		d.CreatedAt = time.Unix(r.CreatedAt, 0).UTC()
	}
	if d.IndexingTechnique == "" {
		d.IndexingTechnique = "high_quality"
	}
	if d.Permission == "" {
		d.Permission = "only_me"
	}
	return d
}

// Datasets lists the knowledge bases of the configured workspace.
func (c *Client) Datasets(ctx context.Context) ([]Dataset, error) {
	var reply struct {
		Data []datasetRecord `json:"data"`
	}
	if _, err := c.console(ctx, http.MethodGet, "/console/api/datasets?page=1&limit=100", c.workspaceID, nil, &reply); err != nil {
		return nil, err
	}
	out := make([]Dataset, 0, len(reply.Data))
	for _, r := range reply.Data {
		out = append(out, r.toDataset())
	}
	return out, nil
}
