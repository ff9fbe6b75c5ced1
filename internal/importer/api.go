package importer

import "dorm-open-data-backend/internal/store"

// pageResponse models one page of the upstream room catalogue.
type pageResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Page     int                 `json:"page"`
		PageSize int                 `json:"page_size"`
		Total    int                 `json:"total"`
		Items    []store.CatalogItem `json:"items"`
	} `json:"data"`
}
