package models

// Company is a prospect company assembled from source results, deduplicated
// by normalized name across sources.
type Company struct {
	Name    string       `json:"name"`
	Sources []DataSource `json:"sources"`
}

// Individual is a person of interest assembled from source results, such as
// an officer, director or wealth profile.
type Individual struct {
	Name    string       `json:"name"`
	Company string       `json:"company,omitempty"`
	Sources []DataSource `json:"sources"`
}

// EntitySet holds the entities extracted from one query's results.
type EntitySet struct {
	Companies   []Company    `json:"companies"`
	Individuals []Individual `json:"individuals"`
}
