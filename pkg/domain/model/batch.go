package model

// RecordBatch is the unit of acquisition: everything one source call
// produced, across all five raw datasets.
type RecordBatch struct {
	Repositories []RawRepository
	Contributors []RawContributor
	Commits      []RawCommitActivity
	Issues       []RawIssueActivity
	Releases     []RawReleaseActivity
}

// Size returns the total number of records in the batch.
func (b *RecordBatch) Size() int {
	return len(b.Repositories) + len(b.Contributors) + len(b.Commits) + len(b.Issues) + len(b.Releases)
}

// IngestResult reports how many records one ingest operation appended.
type IngestResult struct {
	Source       string `json:"source"`
	Repositories int    `json:"repositories"`
	Contributors int    `json:"contributors"`
	Commits      int    `json:"commits"`
	Issues       int    `json:"issues"`
	Releases     int    `json:"releases"`
}

// Total returns the total number of appended records.
func (r *IngestResult) Total() int {
	return r.Repositories + r.Contributors + r.Commits + r.Issues + r.Releases
}
