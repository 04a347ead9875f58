package types

// Version is the application version, overwritten at build time via ldflags
var Version = "dev"

// AppName is used as the pipeline name in log entries and report headers
const AppName = "vigil"

// DataSource identifies one acquisition channel. All datasets are
// partitioned by this value and a pipeline run never crosses partitions.
type DataSource string

// DefaultDataSource is the partition used when no --data-source flag is given
const DefaultDataSource DataSource = "git_hub"

func (s DataSource) String() string {
	return string(s)
}
