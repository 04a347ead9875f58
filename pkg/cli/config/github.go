package config

import "github.com/urfave/cli/v3"

// GitHub holds GitHub acquisition configuration
type GitHub struct {
	Token    string
	Query    string
	MaxRepos int
}

// Flags returns CLI flags for GitHub configuration
func (c *GitHub) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "github-token",
			Usage:       "GitHub API token",
			Destination: &c.Token,
			Sources:     cli.EnvVars("VIGIL_GITHUB_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "github-query",
			Usage:       "Repository search query",
			Value:       "stars:>100",
			Destination: &c.Query,
			Sources:     cli.EnvVars("VIGIL_GITHUB_QUERY"),
		},
		&cli.IntFlag{
			Name:        "github-max-repos",
			Usage:       "Maximum repositories to collect per run",
			Value:       30,
			Destination: &c.MaxRepos,
			Sources:     cli.EnvVars("VIGIL_GITHUB_MAX_REPOS"),
		},
	}
}
