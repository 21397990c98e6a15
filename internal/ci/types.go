package ci

import "time"

// Run status and conclusion values reported by the Actions API.
const (
	StatusCompleted   = "completed"
	ConclusionSuccess = "success"
)

// Branch is the subset of GET /repos/{o}/{r}/branches/{b} that is used.
type Branch struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// WorkflowRun is one Actions run.
type WorkflowRun struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	HeadBranch string    `json:"head_branch"`
	HeadSHA    string    `json:"head_sha"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion"`
	HTMLURL    string    `json:"html_url"`
	CreatedAt  time.Time `json:"created_at"`
}

// Completed reports whether the run reached a terminal status.
func (r WorkflowRun) Completed() bool { return r.Status == StatusCompleted }

type workflowRuns struct {
	TotalCount   int           `json:"total_count"`
	WorkflowRuns []WorkflowRun `json:"workflow_runs"`
}

// Release is a tagged release with its uploaded assets.
type Release struct {
	ID          int64     `json:"id"`
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	Assets      []Asset   `json:"assets"`
}

// Asset is a file attached to a release. URL is the API endpoint of the
// asset, which serves the file itself when asked for application/octet-stream.
type Asset struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	ContentType        string `json:"content_type"`
	Size               int64  `json:"size"`
	URL                string `json:"url"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// DownloadURL prefers the API endpoint, which works for private repositories.
func (a Asset) DownloadURL() string {
	if a.URL != "" {
		return a.URL
	}
	return a.BrowserDownloadURL
}

// Artifact is a workflow artifact archive.
type Artifact struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	ArchiveDownloadURL string    `json:"archive_download_url"`
	SizeInBytes        int64     `json:"size_in_bytes"`
	Expired            bool      `json:"expired"`
	CreatedAt          time.Time `json:"created_at"`
}

type artifactList struct {
	TotalCount int        `json:"total_count"`
	Artifacts  []Artifact `json:"artifacts"`
}

type dispatchRequest struct {
	Ref string `json:"ref"`
}
