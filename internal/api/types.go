package api

import "time"

// ArgTypeVault marks an argument that the backend resolves from its secret store.
const ArgTypeVault = "vault"

// Pipeline is a backend-defined automation job description.
type Pipeline struct {
	ID      int       `json:"id"`
	Name    string    `json:"name"`
	Type    string    `json:"type,omitempty"`
	Docker  bool      `json:"docker"`
	Created time.Time `json:"created,omitempty"`
	Repo    *GitRepo  `json:"repo,omitempty"`
	Jobs    []Job     `json:"jobs,omitempty"`
}

// Job is a unit of work within a pipeline, optionally parameterized by args.
type Job struct {
	ID          uint32     `json:"id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"desc,omitempty"`
	Status      string     `json:"status,omitempty"`
	Args        []Argument `json:"args,omitempty"`
}

// Argument is a single job parameter. Vault-typed arguments never prompt the user.
type Argument struct {
	Description string `json:"desc,omitempty"`
	Type        string `json:"type"`
	Key         string `json:"key"`
	Value       string `json:"value,omitempty"`
}

// IsVault reports whether the argument is resolved server-side.
func (a Argument) IsVault() bool {
	return a.Type == ArgTypeVault
}

// PipelineRun is one execution of a pipeline.
type PipelineRun struct {
	ID           int       `json:"id"`
	UniqueID     string    `json:"uniqueid,omitempty"`
	PipelineID   int       `json:"pipelineid"`
	Status       string    `json:"status"`
	StartReason  string    `json:"started_reason,omitempty"`
	StartDate    time.Time `json:"startdate,omitempty"`
	FinishDate   time.Time `json:"finishdate,omitempty"`
	ScheduleDate time.Time `json:"scheduledate,omitempty"`
	Jobs         []Job     `json:"jobs,omitempty"`
}

// PipelineWithLatestRun pairs a pipeline with its most recent run.
type PipelineWithLatestRun struct {
	Pipeline Pipeline    `json:"p"`
	Run      PipelineRun `json:"r"`
}

// JobLog is the log returned for a pipeline run.
type JobLog struct {
	Log      string `json:"log"`
	Finished bool   `json:"finished"`
}

// Credentials are exchanged for a session at the login endpoint.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the backend's answer to a successful login.
type LoginResponse struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Token       string `json:"tokenstring"`
	JWTExpiry   int64  `json:"jwtexpiry,omitempty"`
}

// Session is the client's record of an authenticated user.
type Session struct {
	Token       string    `json:"token"`
	DisplayName string    `json:"display_name"`
	Username    string    `json:"username"`
	Expiry      time.Time `json:"expiry"`
}

// StartRequest is the canonical body of a pipeline start call.
// Args is only sent when the run was parameterized by the user.
type StartRequest struct {
	Docker bool       `json:"docker"`
	Args   []Argument `json:"args,omitempty"`
}

// PullRequest is the body of a pipeline pull call.
type PullRequest struct {
	Docker bool `json:"docker"`
}

// GitRepo describes the source repository of a pipeline to create.
type GitRepo struct {
	URL            string      `json:"url"`
	Username       string      `json:"user,omitempty"`
	Password       string      `json:"password,omitempty"`
	SelectedBranch string      `json:"selectedbranch"`
	PrivateKey     *PrivateKey `json:"privatekey,omitempty"`
}

// PrivateKey is an SSH deploy key used to clone a pipeline repository.
type PrivateKey struct {
	Key      string `json:"key"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// CreatePipeline is the body of a pipeline creation call.
type CreatePipeline struct {
	Name string  `json:"name"`
	Type string  `json:"type"`
	Repo GitRepo `json:"repo"`
}

// APIError is the optional structured error payload of a failed response.
type APIError struct {
	Error string `json:"error"`
}

// Secret is a key/value pair of the backend vault. Vault-typed arguments are
// resolved from it by key.
type Secret struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
