package ui

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pipedeck/pipedeck/internal/api"
	"github.com/pipedeck/pipedeck/internal/auth"
	"github.com/pipedeck/pipedeck/internal/client"
	"github.com/pipedeck/pipedeck/internal/menu"
	"github.com/pipedeck/pipedeck/internal/notify"
	"github.com/pipedeck/pipedeck/internal/pipeline"
	"github.com/pipedeck/pipedeck/internal/repoauth"
	"github.com/pipedeck/pipedeck/internal/vault"
)

//go:embed templates/*.html
var templateFS embed.FS

// BranchLister lists the remote branches of a repository.
type BranchLister func(ctx context.Context, repoURL string, opts repoauth.Options) ([]string, error)

// Handler manages console requests.
type Handler struct {
	Menu      *menu.Menu
	Pipelines *pipeline.Helper
	Vault     *vault.Vault
	Auth      *auth.Gateway
	Notifier  pipeline.Notifier
	Center    *notify.Center
	Progress  *client.Tracker
	Branches  BranchLister
	Settings  SettingsView
	Logger    *slog.Logger
	Tmpl      *template.Template

	views map[string]http.HandlerFunc
}

// NewHandler creates a console handler with the embedded templates.
func NewHandler(h Handler) (*Handler, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"shortRepo": repoauth.ShortName,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed parsing templates: %w", err)
	}

	out := h
	out.Tmpl = tmpl
	if out.Branches == nil {
		out.Branches = pipeline.Branches
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	out.views = map[string]http.HandlerFunc{
		"overview":        out.ServeOverview,
		"pipeline/create": out.ServeCreatePage,
		"pipeline/detail": out.ServeDetail,
		"pipeline/log":    out.ServeLog,
		"pipeline/params": out.ServeParams,
		"settings":        out.ServeSettings,
		"vault":           out.ServeVault,
		"login":           out.ServeLogin,
	}
	return &out, nil
}

// ServeOverview lists every pipeline with its latest run.
func (h *Handler) ServeOverview(w http.ResponseWriter, r *http.Request) {
	data := h.page(r, "overview", "Overview")
	latest, err := h.Pipelines.LatestRuns(r.Context())
	if err != nil {
		h.Notifier.OnError(err)
	}
	for _, item := range latest {
		run := item.Run
		view := toPipelineView(item.Pipeline, &run)
		view.NeedsArgs = pipeline.NeedsParams(item.Pipeline)
		data.Pipelines = append(data.Pipelines, view)
	}
	h.render(w, r, http.StatusOK, data)
}

// ServeCreatePage renders an empty pipeline creation form.
func (h *Handler) ServeCreatePage(w http.ResponseWriter, r *http.Request) {
	data := h.page(r, "create", "Create Pipeline")
	data.Form = newCreateForm()
	h.render(w, r, http.StatusOK, data)
}

// HandleCreate either lists the branches of the entered repository or
// submits the pipeline, depending on the pressed button.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	form := CreateForm{
		Name:       strings.TrimSpace(r.FormValue("name")),
		Type:       strings.TrimSpace(r.FormValue("type")),
		RepoURL:    strings.TrimSpace(r.FormValue("repo_url")),
		AuthMethod: repoauth.NormalizeMethod(r.FormValue("repo_auth_method")),
		Username:   strings.TrimSpace(r.FormValue("username")),
		Branch:     strings.TrimSpace(r.FormValue("branch")),
	}
	form.RepoShort = repoauth.ShortName(form.RepoURL)
	authOpts := repoauth.Options{
		Method:   form.AuthMethod,
		Username: form.Username,
		Password: r.FormValue("password"),
		Key:      r.FormValue("deploy_key"),
	}

	if form.RepoURL == "" {
		h.renderCreate(w, r, http.StatusBadRequest, form, "Repository URL is required.")
		return
	}

	if r.FormValue("action") == "branches" {
		branches, err := h.Branches(r.Context(), form.RepoURL, authOpts)
		if err != nil {
			h.renderCreate(w, r, http.StatusBadGateway, form, err.Error())
			return
		}
		form.Branches = branches
		if form.Branch == "" && len(branches) > 0 {
			form.Branch = branches[0]
		}
		h.renderCreate(w, r, http.StatusOK, form, "")
		return
	}

	if form.Name == "" {
		h.renderCreate(w, r, http.StatusBadRequest, form, "Name and repository URL are required.")
		return
	}
	if err := repoauth.Validate(form.RepoURL, authOpts); err != nil {
		h.renderCreate(w, r, http.StatusBadRequest, form, err.Error())
		return
	}

	req := api.CreatePipeline{
		Name: form.Name,
		Type: form.Type,
		Repo: api.GitRepo{
			URL:            form.RepoURL,
			SelectedBranch: form.Branch,
		},
	}
	switch form.AuthMethod {
	case repoauth.MethodBasic:
		req.Repo.Username = authOpts.Username
		req.Repo.Password = authOpts.Password
	case repoauth.MethodSSHKey:
		req.Repo.PrivateKey = &api.PrivateKey{
			Key:      repoauth.NormalizeKey(authOpts.Key),
			Username: authOpts.Username,
		}
	}

	if err := h.Pipelines.Create(r.Context(), req); err != nil {
		h.renderCreate(w, r, http.StatusBadGateway, form, "")
		return
	}
	http.Redirect(w, r, menu.DefaultPath, http.StatusSeeOther)
}

// HandleStart decides between starting directly and asking for parameters.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	p, ok := h.formPipeline(w, r)
	if !ok {
		return
	}

	nav := &redirectNavigator{w: w, r: r}
	if err := h.Pipelines.DecideAndStart(r.Context(), nav, *p); err != nil || !nav.navigated {
		h.back(w, r)
	}
}

// HandlePull asks the backend to refresh the pipeline source.
func (h *Handler) HandlePull(w http.ResponseWriter, r *http.Request) {
	p, ok := h.formPipeline(w, r)
	if !ok {
		return
	}
	// The outcome is reported through the notification center.
	_ = h.Pipelines.Pull(r.Context(), *p)
	h.back(w, r)
}

// ServeParams renders the parameter form of a pipeline.
func (h *Handler) ServeParams(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.URL.Query().Get("pipelineid"))
	if err != nil {
		http.Redirect(w, r, menu.DefaultPath, http.StatusFound)
		return
	}
	p, err := h.Pipelines.Get(r.Context(), id)
	if err != nil {
		h.Notifier.OnError(err)
		http.Redirect(w, r, menu.DefaultPath, http.StatusFound)
		return
	}

	data := h.page(r, "params", "Pipeline Parameters")
	data.Pipeline = toPipelineView(*p, nil)
	data.Pipeline.Docker = r.URL.Query().Get("docker") == "true"
	data.Args = toArgViews(pipeline.RequiredArgs(*p))
	h.render(w, r, http.StatusOK, data)
}

// HandleParams starts a pipeline with the submitted argument values.
func (h *Handler) HandleParams(w http.ResponseWriter, r *http.Request) {
	p, ok := h.formPipeline(w, r)
	if !ok {
		return
	}
	p.Docker = r.FormValue("docker") == "true"

	args := pipeline.RequiredArgs(*p)
	for i := range args {
		args[i].Value = r.FormValue(fmt.Sprintf("arg_%d", i))
	}

	nav := &redirectNavigator{w: w, r: r}
	if _, err := h.Pipelines.StartWithArgs(r.Context(), nav, *p, args); err != nil {
		http.Redirect(w, r, pipeline.ParamsLocation(*p).String(), http.StatusSeeOther)
		return
	}
	if !nav.navigated {
		http.Redirect(w, r, menu.DefaultPath, http.StatusSeeOther)
	}
}

// ServeDetail renders one run with its jobs.
func (h *Handler) ServeDetail(w http.ResponseWriter, r *http.Request) {
	pid, rid, ok := runParams(r)
	if !ok {
		http.Redirect(w, r, menu.DefaultPath, http.StatusFound)
		return
	}

	data := h.page(r, "detail", "Pipeline Detail")
	p, err := h.Pipelines.Get(r.Context(), pid)
	if err != nil {
		h.Notifier.OnError(err)
		http.Redirect(w, r, menu.DefaultPath, http.StatusFound)
		return
	}
	run, err := h.Pipelines.Run(r.Context(), pid, rid)
	if err != nil {
		h.Notifier.OnError(err)
		http.Redirect(w, r, menu.DefaultPath, http.StatusFound)
		return
	}

	data.Pipeline = toPipelineView(*p, nil)
	data.Run = toRunView(*run)
	if !data.Run.Finished {
		data.Refresh = h.refreshSeconds()
	}
	h.render(w, r, http.StatusOK, data)
}

// ServeLog renders the log of a run and refreshes until it is finished.
func (h *Handler) ServeLog(w http.ResponseWriter, r *http.Request) {
	pid, rid, ok := runParams(r)
	if !ok {
		http.Redirect(w, r, menu.DefaultPath, http.StatusFound)
		return
	}

	log, err := h.Pipelines.JobLog(r.Context(), pid, rid, client.HideProgressBar())
	if err != nil {
		h.Notifier.OnError(err)
		http.Redirect(w, r, pipeline.DetailLocation(pid, rid).String(), http.StatusFound)
		return
	}

	data := h.page(r, "log", "Pipeline Logs")
	data.Run = RunView{ID: rid, PipelineID: pid, Finished: log.Finished}
	data.Log = log.Log
	if !log.Finished {
		data.Refresh = h.refreshSeconds()
	}
	h.render(w, r, http.StatusOK, data)
}

// ServeSettings renders the effective console settings.
func (h *Handler) ServeSettings(w http.ResponseWriter, r *http.Request) {
	data := h.page(r, "settings", "Settings")
	data.Settings = h.Settings
	h.render(w, r, http.StatusOK, data)
}

// ServeVault lists the stored secrets with masked values.
func (h *Handler) ServeVault(w http.ResponseWriter, r *http.Request) {
	h.renderVault(w, r, http.StatusOK, "", "")
}

// HandleVault adds, updates or removes a secret depending on the action.
func (h *Handler) HandleVault(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	key := strings.TrimSpace(r.FormValue("key"))
	value := r.FormValue("value")

	var err error
	switch r.FormValue("action") {
	case "add":
		err = h.Vault.Add(r.Context(), key, value)
	case "update":
		err = h.Vault.Update(r.Context(), key, value)
	case "remove":
		err = h.Vault.Remove(r.Context(), key)
	default:
		http.Error(w, "Unknown vault action", http.StatusBadRequest)
		return
	}
	if errors.Is(err, vault.ErrKeyRequired) {
		h.renderVault(w, r, http.StatusBadRequest, key, "Secret key is required.")
		return
	}
	http.Redirect(w, r, menu.VaultPath, http.StatusSeeOther)
}

func (h *Handler) renderVault(w http.ResponseWriter, r *http.Request, status int, key, errorMessage string) {
	data := h.page(r, "vault", "Vault")
	data.SecretKey = key
	data.Error = errorMessage
	secrets, err := h.Vault.List(r.Context())
	if err != nil {
		h.Notifier.OnError(err)
	}
	for _, s := range secrets {
		data.Secrets = append(data.Secrets, SecretView{Key: s.Key, Masked: vault.Mask(s.Value)})
	}
	h.render(w, r, status, data)
}

// ServeLogin renders the login form.
func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	if h.Auth.Session(r.Context()) != nil && !h.Auth.Expired(r.Context(), time.Now()) {
		http.Redirect(w, r, menu.DefaultPath, http.StatusFound)
		return
	}
	h.render(w, r, http.StatusOK, h.page(r, "login", "Login"))
}

// HandleLogin exchanges the submitted credentials for a session.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	creds := api.Credentials{
		Username: strings.TrimSpace(r.FormValue("username")),
		Password: r.FormValue("password"),
	}

	id := uuid.NewString()
	if !h.Auth.Login(auth.WithBrowser(r.Context(), id), creds) {
		data := h.page(r, "login", "Login")
		data.Error = "Username and password do not match."
		h.render(w, r, http.StatusUnauthorized, data)
		return
	}
	token, err := newCSRFToken()
	if err != nil {
		h.Logger.Error("Failed to create csrf token", "error", err)
		h.Auth.Logout(auth.WithBrowser(r.Context(), id))
		http.Error(w, "Failed to start session", http.StatusInternalServerError)
		return
	}
	if browserID(r) != "" {
		h.Auth.Logout(r.Context())
	}
	setBrowserCookies(w, r, id, token)
	http.Redirect(w, r, menu.DefaultPath, http.StatusSeeOther)
}

// HandleLogout drops the session of the requesting browser.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.Auth.Logout(r.Context())
	clearBrowserCookies(w, r)
	http.Redirect(w, r, menu.LoginPath, http.StatusSeeOther)
}

// HandleMenuToggle flips the expanded flag of a menu entry.
func (h *Handler) HandleMenuToggle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	if !h.Menu.Toggle(r.FormValue("name")) {
		http.Error(w, "Menu entry not found", http.StatusNotFound)
		return
	}
	h.back(w, r)
}

// ServeProgress reports the number of requests showing the progress indicator.
func (h *Handler) ServeProgress(w http.ResponseWriter, r *http.Request) {
	active := 0
	if h.Progress != nil {
		active = h.Progress.Active()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"active": active})
}

func (h *Handler) page(r *http.Request, name, title string) PageData {
	data := PageData{
		Page:  name,
		Title: title,
		Menu:  h.Menu.Items(),
		Types: PipelineTypes,
		CSRF:  csrfToken(r),
	}
	if s := h.Auth.Session(r.Context()); s != nil {
		data.User = fallbackString(s.DisplayName, s.Username)
		data.SessionExpiry = formatTime(s.Expiry)
	}
	return data
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data PageData) {
	if h.Center != nil {
		data.Notifications = h.Center.Drain(time.Now())
	}
	if h.Progress != nil {
		data.Busy = h.Progress.Active() > 0
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.Tmpl.ExecuteTemplate(w, "base", data); err != nil {
		h.Logger.Error("Failed to render page", "page", data.Page, "error", err)
	}
}

func (h *Handler) renderCreate(w http.ResponseWriter, r *http.Request, status int, form CreateForm, errorMessage string) {
	data := h.page(r, "create", "Create Pipeline")
	data.Form = form
	data.Error = errorMessage
	h.render(w, r, status, data)
}

func (h *Handler) formPipeline(w http.ResponseWriter, r *http.Request) (*api.Pipeline, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return nil, false
	}
	id, err := strconv.Atoi(r.FormValue("pipelineid"))
	if err != nil {
		http.Error(w, "Invalid pipeline id", http.StatusBadRequest)
		return nil, false
	}
	p, err := h.Pipelines.Get(r.Context(), id)
	if err != nil {
		h.Notifier.OnError(err)
		h.back(w, r)
		return nil, false
	}
	return p, true
}

// back returns to the page the form was posted from.
func (h *Handler) back(w http.ResponseWriter, r *http.Request) {
	target := menu.DefaultPath
	if ref, err := url.Parse(r.Referer()); err == nil && ref.Path != "" && (ref.Host == "" || ref.Host == r.Host) {
		target = ref.RequestURI()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) refreshSeconds() int {
	seconds := int(h.Settings.PollInterval / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}

func runParams(r *http.Request) (int, int, bool) {
	q := r.URL.Query()
	pid, err := strconv.Atoi(q.Get("pipelineid"))
	if err != nil {
		return 0, 0, false
	}
	rid, err := strconv.Atoi(q.Get("runid"))
	if err != nil {
		return 0, 0, false
	}
	return pid, rid, true
}

// redirectNavigator turns a navigation into an HTTP redirect.
type redirectNavigator struct {
	w         http.ResponseWriter
	r         *http.Request
	navigated bool
}

func (n *redirectNavigator) Navigate(loc pipeline.Location) {
	http.Redirect(n.w, n.r, loc.String(), http.StatusSeeOther)
	n.navigated = true
}
