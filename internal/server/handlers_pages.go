package server

import (
	"bytes"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/opsdeck/opsdeck/internal/ctxutil"
	"github.com/opsdeck/opsdeck/internal/model"
)

// basePage carries fields shared by every operator page.
type basePage struct {
	Title         string
	Active        string // nav highlight
	OperatorEmail string
	// LoadError is set when storage failed; templates render an error panel
	// instead of pretending the system is empty.
	LoadError string
}

func (h *Handlers) base(r *http.Request, title, active string) basePage {
	p := basePage{Title: title, Active: active}
	if claims := ctxutil.OperatorFromContext(r.Context()); claims != nil {
		p.OperatorEmail = claims.Email
	}
	return p
}

// renderPage executes a page into a buffer first so a template error can
// still produce a clean 500 instead of a half-written body.
func (h *Handlers) renderPage(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := h.templates.render(&buf, name, data); err != nil {
		h.logger.Error("render page failed", "page", name, "error", err,
			"request_id", ctxutil.RequestIDFromContext(r.Context()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

type dashboardPage struct {
	basePage
	AgentCount       int
	OnlineCount      int
	JobCount         int
	PendingApprovals int
	RecentEvents     []eventRow
}

type eventRow struct {
	AgentName string
	EventType string
	At        time.Time
}

// HandleDashboard renders the landing page: fleet counts, pending approval
// count, and the most recent activity.
func (h *Handlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page := dashboardPage{basePage: h.base(r, "Dashboard", "dashboard")}

	agents, err := h.store.ListAgents(ctx)
	if err == nil {
		page.AgentCount = len(agents)
		for _, a := range agents {
			if a.Online() {
				page.OnlineCount++
			}
		}
	}
	var jobsErr, approvalsErr, eventsErr error
	var jobs []model.Job
	if err == nil {
		jobs, jobsErr = h.store.ListJobs(ctx)
		page.JobCount = len(jobs)
		page.PendingApprovals, approvalsErr = h.store.CountPendingApprovals(ctx)

		var events []model.AgentEvent
		events, eventsErr = h.store.ListRecentEvents(ctx, 10)
		names := make(map[uuid.UUID]string, len(agents))
		for _, a := range agents {
			names[a.ID] = a.Name
		}
		for _, e := range events {
			name := names[e.AgentID]
			if name == "" {
				name = e.AgentID.String()
			}
			page.RecentEvents = append(page.RecentEvents, eventRow{
				AgentName: name,
				EventType: e.EventType,
				At:        e.CreatedAt,
			})
		}
	}

	if firstErr := firstOf(err, jobsErr, approvalsErr, eventsErr); firstErr != nil {
		h.logger.Error("dashboard load failed", "error", firstErr)
		page.LoadError = "Some data could not be loaded. The storage backend may be unavailable."
	}
	h.renderPage(w, r, "dashboard", page)
}

type agentsPage struct {
	basePage
	Agents []model.Agent
}

// HandleAgentsPage renders the agent roster.
func (h *Handlers) HandleAgentsPage(w http.ResponseWriter, r *http.Request) {
	page := agentsPage{basePage: h.base(r, "Agents", "agents")}
	agents, err := h.store.ListAgents(r.Context())
	if err != nil {
		h.logger.Error("agents page load failed", "error", err)
		page.LoadError = "Agents could not be loaded."
	}
	page.Agents = agents
	h.renderPage(w, r, "agents", page)
}

type agentDetailPage struct {
	basePage
	Agent  model.Agent
	Events []model.AgentEvent
}

// HandleAgentDetailPage renders one agent with its recent events.
func (h *Handlers) HandleAgentDetailPage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("agent_id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	agent, err := h.store.GetAgent(r.Context(), id)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	page := agentDetailPage{basePage: h.base(r, agent.Name, "agents"), Agent: agent}
	events, err := h.store.ListEventsByAgent(r.Context(), id, 50)
	if err != nil {
		h.logger.Error("agent events load failed", "error", err, "agent_id", id)
		page.LoadError = "Events could not be loaded."
	}
	page.Events = events
	h.renderPage(w, r, "agent_detail", page)
}

type projectsPage struct {
	basePage
	Projects []projectRow
}

type projectRow struct {
	Project model.Project
	Jobs    []model.Job
}

// HandleProjectsPage renders projects with their jobs grouped underneath.
func (h *Handlers) HandleProjectsPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page := projectsPage{basePage: h.base(r, "Projects", "projects")}

	projects, err := h.store.ListProjects(ctx)
	var jobs []model.Job
	var jobsErr error
	if err == nil {
		jobs, jobsErr = h.store.ListJobs(ctx)
	}
	if firstErr := firstOf(err, jobsErr); firstErr != nil {
		h.logger.Error("projects page load failed", "error", firstErr)
		page.LoadError = "Projects could not be loaded."
	}

	byProject := make(map[uuid.UUID][]model.Job)
	var unassigned []model.Job
	for _, j := range jobs {
		if j.ProjectID != nil {
			byProject[*j.ProjectID] = append(byProject[*j.ProjectID], j)
		} else {
			unassigned = append(unassigned, j)
		}
	}
	for _, p := range projects {
		page.Projects = append(page.Projects, projectRow{Project: p, Jobs: byProject[p.ID]})
	}
	if len(unassigned) > 0 {
		page.Projects = append(page.Projects, projectRow{
			Project: model.Project{Title: "Unassigned"},
			Jobs:    unassigned,
		})
	}
	h.renderPage(w, r, "projects", page)
}

type approvalsPage struct {
	basePage
	Approvals []approvalRow
	FormError string
}

type approvalRow struct {
	Approval  model.Approval
	AgentName string
	JobTitle  string
}

// HandleApprovalsPage renders the approval queue, pending first.
func (h *Handlers) HandleApprovalsPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page := approvalsPage{basePage: h.base(r, "Approvals", "approvals")}

	switch r.URL.Query().Get("error") {
	case "note_required":
		page.FormError = "A note is required when requesting changes."
	case "already_decided":
		page.FormError = "That approval was already decided."
	case "invalid_form":
		page.FormError = "The submitted form was invalid."
	}

	list, err := h.store.ListApprovals(ctx)
	if err != nil {
		h.logger.Error("approvals page load failed", "error", err)
		page.LoadError = "Approvals could not be loaded."
		h.renderPage(w, r, "approvals", page)
		return
	}

	agents, _ := h.store.ListAgents(ctx)
	names := make(map[uuid.UUID]string, len(agents))
	for _, a := range agents {
		names[a.ID] = a.Name
	}
	jobs, _ := h.store.ListJobs(ctx)
	titles := make(map[uuid.UUID]string, len(jobs))
	for _, j := range jobs {
		titles[j.ID] = j.Title
	}

	for _, a := range list {
		row := approvalRow{Approval: a, AgentName: names[a.AgentID]}
		if row.AgentName == "" {
			row.AgentName = a.AgentID.String()
		}
		if a.JobID != nil {
			row.JobTitle = titles[*a.JobID]
		}
		page.Approvals = append(page.Approvals, row)
	}
	h.renderPage(w, r, "approvals", page)
}

func firstOf(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
