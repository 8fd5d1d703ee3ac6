package webui

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"orchestrator/internal/kernel"
	"orchestrator/pkg/dispatch"
	"orchestrator/pkg/logx"
	"orchestrator/pkg/proto"
	"orchestrator/pkg/queue"
)

// taskRequest is the request body for /task and /task/async.
type taskRequest struct {
	Task           string `json:"task"`
	UserID         string `json:"user_id"`
	PreferredAgent string `json:"preferred_agent,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"detail": message})
}

func (s *Server) decodeTaskRequest(w http.ResponseWriter, r *http.Request) (*taskRequest, bool) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return nil, false
	}
	if req.Task == "" {
		s.writeError(w, http.StatusBadRequest, "task is required")
		return nil, false
	}
	if req.UserID == "" {
		req.UserID = proto.AnonymousUser
	}
	return &req, true
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"agent":             "orchestrator",
		"status":            "running",
		"protocol":          "a2a",
		"discovered_agents": s.kernel.AgentNames(),
		"capabilities":      []string{"agent_discovery", "request_routing", "async_queueing"},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":            "healthy",
		"agents_discovered": len(s.kernel.AgentNames()),
		"queue_available":   s.kernel.QueueAvailable(),
	})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.kernel.ListAgents()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"total_agents": len(agents),
		"agents":       agents,
	})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTaskRequest(w, r)
	if !ok {
		return
	}

	s.logger.Info("New task from %s: %s", req.UserID, req.Task)

	result, err := s.kernel.ExecuteSync(r.Context(), req.Task, req.UserID, req.PreferredAgent)
	switch {
	case errors.Is(err, kernel.ErrNoAgentsAvailable):
		s.writeError(w, http.StatusServiceUnavailable, "No agents available. Agent discovery may have failed.")
		return
	case errors.Is(err, kernel.ErrNoSuitableAgent):
		s.writeError(w, http.StatusNotFound, "No suitable agent found for this task")
		return
	case err != nil:
		status := http.StatusInternalServerError
		if errors.Is(err, dispatch.ErrAgentNotFound) || errors.Is(err, dispatch.ErrMissingBaseURL) {
			status = http.StatusBadGateway
		}
		s.writeError(w, status, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"result":       result.Result,
		"agent_used":   result.AgentUsed,
		"orchestrator": "orchestrator",
	})
}

func (s *Server) handleTaskAsync(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTaskRequest(w, r)
	if !ok {
		return
	}

	messageID, err := s.kernel.ExecuteAsync(r.Context(), req.Task, req.UserID, req.PreferredAgent)
	if err != nil {
		if errors.Is(err, queue.ErrUnavailable) {
			s.writeError(w, http.StatusServiceUnavailable, "Queue not available. Use /task for synchronous execution.")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Failed to queue task: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":     "queued",
		"message_id": messageID,
		"queue":      proto.TaskQueue,
	})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	found := s.kernel.Discover(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "discovery_complete",
		"agents_found": found,
		"agents":       s.kernel.AgentNames(),
	})
}

func (s *Server) handleResponses(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	maxMessages := 10
	if raw := r.URL.Query().Get("max_messages"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "max_messages must be a positive integer")
			return
		}
		maxMessages = parsed
	}

	records, err := s.kernel.FetchResponses(r.Context(), userID, maxMessages)
	if err != nil {
		if errors.Is(err, queue.ErrUnavailable) && len(records) == 0 {
			s.writeError(w, http.StatusServiceUnavailable, "Queue not available")
			return
		}
		// Partial results still go back to the caller.
		s.logger.Warn("Response fetch ended early for %s: %v", userID, err)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"total":     len(records),
		"user_id":   userID,
		"responses": records,
	})
}

// handleAgentCard serves the orchestrator's own agent card so other systems
// can discover it the same way it discovers its workers.
func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"name":        "orchestrator",
		"description": "Multi-agent orchestrator that discovers and coordinates specialized agents using the A2A protocol",
		"version":     "1.0.0",
		"capabilities": map[string]any{
			"skills": []map[string]any{
				{
					"id":          "agent_discovery",
					"name":        "Agent Discovery",
					"description": "Discover available agents and their capabilities",
					"examples":    []string{"List available agents", "What agents are available?"},
				},
				{
					"id":          "request_routing",
					"name":        "Request Routing",
					"description": "Route user requests to the most appropriate specialized agent",
					"examples":    []string{"Plan a trip to Paris", "Convert 500 USD to EUR"},
				},
			},
			"protocols":         []string{"a2a", "http", "queue"},
			"discovered_agents": s.kernel.AgentNames(),
		},
		"protocol": "a2a",
	})
}

type dashboardData struct {
	Agents         []agentView
	QueueAvailable bool
	TaskDepth      int
	ResponseDepth  int
	Stats          *statsView
	Logs           []logx.LogEntry
}

type agentView struct {
	Name        string
	Description string
	BaseURL     string
	SkillNames  []string
}

type statsView struct {
	TasksCompleted int64
	TasksFailed    int64
	DeadLetters    int64
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := dashboardData{
		QueueAvailable: s.kernel.QueueAvailable(),
		TaskDepth:      s.kernel.QueueDepth(r.Context(), proto.TaskQueue),
		ResponseDepth:  s.kernel.QueueDepth(r.Context(), proto.ResponseQueue),
		Logs:           tailLogs(logx.GetRecentLogEntries("", time.Time{}), 50),
	}

	for _, card := range s.kernel.ListAgents() {
		view := agentView{
			Name:        card.Name,
			Description: card.Description,
			BaseURL:     card.BaseURL,
		}
		for _, skill := range card.Skills {
			view.SkillNames = append(view.SkillNames, skill.Name)
		}
		data.Agents = append(data.Agents, view)
	}

	if s.stats != nil {
		if taskStats, err := s.stats.GetTaskStats(r.Context()); err == nil {
			data.Stats = &statsView{
				TasksCompleted: taskStats.TasksCompleted,
				TasksFailed:    taskStats.TasksFailed,
				DeadLetters:    taskStats.DeadLetters,
			}
		} else {
			s.logger.Debug("Stats query failed: %v", err)
		}
	}

	if err := s.templates.ExecuteTemplate(w, "dashboard.html", data); err != nil {
		s.logger.Error("Failed to render dashboard: %v", err)
	}
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	component := r.URL.Query().Get("component")
	entries := logx.GetRecentLogEntries(component, time.Time{})
	s.writeJSON(w, http.StatusOK, map[string]any{
		"total":   len(entries),
		"entries": entries,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Metrics query service not configured")
		return
	}
	taskStats, err := s.stats.GetTaskStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "Failed to query metrics: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, taskStats)
}

func tailLogs(entries []logx.LogEntry, n int) []logx.LogEntry {
	if len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}
