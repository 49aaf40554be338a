package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Saiprana/ai-guardrails-system/internal/engine"
	"github.com/Saiprana/ai-guardrails-system/internal/pipeline"
)

func (d *Dependencies) handleAgentQuery(w http.ResponseWriter, r *http.Request) {
	var req AgentQueryReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Error: "Invalid JSON body"})
		return
	}
	if req.UserID == nil || strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Error: "Missing required fields: user_id, query"})
		return
	}

	resp, err := d.Pipeline.Run(r.Context(), pipeline.Request{
		UserID:  *req.UserID,
		Query:   req.Query,
		Tools:   req.Tools,
		Context: req.Context,
	})
	if errors.Is(err, engine.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResp{Error: fmt.Sprintf("User %d not found", *req.UserID)})
		return
	}
	if err != nil {
		d.Logger.Error("agent query failed", zap.Int64("user_id", *req.UserID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Error: "Failed to process query"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleScenarios(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ScenariosResp{Scenarios: pipeline.DemoScenarios()})
}
