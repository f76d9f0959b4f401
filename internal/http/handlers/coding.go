package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainagg "github.com/yungbote/groundwork-backend/internal/domain/aggregates"
	"github.com/yungbote/groundwork-backend/internal/http/middleware"
	"github.com/yungbote/groundwork-backend/internal/http/response"
	"github.com/yungbote/groundwork-backend/internal/modules/coding"
	"github.com/yungbote/groundwork-backend/internal/platform/ctxutil"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
)

type CodingHandler struct {
	log    *logger.Logger
	coding coding.Usecases
}

func NewCodingHandler(log *logger.Logger, uc coding.Usecases) *CodingHandler {
	return &CodingHandler{
		log:    log.With("handler", "CodingHandler"),
		coding: uc,
	}
}

func scope(c *gin.Context) (projectID, actor string) {
	if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
		projectID, actor = rd.ProjectID, rd.Actor
	}
	if projectID == "" {
		projectID = strings.TrimSpace(c.Param(middleware.ParamProjectID))
	}
	return projectID, actor
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return false
	}
	return true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_"+key, err)
		return 0, false
	}
	return n, true
}

func queryFloat(c *gin.Context, key string) (float64, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_"+key, err)
		return 0, false
	}
	return f, true
}

func idempotencyKey(c *gin.Context, body string) string {
	if k := strings.TrimSpace(body); k != "" {
		return k
	}
	return strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
}

type submitRequest struct {
	Items []domainagg.CandidateDraft `json:"items"`
	domainagg.CandidateDraft
}

// POST /api/projects/:project_id/coding/candidates
// Accepts {"items": [...]} or a single candidate object.
func (h *CodingHandler) SubmitCandidates(c *gin.Context) {
	projectID, actor := scope(c)
	var req submitRequest
	if !bindJSON(c, &req) {
		return
	}
	items := req.Items
	if len(items) == 0 && strings.TrimSpace(req.CodeText) != "" {
		items = []domainagg.CandidateDraft{req.CandidateDraft}
	}
	out, err := h.coding.SubmitCandidates(c.Request.Context(), coding.SubmitCandidatesInput{
		ProjectID: projectID,
		Actor:     actor,
		Items:     items,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// GET /api/projects/:project_id/coding/candidates
func (h *CodingHandler) ListCandidates(c *gin.Context) {
	projectID, _ := scope(c)
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}
	var promoted *bool
	if raw := strings.TrimSpace(c.Query("promoted")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_promoted", err)
			return
		}
		promoted = &v
	}
	out, err := h.coding.ListCandidates(c.Request.Context(), coding.ListCandidatesInput{
		ProjectID:  projectID,
		State:      c.Query("state"),
		Origin:     c.Query("origin"),
		SourceFile: c.Query("source_file"),
		Promoted:   promoted,
		Limit:      limit,
		Offset:     offset,
		SortOrder:  c.Query("sort_order"),
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// GET /api/projects/:project_id/coding/candidates/stats
func (h *CodingHandler) CandidateStats(c *gin.Context) {
	projectID, _ := scope(c)
	out, err := h.coding.CandidateStats(c.Request.Context(), projectID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

type checkRequest struct {
	Codes     []string `json:"codes"`
	Threshold float64  `json:"threshold"`
}

// POST /api/projects/:project_id/coding/candidates/check
func (h *CodingHandler) CheckBatch(c *gin.Context) {
	projectID, _ := scope(c)
	var req checkRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.coding.CheckBatch(c.Request.Context(), coding.CheckBatchInput{
		ProjectID: projectID,
		Codes:     req.Codes,
		Threshold: req.Threshold,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

type transitionRequest struct {
	Memo  *string `json:"memo"`
	Clear bool    `json:"clear"`
}

func (h *CodingHandler) transitionInput(c *gin.Context) (coding.TransitionInput, transitionRequest, bool) {
	projectID, actor := scope(c)
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_candidate_id", err)
		return coding.TransitionInput{}, transitionRequest{}, false
	}
	var req transitionRequest
	if !bindOptionalJSON(c, &req) {
		return coding.TransitionInput{}, transitionRequest{}, false
	}
	return coding.TransitionInput{ProjectID: projectID, CandidateID: id, Actor: actor, Memo: req.Memo}, req, true
}

// GET /api/projects/:project_id/coding/candidates/:id
func (h *CodingHandler) GetCandidate(c *gin.Context) {
	projectID, _ := scope(c)
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_candidate_id", err)
		return
	}
	out, err := h.coding.GetCandidate(c.Request.Context(), projectID, id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// POST /api/projects/:project_id/coding/candidates/:id/validate
func (h *CodingHandler) ValidateCandidate(c *gin.Context) {
	in, _, ok := h.transitionInput(c)
	if !ok {
		return
	}
	out, err := h.coding.ValidateCandidate(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// POST /api/projects/:project_id/coding/candidates/:id/reject
func (h *CodingHandler) RejectCandidate(c *gin.Context) {
	in, _, ok := h.transitionInput(c)
	if !ok {
		return
	}
	out, err := h.coding.RejectCandidate(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// POST /api/projects/:project_id/coding/candidates/:id/hypothesis
// {"clear": true} moves the candidate back to pending.
func (h *CodingHandler) MarkHypothesis(c *gin.Context) {
	in, req, ok := h.transitionInput(c)
	if !ok {
		return
	}
	out, err := h.coding.MarkHypothesis(c.Request.Context(), in, req.Clear)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

type revertRequest struct {
	Memo   *string `json:"memo"`
	DryRun bool    `json:"dry_run"`
}

// POST /api/projects/:project_id/coding/candidates/revert-validated
func (h *CodingHandler) RevertValidated(c *gin.Context) {
	projectID, actor := scope(c)
	var req revertRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	out, err := h.coding.RevertValidated(c.Request.Context(), coding.RevertValidatedInput{
		ProjectID: projectID,
		Actor:     actor,
		Memo:      req.Memo,
		DryRun:    req.DryRun,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

type mergeRequest struct {
	SourceIDs      []uuid.UUID `json:"source_ids"`
	TargetCodeText string      `json:"target_code_text"`
	Memo           *string     `json:"memo"`
	DryRun         bool        `json:"dry_run"`
	IdempotencyKey string      `json:"idempotency_key"`
}

// POST /api/projects/:project_id/coding/merge
func (h *CodingHandler) MergeCandidates(c *gin.Context) {
	projectID, actor := scope(c)
	var req mergeRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.coding.MergeCandidates(c.Request.Context(), coding.MergeCandidatesInput{
		ProjectID:      projectID,
		SourceIDs:      req.SourceIDs,
		TargetCodeText: req.TargetCodeText,
		Memo:           req.Memo,
		DryRun:         req.DryRun,
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
		Actor:          actor,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

type autoMergeRequest struct {
	Pairs          []domainagg.MergePair `json:"pairs"`
	Memo           *string               `json:"memo"`
	DryRun         bool                  `json:"dry_run"`
	IdempotencyKey string                `json:"idempotency_key"`
}

// POST /api/projects/:project_id/coding/auto-merge
func (h *CodingHandler) AutoMerge(c *gin.Context) {
	projectID, actor := scope(c)
	var req autoMergeRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.coding.AutoMerge(c.Request.Context(), coding.AutoMergeInput{
		ProjectID:      projectID,
		Pairs:          req.Pairs,
		Memo:           req.Memo,
		DryRun:         req.DryRun,
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
		Actor:          actor,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// GET /api/projects/:project_id/coding/duplicates?threshold=0.8
func (h *CodingHandler) DetectDuplicates(c *gin.Context) {
	projectID, _ := scope(c)
	threshold, ok := queryFloat(c, "threshold")
	if !ok {
		return
	}
	out, err := h.coding.DetectDuplicates(c.Request.Context(), coding.DetectDuplicatesInput{
		ProjectID: projectID,
		Threshold: threshold,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

type promoteRequest struct {
	CandidateIDs        []uuid.UUID `json:"candidate_ids"`
	PromoteAllValidated bool        `json:"promote_all_validated"`
	Async               bool        `json:"async"`
}

// POST /api/projects/:project_id/coding/promote
// Queued promotions answer 202 with the job id.
func (h *CodingHandler) Promote(c *gin.Context) {
	projectID, actor := scope(c)
	var req promoteRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.coding.Promote(c.Request.Context(), coding.PromoteInput{
		ProjectID:           projectID,
		CandidateIDs:        req.CandidateIDs,
		PromoteAllValidated: req.PromoteAllValidated,
		Actor:               actor,
		Async:               req.Async,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if out.Queued {
		response.RespondAccepted(c, out)
		return
	}
	response.RespondOK(c, out)
}

type syncGraphRequest struct {
	OnlyUnsynced *bool `json:"only_unsynced"`
}

// POST /api/projects/:project_id/coding/graph/sync
// Defaults to replaying unsynced rows only.
func (h *CodingHandler) SyncGraph(c *gin.Context) {
	projectID, _ := scope(c)
	var req syncGraphRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	onlyUnsynced := true
	if req.OnlyUnsynced != nil {
		onlyUnsynced = *req.OnlyUnsynced
	}
	out, err := h.coding.SyncGraph(c.Request.Context(), coding.SyncGraphInput{
		ProjectID:    projectID,
		OnlyUnsynced: onlyUnsynced,
		Trigger:      coding.SyncTriggerManual,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// GET /api/projects/:project_id/coding/graph/audit
func (h *CodingHandler) Audit(c *gin.Context) {
	projectID, _ := scope(c)
	out, err := h.coding.Audit(c.Request.Context(), projectID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// GET /api/projects/:project_id/coding/backlog/health?max_days=7&max_count=200
func (h *CodingHandler) BacklogHealth(c *gin.Context) {
	projectID, _ := scope(c)
	maxDays, ok := queryInt(c, "max_days", 0)
	if !ok {
		return
	}
	maxCount, ok := queryInt(c, "max_count", 0)
	if !ok {
		return
	}
	out, err := h.coding.BacklogHealth(c.Request.Context(), coding.BacklogHealthInput{
		ProjectID: projectID,
		MaxDays:   maxDays,
		MaxCount:  maxCount,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// GET /api/projects/:project_id/coding/codes/history?code_text=...
func (h *CodingHandler) CodeHistory(c *gin.Context) {
	projectID, _ := scope(c)
	out, err := h.coding.CodeHistory(c.Request.Context(), projectID, c.Query("code_text"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}
