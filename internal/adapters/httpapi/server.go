package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ironledger/memberd/internal/app/members"
	"github.com/ironledger/memberd/internal/domain"
)

// Server is the HTTP adapter over the member service. It is a thin layer:
// decode, delegate, encode; all policy lives in the application layer.
type Server struct {
	Members *members.Service
}

func NewServer(svc *members.Service) *Server {
	return &Server{Members: svc}
}

func (s *Server) ListMembers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := members.FilterState{
		Search: q.Get("search"),
		Status: domain.Status(q.Get("status")),
		Gender: domain.Gender(q.Get("gender")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, r, http.StatusUnprocessableEntity, members.CodeValidationRejected, "invalid status filter", map[string]any{"status": q.Get("status")})
		return
	}
	if filter.Gender != "" && !filter.Gender.Valid() {
		writeError(w, r, http.StatusUnprocessableEntity, members.CodeValidationRejected, "invalid gender filter", map[string]any{"gender": q.Get("gender")})
		return
	}
	sort := members.SortState{Field: q.Get("orderBy"), Direction: q.Get("orderDirection")}
	page := members.PageState{Page: intParam(q.Get("page")), PageSize: intParam(q.Get("pageSize"))}

	result, err := s.Members.ListMembers(r.Context(), filter, sort, page)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	out := listMembersResponse{Members: make([]memberResponse, 0, len(result.Members)), Total: result.Total}
	for _, m := range result.Members {
		out.Members = append(out.Members, toMemberResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req createMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed request body", nil)
		return
	}
	m, err := s.Members.Create(r.Context(), req.toInput())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberResponse(m))
}

func (s *Server) GetMember(w http.ResponseWriter, r *http.Request) {
	id := domain.MemberID(chi.URLParam(r, "memberID"))
	m, err := s.Members.GetMember(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberResponse(m))
}

func (s *Server) UpdateMember(w http.ResponseWriter, r *http.Request) {
	id := domain.MemberID(chi.URLParam(r, "memberID"))
	var req updateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed request body", nil)
		return
	}
	m, err := s.Members.Update(r.Context(), id, req.toInput())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberResponse(m))
}

func (s *Server) UpdateMemberStatus(w http.ResponseWriter, r *http.Request) {
	id := domain.MemberID(chi.URLParam(r, "memberID"))
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed request body", nil)
		return
	}
	m, err := s.Members.UpdateStatus(r.Context(), id, domain.Status(req.Status), req.Confirmed)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberResponse(m))
}

func (s *Server) DeleteMember(w http.ResponseWriter, r *http.Request) {
	id := domain.MemberID(chi.URLParam(r, "memberID"))
	if err := s.Members.Delete(r.Context(), id); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) BulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req bulkStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed request body", nil)
		return
	}
	outcome, err := s.Members.BulkUpdateStatus(r.Context(), toMemberIDs(req.IDs), domain.Status(req.Status), req.Confirmed)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeBulkOutcome(w, outcome, len(req.IDs), "updated")
}

func (s *Server) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed request body", nil)
		return
	}
	outcome, err := s.Members.BulkDelete(r.Context(), toMemberIDs(req.IDs))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeBulkOutcome(w, outcome, len(req.IDs), "deleted")
}

func (s *Server) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Members.Stats(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	out := statsResponse{Total: stats.Total, ByStatus: make(map[string]int, len(stats.ByStatus))}
	for status, n := range stats.ByStatus {
		out.ByStatus[string(status)] = n
	}
	writeJSON(w, http.StatusOK, out)
}

// writeBulkOutcome reports the per-id split. Partial failures get 207 and a
// message stating counts, never a generic failure after a partial success.
func writeBulkOutcome(w http.ResponseWriter, outcome members.BulkOutcome, requested int, verb string) {
	resp := bulkResponse{
		Succeeded: make([]string, 0, len(outcome.Succeeded)),
		Failed:    make([]string, 0, len(outcome.Failed)),
		Message:   fmt.Sprintf("%d of %d %s", len(outcome.Succeeded), requested, verb),
	}
	for _, id := range outcome.Succeeded {
		resp.Succeeded = append(resp.Succeeded, string(id))
	}
	for _, id := range outcome.Failed {
		resp.Failed = append(resp.Failed, string(id))
	}
	status := http.StatusOK
	if !outcome.FullySucceeded() {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func toMemberIDs(ids []string) []domain.MemberID {
	out := make([]domain.MemberID, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.MemberID(id))
	}
	return out
}

func intParam(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
