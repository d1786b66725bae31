package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/FlorentDgrs/Dvoting/internal/domain"
)

// CallerHeader carries the identity of the account making a request
const CallerHeader = "X-Caller-Address"

// maxBodySize bounds request bodies
const maxBodySize = 16 << 10

// Response is a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// WrongPhaseDetails are the details of a WRONG_PHASE error
type WrongPhaseDetails struct {
	Actual       domain.Phase `json:"actual"`
	ActualName   string       `json:"actualName"`
	Expected     domain.Phase `json:"expected"`
	ExpectedName string       `json:"expectedName"`
}

// ProposalNotFoundDetails are the details of a PROPOSAL_NOT_FOUND error
type ProposalNotFoundDetails struct {
	ProposalID    uint64 `json:"proposalId"`
	ProposalCount uint64 `json:"proposalCount"`
}

// RegisterVoterRequest is the body of POST /api/voters
type RegisterVoterRequest struct {
	Address string `json:"address"`
}

// AddProposalRequest is the body of POST /api/proposals
type AddProposalRequest struct {
	Description string `json:"description"`
}

// CastVoteRequest is the body of POST /api/votes
type CastVoteRequest struct {
	ProposalID *uint64 `json:"proposalId"`
}

// AddProposalResponse is the response for proposal submission
type AddProposalResponse struct {
	ProposalID uint64 `json:"proposalId"`
}

// ListVotersResponse is the response for the voter listing
type ListVotersResponse struct {
	Count  int                `json:"count"`
	Voters []domain.VoterInfo `json:"voters"`
}

// ListProposalsResponse is the response for the proposal listing
type ListProposalsResponse struct {
	Count     int               `json:"count"`
	Proposals []domain.Proposal `json:"proposals"`
}

// NotificationsResponse is the response for the polling endpoint
type NotificationsResponse struct {
	LastSeq       uint64          `json:"lastSeq"`
	Notifications []*domain.Event `json:"notifications"`
}

// PhaseResponse is returned by workflow actions
type PhaseResponse struct {
	Previous  domain.Phase `json:"previous"`
	Phase     domain.Phase `json:"phase"`
	PhaseName string       `json:"phaseName"`
}

// HealthResponse is the response for health check
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth handles GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendSuccess(w, http.StatusOK, &HealthResponse{
		Status: "ok",
	})
}

// handleGetElection handles GET /api/election
func (s *Server) handleGetElection(w http.ResponseWriter, r *http.Request) {
	s.sendSuccess(w, http.StatusOK, s.ledger.GetSnapshot())
}

// handleListVoters handles GET /api/voters
func (s *Server) handleListVoters(w http.ResponseWriter, r *http.Request) {
	voters := s.ledger.GetVoters()
	s.sendSuccess(w, http.StatusOK, &ListVotersResponse{
		Count:  len(voters),
		Voters: voters,
	})
}

// handleGetVoterAt handles GET /api/voters/{index}
func (s *Server) handleGetVoterAt(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "INVALID_INDEX", "Voter index must be an integer")
		return
	}

	voter, err := s.ledger.GetVoterAt(index)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	s.sendSuccess(w, http.StatusOK, &voter)
}

// handleGetVoterByAddress handles GET /api/voters/address/{address}
func (s *Server) handleGetVoterByAddress(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(r.PathValue("address"))
	if !ok {
		s.sendError(w, http.StatusBadRequest, "INVALID_ADDRESS", "Address must be a 20-byte hex string")
		return
	}

	s.sendSuccess(w, http.StatusOK, &domain.VoterInfo{
		Address: addr,
		Voter:   s.ledger.GetVoter(addr),
	})
}

// handleListProposals handles GET /api/proposals
func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	includeGenesis, _ := strconv.ParseBool(r.URL.Query().Get("includeGenesis"))
	proposals := s.ledger.GetProposals(includeGenesis)
	s.sendSuccess(w, http.StatusOK, &ListProposalsResponse{
		Count:     len(proposals),
		Proposals: proposals,
	})
}

// handleGetProposal handles GET /api/proposals/{id}
func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "INVALID_PROPOSAL_ID", "Proposal id must be a non-negative integer")
		return
	}

	proposal, err := s.ledger.GetProposal(id)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	s.sendSuccess(w, http.StatusOK, &proposal)
}

// handleNotifications handles GET /api/notifications
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var after uint64
	if v := query.Get("after"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			s.sendError(w, http.StatusBadRequest, "INVALID_QUERY", "after must be a non-negative integer")
			return
		}
		after = parsed
	}

	limit := 0
	if v := query.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			s.sendError(w, http.StatusBadRequest, "INVALID_QUERY", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	s.sendSuccess(w, http.StatusOK, &NotificationsResponse{
		LastSeq:       s.ledger.LastSeq(),
		Notifications: s.ledger.Notifications(after, limit),
	})
}

// handleRegisterVoter handles POST /api/voters
func (s *Server) handleRegisterVoter(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req RegisterVoterRequest
	if !s.decode(w, r, &req) {
		return
	}

	voter, ok := parseAddress(req.Address)
	if !ok {
		s.sendError(w, http.StatusBadRequest, "INVALID_ADDRESS", "Address must be a 20-byte hex string")
		return
	}

	info, err := s.ledger.RegisterVoter(caller, voter)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	s.sendSuccess(w, http.StatusCreated, &info)
}

// handleAddProposal handles POST /api/proposals
func (s *Server) handleAddProposal(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req AddProposalRequest
	if !s.decode(w, r, &req) {
		return
	}

	id, err := s.ledger.AddProposal(caller, req.Description)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	s.sendSuccess(w, http.StatusCreated, &AddProposalResponse{ProposalID: id})
}

// handleCastVote handles POST /api/votes
func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req CastVoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ProposalID == nil {
		s.sendError(w, http.StatusBadRequest, "INVALID_REQUEST", "proposalId is required")
		return
	}

	info, err := s.ledger.CastVote(caller, *req.ProposalID)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	s.sendSuccess(w, http.StatusOK, &info)
}

// handleWorkflow handles POST /api/workflow/{action}
func (s *Server) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var apply func(common.Address) (domain.Transition, error)
	switch r.PathValue("action") {
	case "start-proposals":
		apply = s.ledger.StartProposalsRegistering
	case "end-proposals":
		apply = s.ledger.EndProposalsRegistering
	case "start-voting":
		apply = s.ledger.StartVotingSession
	case "end-voting":
		apply = s.ledger.EndVotingSession
	case "tally":
		apply = s.ledger.TallyVotes
	default:
		s.sendError(w, http.StatusNotFound, "UNKNOWN_ACTION", "Unknown workflow action")
		return
	}

	t, err := apply(caller)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	s.sendSuccess(w, http.StatusOK, &PhaseResponse{
		Previous:  t.From,
		Phase:     t.To,
		PhaseName: t.To.String(),
	})
}

// handleReset handles POST /api/reset
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	snap, err := s.ledger.Reset(caller)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	s.sendSuccess(w, http.StatusOK, snap)
}

// caller extracts the caller identity from the request header
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := r.Header.Get(CallerHeader)
	if raw == "" {
		s.sendError(w, http.StatusUnauthorized, "MISSING_CALLER", CallerHeader+" header is required")
		return common.Address{}, false
	}

	addr, ok := parseAddress(raw)
	if !ok {
		s.sendError(w, http.StatusBadRequest, "INVALID_ADDRESS", "Caller address must be a 20-byte hex string")
		return common.Address{}, false
	}

	return addr, true
}

// decode reads a JSON body into dst
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.sendError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return false
	}
	return true
}

// parseAddress parses a hex account address
func parseAddress(raw string) (common.Address, bool) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// sendDomainError translates a ledger error into an API error
func (s *Server) sendDomainError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("unexpected ledger error", "error", err)
		s.sendError(w, status, code, "Internal server error")
		return
	}
	s.sendErrorDetails(w, status, code, err.Error(), errorDetails(err))
}

// errorDetails extracts the structured values carried by typed domain errors
func errorDetails(err error) interface{} {
	var wrongPhase *domain.WrongPhaseError
	if errors.As(err, &wrongPhase) {
		return &WrongPhaseDetails{
			Actual:       wrongPhase.Actual,
			ActualName:   wrongPhase.Actual.String(),
			Expected:     wrongPhase.Expected,
			ExpectedName: wrongPhase.Expected.String(),
		}
	}

	var notFound *domain.ProposalNotFoundError
	if errors.As(err, &notFound) {
		return &ProposalNotFoundDetails{
			ProposalID:    notFound.ProposalID,
			ProposalCount: notFound.Count,
		}
	}

	return nil
}

// errorStatus maps domain errors to HTTP status codes and error codes
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrWrongPhase):
		return http.StatusConflict, "WRONG_PHASE"
	case errors.Is(err, domain.ErrAlreadyRegistered):
		return http.StatusConflict, "ALREADY_REGISTERED"
	case errors.Is(err, domain.ErrCapacityExceeded):
		return http.StatusConflict, "CAPACITY_EXCEEDED"
	case errors.Is(err, domain.ErrNotAVoter):
		return http.StatusForbidden, "NOT_A_VOTER"
	case errors.Is(err, domain.ErrEmptyDescription):
		return http.StatusBadRequest, "EMPTY_DESCRIPTION"
	case errors.Is(err, domain.ErrAlreadyVoted):
		return http.StatusConflict, "ALREADY_VOTED"
	case errors.Is(err, domain.ErrProposalNotFound):
		return http.StatusNotFound, "PROPOSAL_NOT_FOUND"
	case errors.Is(err, domain.ErrIndexOutOfRange):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrInvalidIdentity):
		return http.StatusBadRequest, "INVALID_ADDRESS"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// sendSuccess sends a successful JSON response
func (s *Server) sendSuccess(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&Response{
		Success: true,
		Data:    data,
	})
}

// sendError sends an error JSON response
func (s *Server) sendError(w http.ResponseWriter, status int, code, message string) {
	s.sendErrorDetails(w, status, code, message, nil)
}

// sendErrorDetails sends an error JSON response with optional details
func (s *Server) sendErrorDetails(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}
