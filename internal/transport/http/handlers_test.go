package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlorentDgrs/Dvoting/internal/app"
	"github.com/FlorentDgrs/Dvoting/internal/config"
	"github.com/FlorentDgrs/Dvoting/internal/domain"
)

var (
	admin  = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	voter1 = common.HexToAddress("0x0000000000000000000000000000000000000001")
	voter2 = common.HexToAddress("0x0000000000000000000000000000000000000002")
	voter3 = common.HexToAddress("0x0000000000000000000000000000000000000003")
)

// apiResponse mirrors Response with the payload left raw
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorInfo      `json:"error"`
}

type testAPI struct {
	t       *testing.T
	handler http.Handler
	ledger  *app.Ledger
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	cfg := &config.Config{
		Server:   config.ServerConfig{Port: "0", Host: "127.0.0.1", Env: "development"},
		Election: config.ElectionConfig{AdminAddress: admin.Hex(), MaxVoters: 10},
		Logging:  config.LoggingConfig{Level: "info", Format: "text"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ledger := app.NewLedger(cfg.Admin(), cfg.Election.MaxVoters, logger)
	t.Cleanup(ledger.Close)

	return &testAPI{
		t:       t,
		handler: NewServer(cfg, ledger, logger).Handler(),
		ledger:  ledger,
	}
}

func (a *testAPI) do(method, path string, caller *common.Address, body interface{}) (*httptest.ResponseRecorder, apiResponse) {
	a.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if caller != nil {
		req.Header.Set(CallerHeader, caller.Hex())
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var resp apiResponse
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

// ok performs a request that must succeed and decodes its data into dst
func (a *testAPI) ok(method, path string, caller *common.Address, body, dst interface{}) {
	a.t.Helper()

	rec, resp := a.do(method, path, caller, body)
	require.True(a.t, resp.Success, rec.Body.String())
	require.Less(a.t, rec.Code, 300)
	if dst != nil {
		require.NoError(a.t, json.Unmarshal(resp.Data, dst))
	}
}

// fail performs a request that must fail with the given status and code
func (a *testAPI) fail(method, path string, caller *common.Address, body interface{}, status int, code string) {
	a.t.Helper()

	rec, resp := a.do(method, path, caller, body)
	assert.Equal(a.t, status, rec.Code, rec.Body.String())
	assert.False(a.t, resp.Success)
	require.NotNil(a.t, resp.Error)
	assert.Equal(a.t, code, resp.Error.Code)
}

func addr(a common.Address) *common.Address { return &a }

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	var health HealthResponse
	api.ok(http.MethodGet, "/api/health", nil, nil, &health)
	assert.Equal(t, "ok", health.Status)
}

func TestFullElectionWorkflow(t *testing.T) {
	api := newTestAPI(t)

	for _, v := range []common.Address{voter1, voter2, voter3} {
		var voter domain.VoterInfo
		api.ok(http.MethodPost, "/api/voters", addr(admin), RegisterVoterRequest{Address: v.Hex()}, &voter)
		assert.Equal(t, v, voter.Address)
		assert.True(t, voter.IsRegistered)
	}

	var phase PhaseResponse
	api.ok(http.MethodPost, "/api/workflow/start-proposals", addr(admin), nil, &phase)
	assert.Equal(t, domain.PhaseRegisteringVoters, phase.Previous)
	assert.Equal(t, domain.PhaseProposalsRegistrationStarted, phase.Phase)
	assert.Equal(t, "ProposalsRegistrationStarted", phase.PhaseName)

	var added AddProposalResponse
	api.ok(http.MethodPost, "/api/proposals", addr(voter1), AddProposalRequest{Description: "Proposal 1"}, &added)
	assert.Equal(t, uint64(1), added.ProposalID)
	api.ok(http.MethodPost, "/api/proposals", addr(voter2), AddProposalRequest{Description: "Proposal 2"}, &added)
	assert.Equal(t, uint64(2), added.ProposalID)

	api.ok(http.MethodPost, "/api/workflow/end-proposals", addr(admin), nil, nil)
	api.ok(http.MethodPost, "/api/workflow/start-voting", addr(admin), nil, nil)

	votes := map[common.Address]uint64{voter1: 2, voter2: 2, voter3: 1}
	for v, id := range votes {
		var voter domain.VoterInfo
		api.ok(http.MethodPost, "/api/votes", addr(v), CastVoteRequest{ProposalID: &id}, &voter)
		assert.True(t, voter.HasVoted)
		assert.Equal(t, id, voter.VotedProposalID)
	}

	api.ok(http.MethodPost, "/api/workflow/end-voting", addr(admin), nil, nil)
	api.ok(http.MethodPost, "/api/workflow/tally", addr(admin), nil, &phase)
	assert.Equal(t, domain.PhaseVotingSessionEnded, phase.Previous)
	assert.Equal(t, domain.PhaseVotesTallied, phase.Phase)

	var snap app.Snapshot
	api.ok(http.MethodGet, "/api/election", nil, nil, &snap)
	assert.Equal(t, domain.PhaseVotesTallied, snap.Phase)
	assert.Equal(t, uint64(2), snap.WinningProposalID)
	assert.True(t, snap.Finalized)
	assert.Equal(t, 3, snap.VoterCount)
	assert.Equal(t, 3, snap.ProposalCount)
	assert.Equal(t, admin, snap.Admin)

	var proposal domain.Proposal
	api.ok(http.MethodGet, "/api/proposals/2", nil, nil, &proposal)
	assert.Equal(t, "Proposal 2", proposal.Description)
	assert.Equal(t, uint64(2), proposal.VoteCount)

	var voter domain.VoterInfo
	api.ok(http.MethodGet, "/api/voters/2", nil, nil, &voter)
	assert.Equal(t, voter3, voter.Address)
	assert.Equal(t, uint64(1), voter.VotedProposalID)

	api.ok(http.MethodGet, "/api/voters/address/"+voter1.Hex(), nil, nil, &voter)
	assert.True(t, voter.HasVoted)

	var voters ListVotersResponse
	api.ok(http.MethodGet, "/api/voters", nil, nil, &voters)
	assert.Equal(t, 3, voters.Count)

	// Reset starts the next round from scratch
	api.ok(http.MethodPost, "/api/reset", addr(admin), nil, &snap)
	assert.Equal(t, domain.PhaseRegisteringVoters, snap.Phase)
	assert.Equal(t, uint64(2), snap.Round)
	assert.Zero(t, snap.VoterCount)
	assert.Zero(t, snap.ProposalCount)
	assert.False(t, snap.Finalized)

	api.ok(http.MethodGet, "/api/voters/address/"+voter1.Hex(), nil, nil, &voter)
	assert.False(t, voter.IsRegistered)
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t)

	// Caller header
	api.fail(http.MethodPost, "/api/voters", nil, RegisterVoterRequest{Address: voter1.Hex()},
		http.StatusUnauthorized, "MISSING_CALLER")

	req := httptest.NewRequest(http.MethodPost, "/api/workflow/start-proposals", nil)
	req.Header.Set(CallerHeader, "not-an-address")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_ADDRESS")

	// Registration
	api.fail(http.MethodPost, "/api/voters", addr(voter1), RegisterVoterRequest{Address: voter2.Hex()},
		http.StatusForbidden, "UNAUTHORIZED")
	api.fail(http.MethodPost, "/api/voters", addr(admin), RegisterVoterRequest{Address: "0x12"},
		http.StatusBadRequest, "INVALID_ADDRESS")
	api.fail(http.MethodPost, "/api/voters", addr(admin), RegisterVoterRequest{Address: common.Address{}.Hex()},
		http.StatusBadRequest, "INVALID_ADDRESS")
	api.ok(http.MethodPost, "/api/voters", addr(admin), RegisterVoterRequest{Address: voter1.Hex()}, nil)
	api.fail(http.MethodPost, "/api/voters", addr(admin), RegisterVoterRequest{Address: voter1.Hex()},
		http.StatusConflict, "ALREADY_REGISTERED")
	api.fail(http.MethodPost, "/api/voters", addr(admin), map[string]string{"voter": voter2.Hex()},
		http.StatusBadRequest, "INVALID_REQUEST")

	// Proposals
	api.fail(http.MethodPost, "/api/proposals", addr(voter1), AddProposalRequest{Description: "early"},
		http.StatusConflict, "WRONG_PHASE")
	api.ok(http.MethodPost, "/api/workflow/start-proposals", addr(admin), nil, nil)
	api.fail(http.MethodPost, "/api/proposals", addr(voter2), AddProposalRequest{Description: "outsider"},
		http.StatusForbidden, "NOT_A_VOTER")
	api.fail(http.MethodPost, "/api/proposals", addr(voter1), AddProposalRequest{Description: "   "},
		http.StatusBadRequest, "EMPTY_DESCRIPTION")
	api.fail(http.MethodPost, "/api/voters", addr(admin), RegisterVoterRequest{Address: voter2.Hex()},
		http.StatusConflict, "WRONG_PHASE")
	api.ok(http.MethodPost, "/api/proposals", addr(voter1), AddProposalRequest{Description: "Proposal 1"}, nil)

	// Workflow
	api.fail(http.MethodPost, "/api/workflow/start-voting", addr(admin), nil,
		http.StatusConflict, "WRONG_PHASE")
	api.fail(http.MethodPost, "/api/workflow/end-proposals", addr(voter1), nil,
		http.StatusForbidden, "UNAUTHORIZED")
	api.fail(http.MethodPost, "/api/workflow/launch", addr(admin), nil,
		http.StatusNotFound, "UNKNOWN_ACTION")
	api.ok(http.MethodPost, "/api/workflow/end-proposals", addr(admin), nil, nil)
	api.ok(http.MethodPost, "/api/workflow/start-voting", addr(admin), nil, nil)

	// Voting
	missing := uint64(9)
	api.fail(http.MethodPost, "/api/votes", addr(voter1), CastVoteRequest{ProposalID: &missing},
		http.StatusNotFound, "PROPOSAL_NOT_FOUND")
	api.fail(http.MethodPost, "/api/votes", addr(voter1), CastVoteRequest{},
		http.StatusBadRequest, "INVALID_REQUEST")
	one := uint64(1)
	api.fail(http.MethodPost, "/api/votes", addr(voter2), CastVoteRequest{ProposalID: &one},
		http.StatusForbidden, "NOT_A_VOTER")
	api.ok(http.MethodPost, "/api/votes", addr(voter1), CastVoteRequest{ProposalID: &one}, nil)
	api.fail(http.MethodPost, "/api/votes", addr(voter1), CastVoteRequest{ProposalID: &one},
		http.StatusConflict, "ALREADY_VOTED")

	// Queries
	api.fail(http.MethodGet, "/api/voters/7", nil, nil, http.StatusNotFound, "NOT_FOUND")
	api.fail(http.MethodGet, "/api/voters/x", nil, nil, http.StatusBadRequest, "INVALID_INDEX")
	api.fail(http.MethodGet, "/api/voters/address/0xzz", nil, nil, http.StatusBadRequest, "INVALID_ADDRESS")
	api.fail(http.MethodGet, "/api/proposals/5", nil, nil, http.StatusNotFound, "NOT_FOUND")
	api.fail(http.MethodGet, "/api/proposals/-1", nil, nil, http.StatusBadRequest, "INVALID_PROPOSAL_ID")

	// Reset
	api.fail(http.MethodPost, "/api/reset", addr(voter1), nil, http.StatusForbidden, "UNAUTHORIZED")
}

func TestListProposalsGenesis(t *testing.T) {
	api := newTestAPI(t)

	api.ok(http.MethodPost, "/api/voters", addr(admin), RegisterVoterRequest{Address: voter1.Hex()}, nil)
	api.ok(http.MethodPost, "/api/workflow/start-proposals", addr(admin), nil, nil)
	api.ok(http.MethodPost, "/api/proposals", addr(voter1), AddProposalRequest{Description: "Proposal 1"}, nil)

	var list ListProposalsResponse
	api.ok(http.MethodGet, "/api/proposals", nil, nil, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, uint64(1), list.Proposals[0].ID)

	api.ok(http.MethodGet, "/api/proposals?includeGenesis=true", nil, nil, &list)
	require.Equal(t, 2, list.Count)
	assert.Equal(t, domain.GenesisDescription, list.Proposals[0].Description)

	var genesis domain.Proposal
	api.ok(http.MethodGet, "/api/proposals/0", nil, nil, &genesis)
	assert.True(t, genesis.IsGenesis())
}

func TestNotificationsPolling(t *testing.T) {
	api := newTestAPI(t)

	for _, v := range []common.Address{voter1, voter2, voter3} {
		api.ok(http.MethodPost, "/api/voters", addr(admin), RegisterVoterRequest{Address: v.Hex()}, nil)
	}
	api.ok(http.MethodPost, "/api/workflow/start-proposals", addr(admin), nil, nil)

	var page struct {
		LastSeq       uint64 `json:"lastSeq"`
		Notifications []struct {
			Seq     uint64           `json:"seq"`
			Type    domain.EventType `json:"type"`
			Payload json.RawMessage  `json:"payload"`
		} `json:"notifications"`
	}

	api.ok(http.MethodGet, "/api/notifications", nil, nil, &page)
	assert.Equal(t, uint64(4), page.LastSeq)
	require.Len(t, page.Notifications, 4)
	assert.Equal(t, domain.EventVoterRegistered, page.Notifications[0].Type)
	assert.Equal(t, domain.EventPhaseChanged, page.Notifications[3].Type)
	assert.JSONEq(t, `{"previous":0,"next":1}`, string(page.Notifications[3].Payload))

	api.ok(http.MethodGet, "/api/notifications?after=1&limit=2", nil, nil, &page)
	require.Len(t, page.Notifications, 2)
	assert.Equal(t, uint64(2), page.Notifications[0].Seq)
	assert.Equal(t, uint64(3), page.Notifications[1].Seq)

	api.ok(http.MethodGet, "/api/notifications?after=4", nil, nil, &page)
	assert.Empty(t, page.Notifications)

	api.fail(http.MethodGet, "/api/notifications?after=-2", nil, nil, http.StatusBadRequest, "INVALID_QUERY")
	api.fail(http.MethodGet, "/api/notifications?limit=x", nil, nil, http.StatusBadRequest, "INVALID_QUERY")
}

func TestMiddleware(t *testing.T) {
	api := newTestAPI(t)

	rec, _ := api.do(http.MethodGet, "/api/health", nil, nil)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodOptions, "/api/voters", nil)
	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), CallerHeader)
}

func TestErrorDetails(t *testing.T) {
	api := newTestAPI(t)

	// Typed ledger errors carry their values as structured details
	_, resp := api.do(http.MethodPost, "/api/workflow/end-voting", addr(admin), nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "WRONG_PHASE", resp.Error.Code)
	assert.Equal(t, map[string]interface{}{
		"actual":       float64(domain.PhaseRegisteringVoters),
		"actualName":   "RegisteringVoters",
		"expected":     float64(domain.PhaseVotingSessionStarted),
		"expectedName": "VotingSessionStarted",
	}, resp.Error.Details)

	api.ok(http.MethodPost, "/api/voters", addr(admin), RegisterVoterRequest{Address: voter1.Hex()}, nil)
	api.ok(http.MethodPost, "/api/workflow/start-proposals", addr(admin), nil, nil)
	api.ok(http.MethodPost, "/api/workflow/end-proposals", addr(admin), nil, nil)
	api.ok(http.MethodPost, "/api/workflow/start-voting", addr(admin), nil, nil)

	missing := uint64(7)
	_, resp = api.do(http.MethodPost, "/api/votes", addr(voter1), CastVoteRequest{ProposalID: &missing})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "PROPOSAL_NOT_FOUND", resp.Error.Code)
	assert.Equal(t, map[string]interface{}{
		"proposalId":    float64(7),
		"proposalCount": float64(1),
	}, resp.Error.Details)

	// Errors without values have no details
	_, resp = api.do(http.MethodPost, "/api/reset", addr(voter1), nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
	assert.Nil(t, resp.Error.Details)
}
