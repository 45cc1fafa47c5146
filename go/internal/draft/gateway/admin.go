package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/mcdev12/staffdraft/go/internal/draft/engine"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	AdminServiceName = "staffdraft.admin.v1.AdminService"
	AdminServicePath = "/" + AdminServiceName + "/"

	StartDraftProcedure      = AdminServicePath + "StartDraft"
	EndDraftProcedure        = AdminServicePath + "EndDraft"
	KickParticipantProcedure = AdminServicePath + "KickParticipant"
	GetDraftStateProcedure   = AdminServicePath + "GetDraftState"
)

// AdminService exposes draft administration over connect. Messages are
// protobuf well-known types so no generated code is needed.
type AdminService struct {
	engine   DraftEngine
	adminKey string
}

// NewAdminService creates the admin service. An empty adminKey rejects every
// call.
func NewAdminService(eng DraftEngine, adminKey string) *AdminService {
	return &AdminService{engine: eng, adminKey: adminKey}
}

// StartDraft starts the draft with the current lobby.
func (s *AdminService) StartDraft(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	if err := s.engine.Start(ctx); err != nil {
		return nil, connectError(err)
	}
	log.Info().Msg("draft started by administrator")
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// EndDraft ends the running draft and waits for the final sync.
func (s *AdminService) EndDraft(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	if err := s.engine.End(ctx); err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// KickParticipant removes a participant from the lobby or the draft.
func (s *AdminService) KickParticipant(_ context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[emptypb.Empty], error) {
	participantID := req.Msg.GetValue()
	if participantID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("participant id is required"))
	}
	if err := s.engine.Kick(participantID); err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// GetDraftState returns the draft snapshot as a JSON-shaped struct.
func (s *AdminService) GetDraftState(_ context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	state, err := snapshotStruct(s.engine)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(state), nil
}

func snapshotStruct(p StateProvider) (*structpb.Struct, error) {
	data, err := json.Marshal(p.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return structpb.NewStruct(m)
}

// Handler returns the service path and its handler for mounting on a mux.
func (s *AdminService) Handler() (string, http.Handler) {
	opts := connect.WithInterceptors(s.authInterceptor())

	mux := http.NewServeMux()
	mux.Handle(StartDraftProcedure, connect.NewUnaryHandler(StartDraftProcedure, s.StartDraft, opts))
	mux.Handle(EndDraftProcedure, connect.NewUnaryHandler(EndDraftProcedure, s.EndDraft, opts))
	mux.Handle(KickParticipantProcedure, connect.NewUnaryHandler(KickParticipantProcedure, s.KickParticipant, opts))
	mux.Handle(GetDraftStateProcedure, connect.NewUnaryHandler(GetDraftStateProcedure, s.GetDraftState, opts))
	return AdminServicePath, mux
}

// authInterceptor requires "Authorization: Bearer <admin key>".
func (s *AdminService) authInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			token, ok := strings.CutPrefix(req.Header().Get("Authorization"), "Bearer ")
			if !ok || !checkAdminKey(s.adminKey, token) {
				log.Debug().
					Str("procedure", req.Spec().Procedure).
					Str("peer", req.Peer().Addr).
					Msg("admin request rejected")
				return nil, connect.NewError(connect.CodeUnauthenticated, ErrNotAuthorized)
			}
			return next(ctx, req)
		}
	}
}

func connectError(err error) *connect.Error {
	code := connect.CodeInternal
	switch {
	case errors.Is(err, engine.ErrAlreadyStarted),
		errors.Is(err, engine.ErrDraftNotStarted),
		errors.Is(err, engine.ErrDraftEnding),
		errors.Is(err, engine.ErrNoParticipants),
		errors.Is(err, engine.ErrEmptyPool):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, engine.ErrUnknownParticipant):
		code = connect.CodeNotFound
	case errors.Is(err, engine.ErrCatalogUnavailable):
		code = connect.CodeUnavailable
	}
	return connect.NewError(code, errors.New(engine.Reason(err)))
}

// AdminClient calls AdminService.
type AdminClient struct {
	startDraft      *connect.Client[emptypb.Empty, emptypb.Empty]
	endDraft        *connect.Client[emptypb.Empty, emptypb.Empty]
	kickParticipant *connect.Client[wrapperspb.StringValue, emptypb.Empty]
	getDraftState   *connect.Client[emptypb.Empty, structpb.Struct]
	adminKey        string
}

// NewAdminClient creates a client for the admin service at baseURL.
func NewAdminClient(httpClient connect.HTTPClient, baseURL, adminKey string, opts ...connect.ClientOption) *AdminClient {
	baseURL = strings.TrimRight(baseURL, "/")
	return &AdminClient{
		startDraft:      connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+StartDraftProcedure, opts...),
		endDraft:        connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+EndDraftProcedure, opts...),
		kickParticipant: connect.NewClient[wrapperspb.StringValue, emptypb.Empty](httpClient, baseURL+KickParticipantProcedure, opts...),
		getDraftState:   connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+GetDraftStateProcedure, opts...),
		adminKey:        adminKey,
	}
}

func (c *AdminClient) authorize(req connect.AnyRequest) {
	req.Header().Set("Authorization", "Bearer "+c.adminKey)
}

// StartDraft asks the server to start the draft.
func (c *AdminClient) StartDraft(ctx context.Context) error {
	req := connect.NewRequest(&emptypb.Empty{})
	c.authorize(req)
	_, err := c.startDraft.CallUnary(ctx, req)
	return err
}

// EndDraft asks the server to end the draft.
func (c *AdminClient) EndDraft(ctx context.Context) error {
	req := connect.NewRequest(&emptypb.Empty{})
	c.authorize(req)
	_, err := c.endDraft.CallUnary(ctx, req)
	return err
}

// KickParticipant asks the server to remove participantID.
func (c *AdminClient) KickParticipant(ctx context.Context, participantID string) error {
	req := connect.NewRequest(wrapperspb.String(participantID))
	c.authorize(req)
	_, err := c.kickParticipant.CallUnary(ctx, req)
	return err
}

// GetDraftState fetches the current draft snapshot.
func (c *AdminClient) GetDraftState(ctx context.Context) (*structpb.Struct, error) {
	req := connect.NewRequest(&emptypb.Empty{})
	c.authorize(req)
	res, err := c.getDraftState.CallUnary(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
