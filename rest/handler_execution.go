package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/flowkit/flowkit/engine"
	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/picker"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type bindRequest struct {
	Subject model.SubjectRef       `json:"subject"`
	Context model.SelectionContext `json:"context"`
}

func (s *Server) decodeBindRequest(r *http.Request) (*bindRequest, error) {
	// Absent context fields keep the selection defaults (activity and
	// rollout checks on); an explicit false in the body still wins.
	req := bindRequest{Context: model.NewSelectionContext("", "")}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	if req.Context.SubjectType == "" {
		req.Context.SubjectType = req.Subject.Type
	}
	if req.Context.RolloutKey == "" {
		req.Context.RolloutKey = req.Subject.Id
	}
	if req.Context.RolloutNamespace == "" {
		req.Context.RolloutNamespace = model.DEFAULT_ROLLOUT_NAMESPACE
	}
	if req.Context.At.IsZero() {
		req.Context.At = time.Now()
	}
	return &req, nil
}

// HandlePreview runs the picker without binding; selection is pure, so this
// has no side effects.
func (s *Server) HandlePreview(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeBindRequest(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid preview payload")
		return
	}
	defer r.Body.Close()
	candidates, err := s.container.GetFlowCatalog().CandidatesFor(req.Context.SubjectType, req.Context.Scope, req.Context.Collection)
	if err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	flow := picker.Pick(req.Context, candidates)
	if flow == nil {
		respondWithJSON(w, http.StatusOK, map[string]any{"flow": nil})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"flow": flow})
}

func (s *Server) HandleBind(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeBindRequest(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid bind payload")
		return
	}
	defer r.Body.Close()
	flow, err := s.container.GetBinder().PickAndBind(req.Subject, req.Context)
	if err != nil {
		logger.Error("error binding subject", zap.String("subject", req.Subject.Id), zap.Error(err))
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	if flow == nil {
		respondWithJSON(w, http.StatusOK, map[string]any{"flow": nil})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"flow": flow})
}

func (s *Server) HandleRebind(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeBindRequest(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid rebind payload")
		return
	}
	defer r.Body.Close()
	sctx := req.Context
	flow, err := s.container.GetBinder().Rebind(req.Subject, func(fresh *model.SelectionContext) {
		*fresh = sctx
	})
	if err != nil {
		logger.Error("error rebinding subject", zap.String("subject", req.Subject.Id), zap.Error(err))
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"flow": flow})
}

func (s *Server) HandleUnbind(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	subject := model.SubjectRef{Id: vars["id"]}
	if err := s.container.GetBinder().Unbind(subject); err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "unbound"})
}

func (s *Server) HandleExecuteTransition(w http.ResponseWriter, r *http.Request) {
	var req model.TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid transition request")
		return
	}
	defer r.Body.Close()
	result, err := s.container.GetRunner().Run(r.Context(), req)
	if err != nil {
		var notResolvable engine.TransitionNotResolvableError
		if errors.As(err, &notResolvable) {
			respondWithError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		var conflict engine.ConcurrentStateConflictError
		if errors.As(err, &conflict) {
			respondWithError(w, http.StatusConflict, err.Error())
			return
		}
		var notBound engine.NotBoundError
		if errors.As(err, &notBound) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		var actionFailed engine.ActionFailureError
		if errors.As(err, &actionFailed) {
			// The state pointer never advanced; the whole transition is
			// safe to retry.
			respondWithJSON(w, http.StatusBadGateway, map[string]any{"result": result, "error": err.Error()})
			return
		}
		logger.Error("error executing transition", zap.String("subject", req.Subject.Id), zap.Error(err))
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}
