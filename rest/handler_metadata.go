package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/flowkit/flowkit/graph"
	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/metadata"
	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence"
	"github.com/flowkit/flowkit/registry"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func pathId(r *http.Request, name string) (int64, error) {
	vars := mux.Vars(r)
	return strconv.ParseInt(vars[name], 10, 64)
}

// statusFor maps engine error kinds onto HTTP statuses: structural
// violations and bad references are caller errors, storage misses are 404s.
func statusFor(err error) int {
	var structural graph.StructuralViolationError
	if errors.As(err, &structural) {
		return http.StatusUnprocessableEntity
	}
	var notFound persistence.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound
	}
	var unregistered registry.DriverNotRegisteredError
	if errors.As(err, &unregistered) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) HandleCreateFlow(w http.ResponseWriter, r *http.Request) {
	var flow model.Flow
	if err := json.NewDecoder(r.Body).Decode(&flow); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid flow payload")
		return
	}
	defer r.Body.Close()
	created, err := s.container.GetMetadataService().CreateFlow(flow)
	if err != nil {
		logger.Error("error creating flow", zap.String("name", flow.Name), zap.Error(err))
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (s *Server) HandleGetFlow(w http.ResponseWriter, r *http.Request) {
	flowId, err := pathId(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid flow id")
		return
	}
	flow, err := s.container.GetMetadataService().GetFlow(flowId)
	if err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, flow)
}

func (s *Server) HandleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	flowId, err := pathId(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid flow id")
		return
	}
	if err := s.container.GetMetadataService().DeleteFlow(flowId); err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) HandleCreateState(w http.ResponseWriter, r *http.Request) {
	flowId, err := pathId(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid flow id")
		return
	}
	var state model.FlowState
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid state payload")
		return
	}
	defer r.Body.Close()
	created, err := s.container.GetMetadataService().CreateState(flowId, state)
	if err != nil {
		logger.Error("error creating state", zap.Int64("flow", flowId), zap.Error(err))
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (s *Server) HandleDeleteState(w http.ResponseWriter, r *http.Request) {
	flowId, err := pathId(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid flow id")
		return
	}
	stateId, err := pathId(r, "stateId")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid state id")
		return
	}
	if err := s.container.GetMetadataService().DeleteState(flowId, stateId); err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) HandleCreateTransition(w http.ResponseWriter, r *http.Request) {
	flowId, err := pathId(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid flow id")
		return
	}
	var transition model.FlowTransition
	if err := json.NewDecoder(r.Body).Decode(&transition); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid transition payload")
		return
	}
	defer r.Body.Close()
	created, err := s.container.GetMetadataService().CreateTransition(flowId, transition)
	if err != nil {
		logger.Error("error creating transition", zap.Int64("flow", flowId), zap.Error(err))
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

type transitionPatchRequest struct {
	Slug *string         `json:"slug"`
	From json.RawMessage `json:"from"`
	To   json.RawMessage `json:"to"`
}

func decodeEndpoint(raw json.RawMessage) (*int64, bool, error) {
	if raw == nil {
		return nil, false, nil
	}
	if string(raw) == "null" {
		return nil, true, nil
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, false, err
	}
	return &id, true, nil
}

func (s *Server) HandleUpdateTransition(w http.ResponseWriter, r *http.Request) {
	flowId, err := pathId(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid flow id")
		return
	}
	transitionId, err := pathId(r, "transitionId")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid transition id")
		return
	}
	var req transitionPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid transition payload")
		return
	}
	defer r.Body.Close()
	patch := metadata.TransitionPatch{Slug: req.Slug}
	if patch.From, patch.FromSet, err = decodeEndpoint(req.From); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid from endpoint")
		return
	}
	if patch.To, patch.ToSet, err = decodeEndpoint(req.To); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid to endpoint")
		return
	}
	updated, err := s.container.GetMetadataService().UpdateTransition(flowId, transitionId, patch)
	if err != nil {
		logger.Error("error updating transition", zap.Int64("flow", flowId), zap.Int64("transition", transitionId), zap.Error(err))
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

func (s *Server) HandleDeleteTransition(w http.ResponseWriter, r *http.Request) {
	flowId, err := pathId(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid flow id")
		return
	}
	transitionId, err := pathId(r, "transitionId")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid transition id")
		return
	}
	if err := s.container.GetMetadataService().DeleteTransition(flowId, transitionId); err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) HandleAddTask(w http.ResponseWriter, r *http.Request) {
	flowId, err := pathId(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid flow id")
		return
	}
	transitionId, err := pathId(r, "transitionId")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid transition id")
		return
	}
	var task model.FlowTask
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid task payload")
		return
	}
	defer r.Body.Close()
	created, err := s.container.GetMetadataService().AddTask(flowId, transitionId, task)
	if err != nil {
		logger.Error("error adding task", zap.Int64("flow", flowId), zap.Error(err))
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (s *Server) HandleListDrivers(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, s.container.GetTaskRegistry().Drivers())
}

func (s *Server) HandleDriverForm(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	form, err := s.container.GetTaskRegistry().FormFor(vars["id"])
	if err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, form)
}
