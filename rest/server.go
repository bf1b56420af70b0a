package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/flowkit/flowkit/container"
	"github.com/flowkit/flowkit/logger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Server struct {
	http.Server
	Port      int
	container *container.DIContainer
}

func NewServer(httpPort int, container *container.DIContainer) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr: fmt.Sprintf(":%d", httpPort),
		},
		container: container,
		Port:      httpPort,
	}

	router := mux.NewRouter()
	router.HandleFunc("/flow", s.HandleCreateFlow).Methods(http.MethodPost)
	router.HandleFunc("/flow/{id}", s.HandleGetFlow).Methods(http.MethodGet)
	router.HandleFunc("/flow/{id}", s.HandleDeleteFlow).Methods(http.MethodDelete)
	router.HandleFunc("/flow/{id}/state", s.HandleCreateState).Methods(http.MethodPost)
	router.HandleFunc("/flow/{id}/state/{stateId}", s.HandleDeleteState).Methods(http.MethodDelete)
	router.HandleFunc("/flow/{id}/transition", s.HandleCreateTransition).Methods(http.MethodPost)
	router.HandleFunc("/flow/{id}/transition/{transitionId}", s.HandleUpdateTransition).Methods(http.MethodPut)
	router.HandleFunc("/flow/{id}/transition/{transitionId}", s.HandleDeleteTransition).Methods(http.MethodDelete)
	router.HandleFunc("/flow/{id}/transition/{transitionId}/task", s.HandleAddTask).Methods(http.MethodPost)
	router.HandleFunc("/driver", s.HandleListDrivers).Methods(http.MethodGet)
	router.HandleFunc("/driver/{id}/form", s.HandleDriverForm).Methods(http.MethodGet)
	router.HandleFunc("/subject/preview", s.HandlePreview).Methods(http.MethodPost)
	router.HandleFunc("/subject/bind", s.HandleBind).Methods(http.MethodPost)
	router.HandleFunc("/subject/rebind", s.HandleRebind).Methods(http.MethodPost)
	router.HandleFunc("/subject/{id}/binding", s.HandleUnbind).Methods(http.MethodDelete)
	router.HandleFunc("/transition/execute", s.HandleExecuteTransition).Methods(http.MethodPost)
	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server")
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info(r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
