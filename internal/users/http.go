package users

import (
	"encoding/json"
	"errors"
	"net/http"
)

type createUserRequest struct {
	Name string `json:"name"`
}

// HTTPHandler serves POST /v1/users.
func (s *Service) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req createUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		u, err := s.CreateUser(r.Context(), req.Name)
		if err != nil {
			if errors.Is(err, ErrInvalidName) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			s.logger.WithContext(r.Context()).WithError(err).Error("create user failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(u)
	}
}
