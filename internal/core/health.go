package core

import "net/http"

// healthResponse is the body returned by the liveness endpoint.
type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// HandleHealth is a liveness probe. It deliberately does not touch the
// database: the webhook ingress should keep accepting deliveries (and
// failing them individually) during a short store outage rather than be
// pulled out of rotation and lose them outright.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, healthResponse{
		Status:  "ok",
		Service: s.Config.Service,
	})
}
