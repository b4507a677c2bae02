// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/google/uuid"
	"github.com/gorse-io/tworank/base/log"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RecommendRequest is the body of POST /api/recommend.
type RecommendRequest struct {
	UserIdx *int32 `json:"user_idx"`
	TopK    int    `json:"top_k"`
}

// RecommendResponse is the reply of POST /api/recommend.
type RecommendResponse struct {
	UserIdx         int32            `json:"user_idx"`
	Recommendations []Recommendation `json:"recommendations"`
}

type Health struct {
	Ready bool  `json:"ready"`
	Users int32 `json:"users"`
}

// RestServer implements a REST-ful API server over an immutable State.
type RestServer struct {
	State      *State
	HttpHost   string
	HttpPort   int
	WebService *restful.WebService
	server     *http.Server
}

func NewRestServer(state *State, host string, port int) *RestServer {
	return &RestServer{
		State:      state,
		HttpHost:   host,
		HttpPort:   port,
		WebService: new(restful.WebService),
	}
}

// Container routes the recommendation API, its OpenAPI document, metrics and the log level.
func (s *RestServer) Container() *restful.Container {
	container := restful.NewContainer()
	s.CreateWebService()
	container.Add(s.WebService)
	specConfig := restfulspec.Config{
		WebServices: container.RegisteredWebServices(),
		APIPath:     "/apidocs.json",
	}
	container.Add(restfulspec.NewOpenAPIService(specConfig))
	container.Handle("/metrics", promhttp.Handler())
	container.Handle("/api/log/level", log.Level())
	return container
}

// StartHttpServer starts the REST-ful API server. It blocks until the server stops.
func (s *RestServer) StartHttpServer() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.HttpHost, s.HttpPort),
		Handler: s.Container(),
	}
	log.Logger().Info("start http server",
		zap.String("url", fmt.Sprintf("http://%s:%d", s.HttpHost, s.HttpPort)))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Trace(err)
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *RestServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return errors.Trace(s.server.Shutdown(ctx))
}

func LogFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	requestId := req.HeaderParameter("X-Request-ID")
	if requestId == "" {
		requestId = uuid.New().String()
	}
	resp.Header().Set("X-Request-ID", requestId)
	start := time.Now()
	chain.ProcessFilter(req, resp)
	log.ResponseLogger(resp).Info(fmt.Sprintf("%s %s", req.Request.Method, req.Request.URL),
		zap.Int("status_code", resp.StatusCode()),
		zap.Duration("duration", time.Since(start)))
}

// CreateWebService creates web service.
func (s *RestServer) CreateWebService() {
	ws := s.WebService
	ws.Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	ws.Path("/api/")
	ws.Filter(LogFilter)

	ws.Route(ws.POST("/recommend").To(s.recommend).
		Doc("Recommend items for a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Reads(RecommendRequest{}).
		Returns(http.StatusOK, "OK", RecommendResponse{}).
		Returns(http.StatusBadRequest, "invalid request", nil).
		Returns(http.StatusNotFound, "user not found", nil).
		Writes(RecommendResponse{}))
	ws.Route(ws.GET("/health").To(s.health).
		Doc("Liveness of the recommendation server.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
		Writes(Health{}))
}

func (s *RestServer) recommend(request *restful.Request, response *restful.Response) {
	start := time.Now()
	var body RecommendRequest
	if err := request.ReadEntity(&body); err != nil {
		RecommendRequests.WithLabelValues("bad_request").Inc()
		BadRequest(response, err)
		return
	}
	if body.UserIdx == nil {
		RecommendRequests.WithLabelValues("bad_request").Inc()
		BadRequest(response, errors.NotValidf("missing user_idx"))
		return
	}
	if body.TopK == 0 {
		body.TopK = s.State.config.DefaultTopK
	}
	recommendations, err := s.State.Recommend(*body.UserIdx, body.TopK)
	if err != nil {
		switch {
		case errors.Is(err, errors.NotFound):
			RecommendRequests.WithLabelValues("not_found").Inc()
			PageNotFound(response, err)
		case errors.Is(err, errors.NotValid):
			RecommendRequests.WithLabelValues("bad_request").Inc()
			BadRequest(response, err)
		default:
			RecommendRequests.WithLabelValues("error").Inc()
			InternalServerError(response, err)
		}
		return
	}
	RecommendRequests.WithLabelValues("ok").Inc()
	RecommendSeconds.Observe(time.Since(start).Seconds())
	Ok(response, RecommendResponse{UserIdx: *body.UserIdx, Recommendations: recommendations})
}

func (s *RestServer) health(_ *restful.Request, response *restful.Response) {
	health := Health{Ready: s.State != nil}
	if health.Ready {
		health.Users = s.State.CountUsers()
	}
	Ok(response, health)
}

// BadRequest returns a bad request error.
func BadRequest(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("bad request", zap.Error(err))
	if err = response.WriteError(http.StatusBadRequest, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// InternalServerError returns a internal server error.
func InternalServerError(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("internal server error", zap.Error(err))
	if err = response.WriteError(http.StatusInternalServerError, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// PageNotFound returns a not found error.
func PageNotFound(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteError(http.StatusNotFound, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// Ok sends the content as JSON to the client.
func Ok(response *restful.Response, content any) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteAsJson(content); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}
