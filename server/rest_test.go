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
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"testing"

	"github.com/emicklei/go-restful/v3"
	"github.com/gorse-io/tworank/base/log"
	"github.com/steinfletcher/apitest"
	"github.com/stretchr/testify/suite"
)

type ServerTestSuite struct {
	suite.Suite
	*RestServer
	handler *restful.Container
}

func (suite *ServerTestSuite) SetupSuite() {
	log.CloseLogger()
	suite.RestServer = NewRestServer(newTestState(suite.T()), "127.0.0.1", 0)
	suite.CreateWebService()
	suite.handler = restful.NewContainer()
	suite.handler.Add(suite.WebService)
}

func (suite *ServerTestSuite) marshal(v any) string {
	s, err := json.Marshal(v)
	suite.NoError(err)
	return string(s)
}

func (suite *ServerTestSuite) TestRecommend() {
	t := suite.T()
	// three candidates B C D, reranked to D B C
	apitest.New().
		Handler(suite.handler).
		Post("/api/recommend").
		JSON(`{"user_idx": 0, "top_k": 2}`).
		Expect(t).
		Status(http.StatusOK).
		Body(suite.marshal(RecommendResponse{
			UserIdx: 0,
			Recommendations: []Recommendation{
				{
					InternalId:       3,
					RawItemId:        "D",
					PresentationLink: "https://www.amazon.com/dp/D",
					ImageLink:        "http://images.amazon.com/images/P/D.01._SS200_.jpg",
				},
				{
					InternalId:       1,
					RawItemId:        "B",
					PresentationLink: "https://www.amazon.com/dp/B",
					ImageLink:        "http://images.amazon.com/images/P/B.01._SS200_.jpg",
				},
			},
		})).
		End()
}

func (suite *ServerTestSuite) TestRecommendDefaultTopK() {
	t := suite.T()
	apitest.New().
		Handler(suite.handler).
		Post("/api/recommend").
		JSON(`{"user_idx": 1}`).
		Expect(t).
		Status(http.StatusOK).
		Assert(func(resp *http.Response, _ *http.Request) error {
			var body RecommendResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return err
			}
			if len(body.Recommendations) != 5 {
				return fmt.Errorf("expect 5 recommendations, got %d", len(body.Recommendations))
			}
			return nil
		}).
		End()
}

func (suite *ServerTestSuite) TestUserOutOfRange() {
	t := suite.T()
	// the user index equal to the number of users is the first invalid one
	apitest.New().
		Handler(suite.handler).
		Post("/api/recommend").
		JSON(fmt.Sprintf(`{"user_idx": %d, "top_k": 5}`, suite.State.CountUsers())).
		Expect(t).
		Status(http.StatusNotFound).
		Assert(func(resp *http.Response, _ *http.Request) error {
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if !strings.Contains(string(body), "out of range") {
				return fmt.Errorf("unexpected body %q", body)
			}
			return nil
		}).
		End()
	apitest.New().
		Handler(suite.handler).
		Post("/api/recommend").
		JSON(`{"user_idx": -1, "top_k": 5}`).
		Expect(t).
		Status(http.StatusNotFound).
		End()
}

func (suite *ServerTestSuite) TestHugeTopK() {
	t := suite.T()
	apitest.New().
		Handler(suite.handler).
		Post("/api/recommend").
		JSON(fmt.Sprintf(`{"user_idx": 0, "top_k": %d}`, math.MaxInt)).
		Expect(t).
		Status(http.StatusOK).
		Assert(func(resp *http.Response, _ *http.Request) error {
			var body RecommendResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return err
			}
			if len(body.Recommendations) != 4 {
				return fmt.Errorf("expect 4 recommendations, got %d", len(body.Recommendations))
			}
			return nil
		}).
		End()
}

func (suite *ServerTestSuite) TestBadRequest() {
	t := suite.T()
	apitest.New().
		Handler(suite.handler).
		Post("/api/recommend").
		JSON(`{"user_idx": "zero"}`).
		Expect(t).
		Status(http.StatusBadRequest).
		End()
	apitest.New().
		Handler(suite.handler).
		Post("/api/recommend").
		JSON(`{"top_k": 5}`).
		Expect(t).
		Status(http.StatusBadRequest).
		End()
	apitest.New().
		Handler(suite.handler).
		Post("/api/recommend").
		JSON(`{"user_idx": 0, "top_k": -1}`).
		Expect(t).
		Status(http.StatusBadRequest).
		End()
}

func (suite *ServerTestSuite) TestContainer() {
	t := suite.T()
	container := NewRestServer(suite.State, "127.0.0.1", 0).Container()
	apitest.New().
		Handler(container).
		Get("/api/health").
		Expect(t).
		Status(http.StatusOK).
		End()
	apitest.New().
		Handler(container).
		Get("/apidocs.json").
		Expect(t).
		Status(http.StatusOK).
		End()
	apitest.New().
		Handler(container).
		Get("/api/log/level").
		Expect(t).
		Status(http.StatusOK).
		Body(`{"level": "fatal"}`).
		End()
	apitest.New().
		Handler(container).
		Put("/api/log/level").
		JSON(`{"level": "error"}`).
		Expect(t).
		Status(http.StatusOK).
		Body(`{"level": "error"}`).
		End()
	suite.Equal("error", log.Level().String())
	log.CloseLogger()
}

func (suite *ServerTestSuite) TestHealth() {
	t := suite.T()
	apitest.New().
		Handler(suite.handler).
		Get("/api/health").
		Expect(t).
		Status(http.StatusOK).
		Body(`{"ready": true, "users": 3}`).
		End()
}

func (suite *ServerTestSuite) TestRequestId() {
	t := suite.T()
	apitest.New().
		Handler(suite.handler).
		Get("/api/health").
		Header("X-Request-ID", "request-1").
		Expect(t).
		Status(http.StatusOK).
		Header("X-Request-ID", "request-1").
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/api/health").
		Expect(t).
		Status(http.StatusOK).
		HeaderPresent("X-Request-ID").
		End()
}

func TestServer(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}
