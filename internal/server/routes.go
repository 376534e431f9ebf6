package server

import (
	"net/http"
	"time"

	"github.com/siku2/acthor2mqtt/internal/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/snapshot", s.SnapshotHandler)
	e.POST("/power", s.SetPowerHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) SnapshotHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetSnapshotRequest{}, 15*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetSnapshotResponse)
	if !ok || response.HasResponseError() || response.Snapshot == nil {
		return c.String(http.StatusServiceUnavailable, "snapshot: FAIL")
	}
	body := response.Snapshot.ToMap()
	body["at"] = response.Snapshot.At()
	return c.JSON(http.StatusOK, body)
}

type setPowerBody struct {
	Watts uint32 `json:"watts"`
}

func (s *Server) SetPowerHandler(c echo.Context) error {
	var body setPowerBody
	if err := c.Bind(&body); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.SetPowerRequest{Watts: body.Watts}, 15*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.SetPowerResponse)
	if !ok {
		return c.String(http.StatusServiceUnavailable, "set_power: FAIL")
	}
	if response.HasResponseError() {
		return c.String(http.StatusBadGateway, response.GetResponseError().Error())
	}
	return c.JSON(http.StatusOK, setPowerBody{Watts: response.Watts})
}
