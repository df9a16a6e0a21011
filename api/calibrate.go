package api

import (
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/banachtech/stochvol/calib"
	"github.com/banachtech/stochvol/chain"
	"github.com/banachtech/stochvol/logsv"
)

// calibrateConfig exposes the calibrator knobs over the wire. Enum fields
// bind from their text names, e.g. {"type": "params5", "engine": "mc"}.
type calibrateConfig struct {
	Type         calib.CalibrationType `json:"type"`
	Constraint   calib.ConstraintType  `json:"constraint"`
	Engine       calib.Engine          `json:"engine"`
	Measure      logsv.Measure         `json:"measure"`
	VegaWeighted bool                  `json:"vega_weighted"`
	Paths        int                   `json:"paths"`
	StepsPerYear int                   `json:"steps_per_year"`
	Seed         uint64                `json:"seed"`
}

type calibrateRequest struct {
	Chain  chain.Chain     `json:"chain" binding:"required"`
	Guess  *logsv.Params   `json:"guess"`
	Config calibrateConfig `json:"config"`
}

// calibrate fits the model to the posted chain. Config fields absent from
// the request keep the calibrator defaults, and an absent guess is seeded
// from the chain's front ATM vol.
func (server *Server) calibrate(c *gin.Context) {
	if !server.calibrateLimiter(clientKey(c)).Allow() {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		return
	}

	cal := calib.New()
	req := calibrateRequest{Config: calibrateConfig{
		Type:         cal.Type,
		Constraint:   cal.Constraint,
		Engine:       cal.Engine,
		Measure:      cal.Measure,
		VegaWeighted: cal.VegaWeighted,
		Paths:        cal.Paths,
		StepsPerYear: cal.StepsPerYear,
		Seed:         cal.Seed,
	}}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(err))
		return
	}
	cal.Type = req.Config.Type
	cal.Constraint = req.Config.Constraint
	cal.Engine = req.Config.Engine
	cal.Measure = req.Config.Measure
	cal.VegaWeighted = req.Config.VegaWeighted
	cal.Paths = req.Config.Paths
	cal.StepsPerYear = req.Config.StepsPerYear
	cal.Seed = req.Config.Seed

	guess := logsv.BTCParams
	if req.Guess != nil {
		guess = *req.Guess
	} else if g, err := calib.InitialGuess(req.Chain, guess); err == nil {
		guess = g
	}

	res, err := server.engine.Calibrate(cal, req.Chain, guess)
	if err != nil {
		resp := gin.H{"error": err.Error()}
		if !math.IsNaN(res.ResidualNorm) {
			resp["result"] = res
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, resp)
		return
	}

	c.JSON(http.StatusOK, res)
}
