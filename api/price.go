package api

import (
	"fmt"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/banachtech/stochvol/bsm"
	"github.com/banachtech/stochvol/chain"
	"github.com/banachtech/stochvol/logsv"
)

type priceRequest struct {
	Params logsv.Params `json:"params" binding:"required"`
	Chain  chain.Chain  `json:"chain" binding:"required"`
}

// price returns transform prices and model implied vols for every quote on
// the posted chain.
func (server *Server) price(c *gin.Context) {
	var req priceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	prices, err := server.engine.PriceChain(req.Params, req.Chain)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(err))
		return
	}
	vols, err := server.engine.ImpliedVols(req.Params, req.Chain)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"prices": prices, "vols": jsonMatrix(vols)})
}

type impliedRequest struct {
	Chain  chain.Chain `json:"chain" binding:"required"`
	Prices [][]float64 `json:"prices" binding:"required"`
}

// implied inverts externally supplied option prices on the chain's quotes.
// Quotes whose inversion fails come back null instead of failing the batch.
func (server *Server) implied(c *gin.Context) {
	var req impliedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(err))
		return
	}
	if err := req.Chain.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(err))
		return
	}
	if len(req.Prices) != len(req.Chain) {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(fmt.Errorf("got %d price slices for %d chain slices", len(req.Prices), len(req.Chain))))
		return
	}

	vols := make([][]float64, len(req.Chain))
	for i, sl := range req.Chain {
		if len(req.Prices[i]) != len(sl.Strikes) {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(fmt.Errorf("slice %d carries %d prices for %d strikes", i, len(req.Prices[i]), len(sl.Strikes))))
			return
		}
		vols[i] = make([]float64, len(sl.Strikes))
		for j, k := range sl.Strikes {
			iv, err := bsm.ImpliedVol(req.Prices[i][j], sl.Forward, k, sl.TTM, sl.DF, sl.Types[j])
			if err != nil {
				iv = math.NaN()
			}
			vols[i][j] = iv
		}
	}

	c.JSON(http.StatusOK, gin.H{"vols": jsonMatrix(vols)})
}

// jsonMatrix maps non-finite entries to null so the response always
// marshals.
func jsonMatrix(m [][]float64) [][]*float64 {
	out := make([][]*float64, len(m))
	for i, row := range m {
		out[i] = make([]*float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			val := v
			out[i][j] = &val
		}
	}
	return out
}
