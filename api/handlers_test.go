package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	mockapi "github.com/banachtech/stochvol/api/mock"
	"github.com/banachtech/stochvol/bsm"
	"github.com/banachtech/stochvol/calib"
	"github.com/banachtech/stochvol/chain"
	"github.com/banachtech/stochvol/logsv"
)

func testChain() chain.Chain {
	return chain.Chain{{
		TTM:     0.25,
		Forward: 100.0,
		DF:      1.0,
		Strikes: []float64{90.0, 100.0, 110.0},
		Types:   []bsm.OptionType{bsm.Put, bsm.Call, bsm.Call},
		Vols:    []float64{0.9, 0.85, 0.88},
	}}
}

func postJSON(t *testing.T, server *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	request, err := http.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	require.NoError(t, err)
	request.Header.Set("Content-Type", "application/json")
	server.router.ServeHTTP(recorder, request)
	return recorder
}

func TestPriceEndpoint(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	prices := [][]float64{{4.0, 7.0, 4.5}}
	vols := [][]float64{{0.9, 0.85, 0.88}}
	engine := mockapi.NewMockEngine(ctrl)
	engine.EXPECT().PriceChain(gomock.Any(), gomock.Any()).Times(1).Return(prices, nil)
	engine.EXPECT().ImpliedVols(gomock.Any(), gomock.Any()).Times(1).Return(vols, nil)

	server := newTestServer(t, engine, "")
	recorder := postJSON(t, server, "/v1/price", gin.H{"params": logsv.BTCParams, "chain": testChain()})
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp struct {
		Prices [][]float64  `json:"prices"`
		Vols   [][]*float64 `json:"vols"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.Equal(t, prices, resp.Prices)
	require.Len(t, resp.Vols, 1)
	for j, v := range resp.Vols[0] {
		require.NotNil(t, v)
		require.InDelta(t, vols[0][j], *v, 1e-12)
	}
}

func TestPriceEndpointEngineError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	engine := mockapi.NewMockEngine(ctrl)
	engine.EXPECT().PriceChain(gomock.Any(), gomock.Any()).Times(1).Return(nil, errors.New("invalid params"))

	server := newTestServer(t, engine, "")
	recorder := postJSON(t, server, "/v1/price", gin.H{"params": logsv.BTCParams, "chain": testChain()})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Contains(t, recorder.Body.String(), "invalid params")
}

func TestPriceEndpointMalformedBody(t *testing.T) {
	server := newTestServer(t, nil, "")

	recorder := httptest.NewRecorder()
	request, err := http.NewRequest(http.MethodPost, "/v1/price", strings.NewReader("{"))
	require.NoError(t, err)
	server.router.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestImpliedEndpoint(t *testing.T) {
	ch := testChain()
	sl := ch[0]
	price := bsm.Price(sl.Forward, sl.Strikes[1], sl.TTM, 0.85, sl.DF, bsm.Call)

	server := newTestServer(t, nil, "")
	recorder := postJSON(t, server, "/v1/implied", gin.H{
		"chain":  ch,
		"prices": [][]float64{{-1.0, price, 5.0}},
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp struct {
		Vols [][]*float64 `json:"vols"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.Len(t, resp.Vols, 1)
	require.Len(t, resp.Vols[0], 3)
	// A negative price cannot be inverted and comes back null.
	require.Nil(t, resp.Vols[0][0])
	require.NotNil(t, resp.Vols[0][1])
	require.InDelta(t, 0.85, *resp.Vols[0][1], 1e-6)
}

func TestImpliedEndpointShapeMismatch(t *testing.T) {
	server := newTestServer(t, nil, "")
	recorder := postJSON(t, server, "/v1/implied", gin.H{
		"chain":  testChain(),
		"prices": [][]float64{{1.0, 2.0}},
	})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Contains(t, recorder.Body.String(), "strikes")
}

func TestCalibrateEndpoint(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	want := calib.Result{
		Params:       logsv.BTCParams,
		Converged:    true,
		ResidualNorm: 2.5e-4,
		Iterations:   40,
		FuncEvals:    77,
		Status:       "FunctionConverge",
	}
	engine := mockapi.NewMockEngine(ctrl)
	engine.EXPECT().Calibrate(gomock.Any(), gomock.Any(), gomock.Any()).Times(1).DoAndReturn(
		func(cal calib.Calibrator, ch chain.Chain, init logsv.Params) (calib.Result, error) {
			// Posted fields override the defaults, absent ones keep them.
			require.Equal(t, calib.Params4, cal.Type)
			require.Equal(t, calib.MmaMartingale, cal.Constraint)
			require.Equal(t, calib.Analytic, cal.Engine)
			require.True(t, cal.VegaWeighted)
			require.Equal(t, 10000, cal.Paths)
			require.Greater(t, init.Sigma0, 0.0)
			return want, nil
		},
	)

	server := newTestServer(t, engine, "")
	recorder := postJSON(t, server, "/v1/calibrate", gin.H{
		"chain": testChain(),
		"config": gin.H{
			"type":       "params4",
			"constraint": "mma_martingale",
		},
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var got calib.Result
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
	require.True(t, got.Converged)
	require.InDelta(t, want.ResidualNorm, got.ResidualNorm, 1e-12)
	require.Equal(t, want.Status, got.Status)
}

func TestCalibrateEndpointEngineError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	engine := mockapi.NewMockEngine(ctrl)
	engine.EXPECT().Calibrate(gomock.Any(), gomock.Any(), gomock.Any()).Times(1).
		Return(calib.Result{}, errors.New("rough calibration not supported"))

	server := newTestServer(t, engine, "")
	recorder := postJSON(t, server, "/v1/calibrate", gin.H{"chain": testChain()})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Contains(t, recorder.Body.String(), "rough calibration")
}

func TestCalibrateRateLimited(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	engine := mockapi.NewMockEngine(ctrl)
	engine.EXPECT().Calibrate(gomock.Any(), gomock.Any(), gomock.Any()).Times(2).
		Return(calib.Result{Status: "FunctionConverge"}, nil)

	server := newTestServer(t, engine, "")
	body := gin.H{"chain": testChain()}
	require.Equal(t, http.StatusOK, postJSON(t, server, "/v1/calibrate", body).Code)
	require.Equal(t, http.StatusOK, postJSON(t, server, "/v1/calibrate", body).Code)
	require.Equal(t, http.StatusTooManyRequests, postJSON(t, server, "/v1/calibrate", body).Code)
}
