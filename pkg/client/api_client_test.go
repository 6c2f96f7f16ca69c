package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"retail-forecast-api/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, models.RootResponse{Message: "hi", Docs: "/docs", Model: "lightgbm"})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{Status: "ok"})
	})
	r.GET("/data/summary", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "ArtifactMissing", Detail: "artifact not found at data/test_data.parquet"})
	})
	r.GET("/data/sample", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"rows": 1,
			"data": []gin.H{{
				"limit":      c.Query("limit"),
				"start_date": c.Query("start_date"),
				"end_date":   c.Query("end_date"),
			}},
		})
	})
	r.POST("/predict", func(c *gin.Context) {
		var req models.PredictionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.String(http.StatusBadRequest, "bad body")
			return
		}
		preds := make([]float64, len(req.Records))
		for i := range preds {
			preds[i] = float64(i) + 0.5
		}
		c.JSON(http.StatusOK, models.PredictionResponse{Rows: len(preds), Model: "lightgbm", Predictions: preds})
	})
	r.POST("/evaluate", func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "NoRowsAvailable", Detail: "no rows available for prediction"})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL+"/", 5*time.Second)
	ctx := context.Background()

	res, err := c.Fetch(ctx, OpRoot, SampleParams{})
	require.NoError(t, err)
	assert.Equal(t, "lightgbm", res.(*models.RootResponse).Model)

	res, err = c.Fetch(ctx, OpHealth, SampleParams{})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.(*models.HealthResponse).Status)

	res, err = c.Fetch(ctx, OpSample, SampleParams{Limit: 5, StartDate: "2023-01-01"})
	require.NoError(t, err)
	sample := res.(*models.SampleResponse)
	require.Len(t, sample.Data, 1)
	assert.Equal(t, "5", sample.Data[0]["limit"])
	assert.Equal(t, "2023-01-01", sample.Data[0]["start_date"])
	assert.Equal(t, "", sample.Data[0]["end_date"])

	_, err = c.Fetch(ctx, Operation(42), SampleParams{})
	assert.Error(t, err)
}

func TestAPIError(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, 5*time.Second)

	_, err := c.Summary(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "ArtifactMissing", apiErr.Kind)
	assert.Contains(t, apiErr.Error(), "data/test_data.parquet")

	_, err = c.Evaluate(context.Background(), &models.PredictionRequest{})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "NoRowsAvailable", apiErr.Kind)
}

func TestPredictSendsRecords(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, 5*time.Second)

	res, err := c.Predict(context.Background(), &models.PredictionRequest{
		Records: []models.Record{{"price": 1.0}, {"price": 2.0}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, []float64{0.5, 1.5}, res.Predictions)
}

func TestPredictionRequestKeepsEmptyRecords(t *testing.T) {
	body, err := json.Marshal(&models.PredictionRequest{Records: []models.Record{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"records":[]}`, string(body))

	body, err = json.Marshal(&models.PredictionRequest{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"records":null}`, string(body))
}

func TestParseOperation(t *testing.T) {
	for _, op := range []Operation{OpRoot, OpHealth, OpSummary, OpSample} {
		got, err := ParseOperation(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, got)
	}
	_, err := ParseOperation("predict")
	assert.Error(t, err)
}

func TestMergePredictions(t *testing.T) {
	records := []models.Record{{"price": 1.0}, {"price": 2.0}}

	merged := MergePredictions(records, []float64{10, 20})
	require.Len(t, merged, 2)
	assert.Equal(t, models.Record{"price": 2.0, "prediction": 20.0}, merged[1])
	_, touched := records[0]["prediction"]
	assert.False(t, touched, "source records must not be modified")

	merged = MergePredictions(records, []float64{7})
	assert.Equal(t, []models.Record{{"prediction": 7.0}}, merged)
}
