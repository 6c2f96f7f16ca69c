package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"retail-forecast-api/pkg/models"
	"retail-forecast-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func featureRecord(date string, unitsOrdered float64) map[string]interface{} {
	return map[string]interface{}{
		"date_id":            date,
		"store_id":           "S001",
		"product_id":         "P0001",
		"category":           "Groceries",
		"region":             "North",
		"inventory_level":    231.0,
		"units_ordered":      unitsOrdered,
		"price":              33.5,
		"discount":           20.0,
		"weather_condition":  "Rainy",
		"holiday_promotion":  0.0,
		"competitor_pricing": 29.69,
		"seasonality":        "Autumn",
		"units_sold":         unitsOrdered + 1,
	}
}

// unitsOrderedModel predicts the units_ordered feature of each row.
type unitsOrderedModel struct{}

func (unitsOrderedModel) Predict(fm *services.FeatureMatrix) ([]float64, error) {
	idx := -1
	for i, c := range fm.Columns {
		if c == "units_ordered" {
			idx = i
		}
	}
	if idx < 0 {
		return nil, errors.New("units_ordered missing")
	}
	out := make([]float64, fm.Rows)
	for i := range out {
		out[i] = fm.Row(i)[idx]
	}
	return out, nil
}

func testLoaders() services.Loaders {
	return services.Loaders{
		Dataset: func(_, dateColumn string) (*services.Frame, error) {
			records := make([]map[string]interface{}, 0, 10)
			for d := 1; d <= 10; d++ {
				date := time.Date(2023, 1, d, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
				records = append(records, featureRecord(date, float64(d)))
			}
			return services.RecordsToFrame(records, dateColumn)
		},
		Encoding: func(string) (services.EncodingMapping, error) {
			return services.EncodingMapping{
				"store_id":          {"S001": 120.5},
				"product_id":        {"P0001": 130},
				"category":          {"Groceries": 140},
				"region":            {"North": 135},
				"weather_condition": {"Rainy": 132},
				"seasonality":       {"Autumn": 138},
			}, nil
		},
		Model: func(services.ModelVariant, string, int) (services.Model, error) {
			return unitsOrderedModel{}, nil
		},
	}
}

func newTestRouter(t *testing.T, loaders services.Loaders, variant string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := prometheus.NewRegistry()
	metrics := services.NewMetrics(registry)
	store := services.NewArtifactStoreWithLoaders(services.StoreOptions{Variant: variant}, loaders, metrics)
	return NewRouter(RouterOptions{
		Service:    services.NewPredictionService(store, metrics),
		Monitoring: services.NewMonitoringService(metrics),
		Gatherer:   registry,
	})
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(t, testLoaders(), "lightgbm")

	w := doRequest(router, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRoot(t *testing.T) {
	router := newTestRouter(t, testLoaders(), "xgboost")

	w := doRequest(router, http.MethodGet, "/", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.RootResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "xgboost", resp.Model)
	assert.Equal(t, "/docs", resp.Docs)
}

func TestDocsListsRoutes(t *testing.T) {
	router := newTestRouter(t, testLoaders(), "lightgbm")

	w := doRequest(router, http.MethodGet, "/docs", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"/predict"`)
	assert.Contains(t, w.Body.String(), `"/data/sample"`)
}

func TestSummary(t *testing.T) {
	router := newTestRouter(t, testLoaders(), "lightgbm")

	w := doRequest(router, http.MethodGet, "/data/summary", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.SummaryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 10, resp.Rows)
	require.NotNil(t, resp.DateMin)
	assert.Equal(t, "2023-01-01", *resp.DateMin)
	assert.Equal(t, "2023-01-10", *resp.DateMax)
	assert.Equal(t, "units_sold", resp.TargetColumn)
}

func TestSummaryArtifactMissing(t *testing.T) {
	loaders := testLoaders()
	loaders.Dataset = func(path, _ string) (*services.Frame, error) {
		return nil, &services.Error{Kind: services.KindArtifactMissing, Message: "artifact not found at " + path, Value: path}
	}
	router := newTestRouter(t, loaders, "lightgbm")

	w := doRequest(router, http.MethodGet, "/data/summary", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "ArtifactMissing", decodeError(t, w).Error)
}

func TestSample(t *testing.T) {
	router := newTestRouter(t, testLoaders(), "lightgbm")

	w := doRequest(router, http.MethodGet, "/data/sample?limit=3", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.SampleResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Rows)
	require.Len(t, resp.Data, 3)
	assert.Equal(t, "2023-01-08", resp.Data[0]["date_id"])

	w = doRequest(router, http.MethodGet, "/data/sample?limit=5000", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 10, resp.Rows)

	for _, bad := range []string{"abc", "0", "-3"} {
		w = doRequest(router, http.MethodGet, "/data/sample?limit="+bad, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestInvalidDateIsLenientOnSampleButRejectedOnPredict(t *testing.T) {
	router := newTestRouter(t, testLoaders(), "lightgbm")

	w := doRequest(router, http.MethodGet, "/data/sample?start_date=not-a-date", "")
	require.Equal(t, http.StatusOK, w.Code)
	var sample models.SampleResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sample))
	assert.Equal(t, 10, sample.Rows)

	w = doRequest(router, http.MethodPost, "/predict", `{"start_date":"not-a-date"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "InvalidDate", resp.Error)
	assert.Contains(t, resp.Detail, "not-a-date")
}

func TestSampleDatasetFailureIsEmpty(t *testing.T) {
	loaders := testLoaders()
	loaders.Dataset = func(string, string) (*services.Frame, error) { return nil, errors.New("read failed") }
	router := newTestRouter(t, loaders, "lightgbm")

	w := doRequest(router, http.MethodGet, "/data/sample", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rows":0,"data":[]}`, w.Body.String())
}

func TestPredict(t *testing.T) {
	router := newTestRouter(t, testLoaders(), "lightgbm")

	w := doRequest(router, http.MethodPost, "/predict", `{"start_date":"2023-01-05","end_date":"2023-01-08"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.PredictionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Rows)
	assert.Equal(t, "lightgbm", resp.Model)
	assert.Equal(t, []float64{5, 6, 7, 8}, resp.Predictions)
}

func TestPredictDefaultsAndEmptyBody(t *testing.T) {
	router := newTestRouter(t, testLoaders(), "lightgbm")

	for _, body := range []string{"", "{}", `{"records":null}`} {
		w := doRequest(router, http.MethodPost, "/predict", body)
		require.Equal(t, http.StatusOK, w.Code, body)
		var resp models.PredictionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 10, resp.Rows, body)
	}
}

func TestPredictRecords(t *testing.T) {
	router := newTestRouter(t, testLoaders(), "lightgbm")
	body, err := json.Marshal(map[string]interface{}{
		"start_date": "garbage",
		"records":    []interface{}{featureRecord("2022-12-01", 42), featureRecord("2022-11-01", 7)},
	})
	require.NoError(t, err)

	w := doRequest(router, http.MethodPost, "/predict", string(body))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.PredictionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []float64{42, 7}, resp.Predictions)
}

func TestPredictClientErrors(t *testing.T) {
	router := newTestRouter(t, testLoaders(), "lightgbm")

	missing := featureRecord("2023-01-02", 1)
	delete(missing, "price")
	missingBody, _ := json.Marshal(map[string]interface{}{"records": []interface{}{missing}})

	cases := []struct {
		name string
		body string
		kind string
	}{
		{"empty records", `{"records":[]}`, "InvalidInput"},
		{"impossible date", `{"start_date":"2023-02-30"}`, "InvalidDate"},
		{"limit too small", `{"limit":0}`, "InvalidInput"},
		{"limit too large", `{"limit":2001}`, "InvalidInput"},
		{"malformed json", `{"limit":`, "InvalidInput"},
		{"wrong type", `{"limit":"ten"}`, "InvalidInput"},
		{"no rows", `{"start_date":"2030-01-01"}`, "NoRowsAvailable"},
		{"missing column", string(missingBody), "MissingColumn"},
	}
	for _, tc := range cases {
		w := doRequest(router, http.MethodPost, "/predict", tc.body)
		assert.Equal(t, http.StatusBadRequest, w.Code, tc.name)
		assert.Equal(t, tc.kind, decodeError(t, w).Error, tc.name)
	}
}

func TestPredictUnsupportedModel(t *testing.T) {
	router := newTestRouter(t, testLoaders(), "catboost")

	w := doRequest(router, http.MethodPost, "/predict", `{}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "UnsupportedModel", resp.Error)
	assert.Contains(t, resp.Detail, "catboost")
}

func TestEvaluate(t *testing.T) {
	router := newTestRouter(t, testLoaders(), "lightgbm")

	w := doRequest(router, http.MethodPost, "/evaluate", `{"limit":4}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.EvaluationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Rows)
	assert.Equal(t, 4, resp.Evaluated)
	assert.InDelta(t, 1.0, resp.MAE, 1e-9)
	assert.InDelta(t, -1.0, resp.Bias, 1e-9)
}

func TestMetricsAndMonitoring(t *testing.T) {
	router := newTestRouter(t, testLoaders(), "lightgbm")

	doRequest(router, http.MethodPost, "/predict", `{"limit":2}`)

	w := doRequest(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `forecast_artifact_loads_total{artifact="dataset"} 1`)
	assert.Contains(t, w.Body.String(), `forecast_predictions_total{model="lightgbm",outcome="ok"} 1`)

	w = doRequest(router, http.MethodGet, "/monitoring/logs?period=1h", "")
	require.Equal(t, http.StatusOK, w.Code)
	var data services.DashboardData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &data))
	assert.Equal(t, 1, data.Endpoints["/predict"])
	assert.Len(t, data.RequestsOverTime, 1)
}

func TestCORSHeaders(t *testing.T) {
	router := newTestRouter(t, testLoaders(), "lightgbm")

	req := httptest.NewRequest(http.MethodGet, "/health", strings.NewReader(""))
	req.Header.Set("Origin", "http://dashboard.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
