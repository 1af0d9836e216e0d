package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/rvm-classifier/internal/model"
)

type fixedEngine struct {
	output    []float32
	invokeErr error
}

func (e *fixedEngine) InputInfo() model.TensorInfo {
	return model.TensorInfo{Shape: []int{1, 2, 2, 3}, Type: model.Float32}
}

func (e *fixedEngine) OutputInfo() model.TensorInfo {
	return model.TensorInfo{Shape: []int{1, len(e.output)}, Type: model.Float32}
}

func (e *fixedEngine) SetInput(model.Tensor) error { return nil }
func (e *fixedEngine) Invoke() error               { return e.invokeErr }
func (e *fixedEngine) Close() error                { return nil }

func (e *fixedEngine) Output() (model.Tensor, error) {
	return model.Tensor{Values: append([]float32(nil), e.output...)}, nil
}

func newServer(t *testing.T, e *fixedEngine) *httptest.Server {
	t.Helper()
	c, err := model.NewClassifier("m.tflite", []string{"metal", "plastic", "glass"},
		model.Options{MaxResults: 2},
		func(string, model.EngineOptions) (model.Engine, error) { return e, nil })
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewHandler(c).Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func decodeResult(t *testing.T, resp *http.Response) model.Result {
	t.Helper()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var res model.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	return res
}

func TestHealth(t *testing.T) {
	srv := newServer(t, &fixedEngine{output: []float32{0.1, 0.2, 0.7}})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestLabels(t *testing.T) {
	srv := newServer(t, &fixedEngine{output: []float32{0.1, 0.2, 0.7}})

	resp, err := http.Get(srv.URL + "/labels")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Labels     []string `json:"labels"`
		InputShape []int    `json:"input_shape"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []string{"metal", "plastic", "glass"}, body.Labels)
	assert.Equal(t, []int{2, 2, 3}, body.InputShape)
}

func TestPredict(t *testing.T) {
	srv := newServer(t, &fixedEngine{output: []float32{0.1, 0.2, 0.7}})

	body, _ := json.Marshal(model.PredictionRequest{Input: make([]float32, 12)})
	resp, err := http.Post(srv.URL+"/predict", "application/json", bytes.NewReader(body))
	require.NoError(t, err)

	res := decodeResult(t, resp)
	assert.Equal(t, "glass", res.TopPrediction)
	assert.Equal(t, []model.Category{{Label: "glass", Score: 0.7}, {Label: "plastic", Score: 0.2}}, res.Categories)
}

func TestPredict_BadRequests(t *testing.T) {
	srv := newServer(t, &fixedEngine{output: []float32{0.1, 0.2, 0.7}})

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{name: "wrong method", method: http.MethodGet, want: http.StatusMethodNotAllowed},
		{name: "invalid json", method: http.MethodPost, body: "{", want: http.StatusBadRequest},
		{name: "wrong size", method: http.MethodPost, body: `{"input":[1,2,3]}`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+"/predict", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestPredict_EngineFailure(t *testing.T) {
	srv := newServer(t, &fixedEngine{output: []float32{0.1, 0.2, 0.7}, invokeErr: errors.New("boom")})

	body, _ := json.Marshal(model.PredictionRequest{Input: make([]float32, 12)})
	resp, err := http.Post(srv.URL+"/predict", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func imageUpload(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, "frame.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestPredictFromImage(t *testing.T) {
	srv := newServer(t, &fixedEngine{output: []float32{0.6, 0.3, 0.1}})

	var frame bytes.Buffer
	require.NoError(t, encodePNG(&frame, 8, 8))

	body, contentType := imageUpload(t, "image", frame.Bytes())
	resp, err := http.Post(srv.URL+"/predict/image", contentType, body)
	require.NoError(t, err)

	res := decodeResult(t, resp)
	assert.Equal(t, "metal", res.TopPrediction)
	assert.Len(t, res.Categories, 2)
}

func TestPredictFromImage_BadRequests(t *testing.T) {
	srv := newServer(t, &fixedEngine{output: []float32{0.6, 0.3, 0.1}})

	t.Run("wrong field", func(t *testing.T) {
		body, contentType := imageUpload(t, "file", []byte("x"))
		resp, err := http.Post(srv.URL+"/predict/image", contentType, body)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("not an image", func(t *testing.T) {
		body, contentType := imageUpload(t, "image", []byte("plain text"))
		resp, err := http.Post(srv.URL+"/predict/image", contentType, body)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("not multipart", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/predict/image", "application/json", strings.NewReader("{}"))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestCORSPreflight(t *testing.T) {
	srv := newServer(t, &fixedEngine{output: []float32{0.6, 0.3, 0.1}})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/predict", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "POST, GET, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
}

func encodePNG(buf *bytes.Buffer, w, h int) error {
	return png.Encode(buf, image.NewRGBA(image.Rect(0, 0, w, h)))
}
